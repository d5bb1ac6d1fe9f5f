package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
)

// ConnectionStore implements ports.ConnectionStore in memory.
// Safe for concurrent use.
type ConnectionStore struct {
	data map[string]*domain.Connection
	mu   sync.RWMutex
}

// NewConnectionStore creates a new in-memory connection store.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{
		data: make(map[string]*domain.Connection),
	}
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conn, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrConnectionNotFound)
	}
	// Copy on read so callers can't mutate the stored connection.
	return conn.Clone(), nil
}

// GetBySource retrieves the connection leaving blockID.
func (s *ConnectionStore) GetBySource(ctx context.Context, blockID string) (*domain.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.data {
		if conn.SourceBlockID == blockID {
			return conn.Clone(), nil
		}
	}
	return nil, fmt.Errorf("source %s: %w", blockID, domain.ErrConnectionNotFound)
}

// Save stores a copy of conn, replacing any connection that leaves the same block.
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(conn.Clone())
	return nil
}

// put stores conn and drops any other connection leaving the same block.
func (s *ConnectionStore) put(conn *domain.Connection) {
	if conn.SourceBlockID != "" {
		for id, other := range s.data {
			if id != conn.ID && other.SourceBlockID == conn.SourceBlockID {
				delete(s.data, id)
			}
		}
	}
	s.data[conn.ID] = conn
}

// ApplyConnectionUpdate merges partialFields into the stored connection, creating it if missing.
func (s *ConnectionStore) ApplyConnectionUpdate(ctx context.Context, id string, partialFields map[string]any) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.data[id]
	if ok {
		conn = conn.Clone()
	} else {
		conn = &domain.Connection{ID: id, Rules: []domain.Rule{}}
	}

	if err := persistence.ApplyConnectionPatch(conn, partialFields); err != nil {
		return nil, fmt.Errorf("connection %s: %w", id, err)
	}
	s.put(conn)
	return conn.Clone(), nil
}

// Delete removes a connection.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored connection IDs in sorted order.
func (s *ConnectionStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
