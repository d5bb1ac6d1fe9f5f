// Package file persists connections and conversations as JSON files on the local filesystem.
package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
)

// DefaultPath is used when no base path is given.
var DefaultPath = filepath.Join(".formweave", "data")

// ConnectionStore implements ports.ConnectionStore, one file per connection under
// <base>/connections.
type ConnectionStore struct {
	dir jsonDir
	mu  sync.Mutex
}

// NewConnectionStore creates a store rooted at basePath (DefaultPath when empty).
func NewConnectionStore(basePath string) *ConnectionStore {
	if basePath == "" {
		basePath = DefaultPath
	}
	return &ConnectionStore{dir: jsonDir{path: filepath.Join(basePath, "connections")}}
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	var conn domain.Connection
	if err := s.dir.read(id, &conn); err != nil {
		if errors.Is(err, errNotExist) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrConnectionNotFound)
		}
		return nil, err
	}
	return &conn, nil
}

// GetBySource scans the stored connections for the one leaving blockID.
func (s *ConnectionStore) GetBySource(ctx context.Context, blockID string) (*domain.Connection, error) {
	ids, err := s.dir.list()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		conn, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrConnectionNotFound) {
				continue
			}
			return nil, err
		}
		if conn.SourceBlockID == blockID {
			return conn, nil
		}
	}
	return nil, fmt.Errorf("source %s: %w", blockID, domain.ErrConnectionNotFound)
}

// Save writes the connection, replacing any connection that leaves the same block.
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, conn)
}

// put writes conn, then removes the other files claiming its source block.
func (s *ConnectionStore) put(ctx context.Context, conn *domain.Connection) error {
	if err := s.dir.write(conn.ID, conn); err != nil {
		return err
	}
	if conn.SourceBlockID == "" {
		return nil
	}
	ids, err := s.dir.list()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == conn.ID {
			continue
		}
		other, err := s.Get(ctx, id)
		if errors.Is(err, domain.ErrConnectionNotFound) {
			continue
		} else if err != nil {
			return err
		}
		if other.SourceBlockID == conn.SourceBlockID {
			if err := s.dir.remove(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyConnectionUpdate merges partialFields into the stored connection, creating it if missing.
func (s *ConnectionStore) ApplyConnectionUpdate(ctx context.Context, id string, partialFields map[string]any) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrConnectionNotFound) {
		conn = &domain.Connection{ID: id, Rules: []domain.Rule{}}
	} else if err != nil {
		return nil, err
	}

	if err := persistence.ApplyConnectionPatch(conn, partialFields); err != nil {
		return nil, fmt.Errorf("connection %s: %w", id, err)
	}
	if err := s.put(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Delete removes the connection file.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.remove(id)
}

// List returns all stored connection IDs.
func (s *ConnectionStore) List(ctx context.Context) ([]string, error) {
	return s.dir.list()
}

// ConversationStore implements ports.ConversationStore, one file per conversation under
// <base>/conversations.
type ConversationStore struct {
	dir jsonDir
	mu  sync.Mutex
}

// NewConversationStore creates a store rooted at basePath (DefaultPath when empty).
func NewConversationStore(basePath string) *ConversationStore {
	if basePath == "" {
		basePath = DefaultPath
	}
	return &ConversationStore{dir: jsonDir{path: filepath.Join(basePath, "conversations")}}
}

// Save writes the whole state.
func (s *ConversationStore) Save(ctx context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.write(state.ID, state)
}

// Load reads a conversation.
func (s *ConversationStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	var state domain.ConversationState
	if err := s.dir.read(id, &state); err != nil {
		if errors.Is(err, errNotExist) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
		}
		return nil, err
	}
	return &state, nil
}

// ApplyConversationTurn upserts turn and rewrites the file.
func (s *ConversationStore) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := persistence.UpsertTurn(state, turn); err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}
	return s.dir.write(id, state)
}

// Delete removes the conversation file.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.remove(id)
}

// List returns all stored conversation IDs.
func (s *ConversationStore) List(ctx context.Context) ([]string, error) {
	return s.dir.list()
}
