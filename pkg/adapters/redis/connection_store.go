package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	backend "github.com/redis/go-redis/v9"
)

// ConnectionStore implements ports.ConnectionStore. A hash maps source blocks to connection IDs.
type ConnectionStore struct {
	kind keyspace
}

func (s *ConnectionStore) sourceKey() string {
	return s.kind.prefix + "by-source"
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	return s.get(ctx, s.kind.client, id)
}

func (s *ConnectionStore) get(ctx context.Context, cmd reader, id string) (*domain.Connection, error) {
	var conn domain.Connection
	if err := s.kind.read(ctx, cmd, id, &conn); err != nil {
		if errors.Is(err, errMissing) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrConnectionNotFound)
		}
		return nil, err
	}
	return &conn, nil
}

// GetBySource retrieves the connection leaving blockID.
func (s *ConnectionStore) GetBySource(ctx context.Context, blockID string) (*domain.Connection, error) {
	id, err := s.kind.client.HGet(ctx, s.sourceKey(), blockID).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("source %s: %w", blockID, domain.ErrConnectionNotFound)
		}
		return nil, fmt.Errorf("failed to look up source %s: %w", blockID, err)
	}
	return s.Get(ctx, id)
}

// Save creates or replaces a connection, along with any connection leaving the same block.
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.Connection) error {
	return s.kind.update(ctx, conn.ID, func(tx *backend.Tx) (func(backend.Pipeliner) error, error) {
		previous, err := s.get(ctx, tx, conn.ID)
		if err != nil && !errors.Is(err, domain.ErrConnectionNotFound) {
			return nil, err
		}
		holder, err := s.holder(ctx, tx, conn.SourceBlockID)
		if err != nil {
			return nil, err
		}
		return s.queueWrite(ctx, previous, conn, holder), nil
	}, s.sourceKey())
}

// holder returns the id of the connection currently leaving source, or "".
func (s *ConnectionStore) holder(ctx context.Context, tx *backend.Tx, source string) (string, error) {
	if source == "" {
		return "", nil
	}
	id, err := tx.HGet(ctx, s.sourceKey(), source).Result()
	if errors.Is(err, backend.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up source %s: %w", source, err)
	}
	return id, nil
}

// ApplyConnectionUpdate merges partialFields into the stored connection, creating it if missing.
func (s *ConnectionStore) ApplyConnectionUpdate(ctx context.Context, id string, partialFields map[string]any) (*domain.Connection, error) {
	var result *domain.Connection
	err := s.kind.update(ctx, id, func(tx *backend.Tx) (func(backend.Pipeliner) error, error) {
		previous, err := s.get(ctx, tx, id)
		if err != nil && !errors.Is(err, domain.ErrConnectionNotFound) {
			return nil, err
		}

		next := &domain.Connection{ID: id, Rules: []domain.Rule{}}
		if previous != nil {
			next = previous.Clone()
		}
		if err := persistence.ApplyConnectionPatch(next, partialFields); err != nil {
			return nil, fmt.Errorf("connection %s: %w", id, err)
		}
		holder, err := s.holder(ctx, tx, next.SourceBlockID)
		if err != nil {
			return nil, err
		}
		result = next
		return s.queueWrite(ctx, previous, next, holder), nil
	}, s.sourceKey())
	if err != nil {
		return nil, err
	}
	return result, nil
}

// queueWrite writes next and drops holder, the connection that owned next's source until now.
func (s *ConnectionStore) queueWrite(ctx context.Context, previous, next *domain.Connection, holder string) func(backend.Pipeliner) error {
	return func(pipe backend.Pipeliner) error {
		if previous != nil && previous.SourceBlockID != next.SourceBlockID {
			pipe.HDel(ctx, s.sourceKey(), previous.SourceBlockID)
		}
		if holder != "" && holder != next.ID {
			pipe.Del(ctx, s.kind.key(holder))
			pipe.ZRem(ctx, s.kind.indexKey(), holder)
		}
		if next.SourceBlockID != "" {
			pipe.HSet(ctx, s.sourceKey(), next.SourceBlockID, next.ID)
		}
		return s.kind.write(ctx, pipe, next.ID, next)
	}
}

// Delete removes the connection and its source mapping.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	return s.kind.update(ctx, id, func(tx *backend.Tx) (func(backend.Pipeliner) error, error) {
		previous, err := s.get(ctx, tx, id)
		if err != nil && !errors.Is(err, domain.ErrConnectionNotFound) {
			return nil, err
		}
		holder := ""
		if previous != nil {
			if holder, err = s.holder(ctx, tx, previous.SourceBlockID); err != nil {
				return nil, err
			}
		}
		return func(pipe backend.Pipeliner) error {
			if holder == id {
				pipe.HDel(ctx, s.sourceKey(), previous.SourceBlockID)
			}
			pipe.Del(ctx, s.kind.key(id))
			pipe.ZRem(ctx, s.kind.indexKey(), id)
			return nil
		}, nil
	}, s.sourceKey())
}

// List returns the stored connection IDs.
func (s *ConnectionStore) List(ctx context.Context) ([]string, error) {
	return s.kind.list(ctx)
}
