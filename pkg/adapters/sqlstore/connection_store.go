package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/jmoiron/sqlx"
)

// ConnectionStore implements ports.ConnectionStore. Rules are stored as a JSON body.
type ConnectionStore struct {
	db *sqlx.DB
}

type connectionRow struct {
	ID            string `db:"id"`
	SourceBlockID string `db:"source_block_id"`
	Body          string `db:"body"`
	UpdatedAt     string `db:"updated_at"`
}

// Get retrieves a connection by ID.
func (s *ConnectionStore) Get(ctx context.Context, id string) (*domain.Connection, error) {
	return s.get(ctx, s.db, "id", id)
}

// GetBySource retrieves the connection leaving blockID.
func (s *ConnectionStore) GetBySource(ctx context.Context, blockID string) (*domain.Connection, error) {
	return s.get(ctx, s.db, "source_block_id", blockID)
}

func (s *ConnectionStore) get(ctx context.Context, q sqlx.QueryerContext, column, value string) (*domain.Connection, error) {
	var row connectionRow
	query := s.db.Rebind("SELECT id, source_block_id, body, updated_at FROM connections WHERE " + column + " = ? ORDER BY id LIMIT 1")
	if err := sqlx.GetContext(ctx, q, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", column, value, domain.ErrConnectionNotFound)
		}
		return nil, fmt.Errorf("failed to query connection: %w", err)
	}

	var conn domain.Connection
	if err := json.Unmarshal([]byte(row.Body), &conn); err != nil {
		return nil, fmt.Errorf("failed to decode connection %s: %w", row.ID, err)
	}
	return &conn, nil
}

// Save creates or replaces a connection, along with any connection leaving the same block.
func (s *ConnectionStore) Save(ctx context.Context, conn *domain.Connection) error {
	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return s.upsert(ctx, tx, conn)
	})
}

func (s *ConnectionStore) upsert(ctx context.Context, e sqlx.ExecerContext, conn *domain.Connection) error {
	body, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("failed to encode connection %s: %w", conn.ID, err)
	}
	if conn.SourceBlockID != "" {
		evict := s.db.Rebind("DELETE FROM connections WHERE source_block_id = ? AND id <> ?")
		if _, err := e.ExecContext(ctx, evict, conn.SourceBlockID, conn.ID); err != nil {
			return fmt.Errorf("failed to replace connection for source %s: %w", conn.SourceBlockID, err)
		}
	}
	query := s.db.Rebind(`INSERT INTO connections (id, source_block_id, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET source_block_id = excluded.source_block_id, body = excluded.body, updated_at = excluded.updated_at`)
	if _, err := e.ExecContext(ctx, query, conn.ID, conn.SourceBlockID, string(body), timestamp(time.Now())); err != nil {
		return fmt.Errorf("failed to save connection %s: %w", conn.ID, err)
	}
	return nil
}

// ApplyConnectionUpdate merges partialFields into the stored connection, creating it if missing.
func (s *ConnectionStore) ApplyConnectionUpdate(ctx context.Context, id string, partialFields map[string]any) (*domain.Connection, error) {
	var result *domain.Connection
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		conn, err := s.get(ctx, tx, "id", id)
		if errors.Is(err, domain.ErrConnectionNotFound) {
			conn = &domain.Connection{ID: id, Rules: []domain.Rule{}}
		} else if err != nil {
			return err
		}

		if err := persistence.ApplyConnectionPatch(conn, partialFields); err != nil {
			return fmt.Errorf("connection %s: %w", id, err)
		}
		result = conn
		return s.upsert(ctx, tx, conn)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a connection.
func (s *ConnectionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM connections WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete connection %s: %w", id, err)
	}
	return nil
}

// List returns all connection IDs.
func (s *ConnectionStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM connections ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return ids, nil
}
