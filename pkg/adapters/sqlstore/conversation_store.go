package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/jmoiron/sqlx"
)

// ConversationStore implements ports.ConversationStore. Turns live in their own table keyed by
// (conversation_id, turn_index), so applying a turn is an upsert.
type ConversationStore struct {
	db *sqlx.DB
}

type turnRow struct {
	Index      int    `db:"turn_index"`
	Question   string `db:"question"`
	Answer     string `db:"answer"`
	AnsweredAt string `db:"answered_at"`
}

// Save replaces the conversation and all of its turns.
func (s *ConversationStore) Save(ctx context.Context, state *domain.ConversationState) error {
	header := *state
	header.Turns = nil
	body, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", state.ID, err)
	}

	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`INSERT INTO conversations (id, block_id, response_id, body, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET block_id = excluded.block_id, response_id = excluded.response_id,
			body = excluded.body, updated_at = excluded.updated_at`)
		if _, err := tx.ExecContext(ctx, query, state.ID, state.BlockID, state.ResponseID, string(body), timestamp(state.UpdatedAt)); err != nil {
			return fmt.Errorf("failed to save conversation %s: %w", state.ID, err)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM conversation_turns WHERE conversation_id = ?"), state.ID); err != nil {
			return fmt.Errorf("failed to reset turns of %s: %w", state.ID, err)
		}
		for i, turn := range state.Turns {
			turn.Index = i
			if err := s.upsertTurn(ctx, tx, state.ID, turn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ConversationStore) upsertTurn(ctx context.Context, tx *sqlx.Tx, id string, turn domain.Turn) error {
	query := tx.Rebind(`INSERT INTO conversation_turns (conversation_id, turn_index, question, answer, answered_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, turn_index) DO UPDATE SET question = excluded.question,
		answer = excluded.answer, answered_at = excluded.answered_at`)
	if _, err := tx.ExecContext(ctx, query, id, turn.Index, turn.Question, turn.Answer, timestamp(turn.AnsweredAt)); err != nil {
		return fmt.Errorf("failed to save turn %d of %s: %w", turn.Index, id, err)
	}
	return nil
}

// Load reads the conversation and its turns.
func (s *ConversationStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	var body string
	err := s.db.GetContext(ctx, &body, s.db.Rebind("SELECT body FROM conversations WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
		}
		return nil, fmt.Errorf("failed to query conversation %s: %w", id, err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}

	var rows []turnRow
	query := s.db.Rebind("SELECT turn_index, question, answer, answered_at FROM conversation_turns WHERE conversation_id = ? ORDER BY turn_index")
	if err := s.db.SelectContext(ctx, &rows, query, id); err != nil {
		return nil, fmt.Errorf("failed to query turns of %s: %w", id, err)
	}

	state.Turns = make([]domain.Turn, 0, len(rows))
	for _, r := range rows {
		at, err := parseTimestamp(r.AnsweredAt)
		if err != nil {
			return nil, fmt.Errorf("turn %d of %s: %w", r.Index, id, err)
		}
		state.Turns = append(state.Turns, domain.Turn{Index: r.Index, Question: r.Question, Answer: r.Answer, AnsweredAt: at})
	}
	state.Normalize()
	return &state, nil
}

// ApplyConversationTurn upserts turn. Indexes past the frontier are rejected.
func (s *ConversationStore) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var exists int
		err := tx.GetContext(ctx, &exists, tx.Rebind("SELECT COUNT(*) FROM conversations WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("failed to query conversation %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
		}

		var count int
		if err := tx.GetContext(ctx, &count, tx.Rebind("SELECT COUNT(*) FROM conversation_turns WHERE conversation_id = ?"), id); err != nil {
			return fmt.Errorf("failed to count turns of %s: %w", id, err)
		}
		if turn.Index < 0 || turn.Index > count {
			return fmt.Errorf("turn %d of %d: %w", turn.Index, count, domain.ErrTurnOutOfRange)
		}
		return s.upsertTurn(ctx, tx, id, turn)
	})
}

// Delete removes the conversation and its turns.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	return inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM conversation_turns WHERE conversation_id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete turns of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM conversations WHERE id = ?"), id); err != nil {
			return fmt.Errorf("failed to delete conversation %s: %w", id, err)
		}
		return nil
	})
}

// List returns all conversation IDs.
func (s *ConversationStore) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM conversations ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return ids, nil
}
