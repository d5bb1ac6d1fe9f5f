package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	backend "github.com/redis/go-redis/v9"
)

// ConversationStore implements ports.ConversationStore. Conversations expire after the store TTL.
type ConversationStore struct {
	kind keyspace
}

// Save persists the state.
func (s *ConversationStore) Save(ctx context.Context, state *domain.ConversationState) error {
	return s.kind.save(ctx, state.ID, state)
}

// Load retrieves a conversation.
func (s *ConversationStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	return s.load(ctx, s.kind.client, id)
}

func (s *ConversationStore) load(ctx context.Context, cmd reader, id string) (*domain.ConversationState, error) {
	var state domain.ConversationState
	if err := s.kind.read(ctx, cmd, id, &state); err != nil {
		if errors.Is(err, errMissing) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
		}
		return nil, err
	}
	return &state, nil
}

// ApplyConversationTurn upserts turn atomically with respect to other writers.
func (s *ConversationStore) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	return s.kind.update(ctx, id, func(tx *backend.Tx) (func(backend.Pipeliner) error, error) {
		state, err := s.load(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := persistence.UpsertTurn(state, turn); err != nil {
			return nil, fmt.Errorf("conversation %s: %w", id, err)
		}
		return func(pipe backend.Pipeliner) error {
			return s.kind.write(ctx, pipe, id, state)
		}, nil
	})
}

// Delete removes the conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	pipe := s.kind.client.TxPipeline()
	pipe.Del(ctx, s.kind.key(id))
	pipe.ZRem(ctx, s.kind.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}
	return nil
}

// List returns live conversations, pruning expired ones from the index.
func (s *ConversationStore) List(ctx context.Context) ([]string, error) {
	return s.kind.list(ctx)
}
