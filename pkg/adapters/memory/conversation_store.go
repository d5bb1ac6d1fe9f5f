package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
)

// ConversationStore implements ports.ConversationStore in memory.
// Safe for concurrent use.
type ConversationStore struct {
	data map[string]*domain.ConversationState
	mu   sync.RWMutex
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		data: make(map[string]*domain.ConversationState),
	}
}

// Save persists a copy of the state.
func (s *ConversationStore) Save(ctx context.Context, state *domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state.ID] = state.Clone()
	return nil
}

// Load retrieves a copy of the stored state.
func (s *ConversationStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
	}
	return state.Clone(), nil
}

// ApplyConversationTurn upserts turn into the stored conversation.
func (s *ConversationStore) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.data[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrConversationNotFound)
	}
	next := state.Clone()
	if err := persistence.UpsertTurn(next, turn); err != nil {
		return fmt.Errorf("conversation %s: %w", id, err)
	}
	s.data[id] = next
	return nil
}

// Delete removes the conversation.
func (s *ConversationStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored conversation IDs in sorted order.
func (s *ConversationStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
