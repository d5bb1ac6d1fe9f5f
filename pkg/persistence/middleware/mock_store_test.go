package middleware_test

import (
	"context"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/aretw0/formweave/pkg/ports"
)

// MockStore is a simple map-based store for testing middleware.
type MockStore struct {
	data map[string]*domain.ConversationState
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string]*domain.ConversationState),
	}
}

func (s *MockStore) Save(ctx context.Context, state *domain.ConversationState) error {
	s.data[state.ID] = state.Clone()
	return nil
}

func (s *MockStore) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	state, ok := s.data[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return state.Clone(), nil
}

func (s *MockStore) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	state, ok := s.data[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	return persistence.UpsertTurn(state, turn)
}

func (s *MockStore) Delete(ctx context.Context, id string) error {
	delete(s.data, id)
	return nil
}

func (s *MockStore) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

var _ ports.ConversationStore = (*MockStore)(nil)

func newChat(id string) *domain.ConversationState {
	return domain.NewConversation(id, "resp-1", domain.Block{
		ID:       "chat",
		Type:     domain.BlockAIConversation,
		Settings: domain.BlockSettings{StarterPrompt: "How was your stay?", MaxQuestions: 3},
	})
}
