package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

// Mask replaces every match of a PII pattern in a stored answer.
const Mask = "***"

type piiMiddleware struct {
	next     ports.ConversationStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the parts of answers matching the patterns
// (e.g. e-mail addresses or phone numbers) before they reach the store.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ConversationStore) ports.ConversationStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, state *domain.ConversationState) error {
	// Clone to avoid side effects on the in-memory state used by the engine.
	cloned := state.Clone()
	for i := range cloned.Turns {
		cloned.Turns[i].Answer = m.mask(cloned.Turns[i].Answer)
	}
	return m.next.Save(ctx, cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error {
	turn.Answer = m.mask(turn.Answer)
	return m.next.ApplyConversationTurn(ctx, id, turn)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(answer string) string {
	for _, p := range m.patterns {
		answer = p.ReplaceAllString(answer, Mask)
	}
	return answer
}
