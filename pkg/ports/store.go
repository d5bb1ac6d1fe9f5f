package ports

import (
	"context"

	"github.com/aretw0/formweave/pkg/domain"
)

// ConnectionStore persists branching connections.
// Apply operations are idempotent so callers can retry them freely.
type ConnectionStore interface {
	// Get retrieves a connection by ID.
	// Returns domain.ErrConnectionNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Connection, error)

	// GetBySource retrieves the connection whose source is blockID.
	// Returns domain.ErrConnectionNotFound if the block has none.
	GetBySource(ctx context.Context, blockID string) (*domain.Connection, error)

	// Save creates or replaces a connection.
	Save(ctx context.Context, conn *domain.Connection) error

	// ApplyConnectionUpdate merges partialFields (keyed like the JSON fields of domain.Connection)
	// into the stored connection, creating it if missing. Applying the same fields twice has the
	// same effect as applying them once.
	ApplyConnectionUpdate(ctx context.Context, id string, partialFields map[string]any) (*domain.Connection, error)

	// Delete removes a connection. Deleting a missing connection is not an error.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored connections.
	List(ctx context.Context) ([]string, error)
}

// ConversationStore persists AI-conversation state.
type ConversationStore interface {
	// Save persists the whole conversation state.
	Save(ctx context.Context, state *domain.ConversationState) error

	// Load retrieves a conversation.
	// Returns domain.ErrConversationNotFound if it does not exist.
	Load(ctx context.Context, id string) (*domain.ConversationState, error)

	// ApplyConversationTurn upserts turn at turn.Index. Re-applying the same turn
	// never appends a duplicate.
	ApplyConversationTurn(ctx context.Context, id string, turn domain.Turn) error

	// Delete removes a conversation.
	Delete(ctx context.Context, id string) error

	// List returns the IDs of all stored conversations.
	List(ctx context.Context) ([]string, error)
}
