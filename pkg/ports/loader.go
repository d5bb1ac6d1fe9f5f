package ports

import (
	"context"

	"github.com/aretw0/formweave/pkg/domain"
)

// FormLoader defines how form definitions are retrieved.
// This allows the source (Loam, YAML files, Memory) to be decoupled.
type FormLoader interface {
	// LoadForm returns the form with its blocks and connections.
	// Returns domain.ErrFormNotFound if it does not exist.
	LoadForm(ctx context.Context, formID string) (*domain.Form, error)

	// ListForms returns the IDs of all available forms.
	ListForms(ctx context.Context) ([]string, error)
}
