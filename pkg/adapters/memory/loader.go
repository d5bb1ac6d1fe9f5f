package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/formweave/internal/compiler"
	"github.com/aretw0/formweave/pkg/domain"
)

// Loader implements ports.FormLoader over forms held in memory.
type Loader struct {
	forms map[string]*domain.Form
}

// NewLoader parses the provided raw definitions (YAML or JSON), keyed by any name.
func NewLoader(data map[string]string) (*Loader, error) {
	parser := compiler.NewParser()
	forms := make([]*domain.Form, 0, len(data))
	for name, raw := range data {
		form, err := parser.Parse([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", name, err)
		}
		forms = append(forms, form)
	}
	return NewFromForms(forms...)
}

// NewFromForms creates a loader from domain objects.
func NewFromForms(forms ...*domain.Form) (*Loader, error) {
	l := &Loader{forms: make(map[string]*domain.Form, len(forms))}
	for _, f := range forms {
		if f.ID == "" {
			return nil, fmt.Errorf("form missing ID")
		}
		if _, dup := l.forms[f.ID]; dup {
			return nil, fmt.Errorf("duplicate form %s", f.ID)
		}
		l.forms[f.ID] = f
	}
	return l, nil
}

// LoadForm returns the form with the given ID.
func (l *Loader) LoadForm(ctx context.Context, formID string) (*domain.Form, error) {
	form, ok := l.forms[formID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", formID, domain.ErrFormNotFound)
	}
	return form, nil
}

// ListForms returns all form IDs.
func (l *Loader) ListForms(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(l.forms))
	for id := range l.forms {
		ids = append(ids, id)
	}
	sort.Strings(ids) // Deterministic order
	return ids, nil
}
