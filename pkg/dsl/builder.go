package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/formweave/internal/validator"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/domain"
)

// Builder manages the form construction.
type Builder struct {
	form   domain.Form
	blocks map[string]*BlockBuilder
	order  []string
	errs   []error
}

// New creates a new form builder.
func New(formID string) *Builder {
	return &Builder{
		form:   domain.Form{ID: formID},
		blocks: make(map[string]*BlockBuilder),
	}
}

// Title sets the form title.
func (b *Builder) Title(title string) *Builder {
	b.form.Title = title
	return b
}

// Describe sets the form description.
func (b *Builder) Describe(description string) *Builder {
	b.form.Description = description
	return b
}

// Add creates a new block in the form.
// If the block already exists, it returns the existing builder.
func (b *Builder) Add(id string) *BlockBuilder {
	if bb, ok := b.blocks[id]; ok {
		return bb
	}
	bb := &BlockBuilder{
		block: domain.Block{
			ID:    id,
			Type:  domain.BlockShortText,
			Order: len(b.order),
		},
		builder: b,
	}
	b.blocks[id] = bb
	b.order = append(b.order, id)
	return bb
}

// Form assembles the form without validating its graph.
func (b *Builder) Form() (*domain.Form, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	form := b.form
	form.Blocks = make([]domain.Block, 0, len(b.order))
	form.Connections = nil
	for _, id := range b.order {
		bb := b.blocks[id]
		form.Blocks = append(form.Blocks, bb.block)
		if conn := bb.connection(); conn != nil {
			form.Connections = append(form.Connections, *conn)
		}
	}
	return &form, nil
}

// Build validates the form and compiles it into a memory loader.
func (b *Builder) Build() (*memory.Loader, error) {
	form, err := b.Form()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateForm(form); err != nil {
		return nil, fmt.Errorf("invalid form %s: %w", form.ID, err)
	}

	loader, err := memory.NewFromForms(form)
	if err != nil {
		return nil, fmt.Errorf("failed to build memory loader: %w", err)
	}
	return loader, nil
}
