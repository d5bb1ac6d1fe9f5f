// Package loam loads form definitions from a Loam repository: Markdown files with YAML
// frontmatter, or plain JSON/YAML documents.
package loam

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/formweave/internal/compiler"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/loam"
)

// Loader adapts the Loam library to the ports.FormLoader interface.
type Loader struct {
	Repo   *loam.TypedRepository[FormMetadata]
	parser *compiler.Parser
}

// New creates a new Loam adapter.
func New(repo *loam.TypedRepository[FormMetadata]) *Loader {
	return &Loader{
		Repo:   repo,
		parser: compiler.NewParser(),
	}
}

// LoadForm reads and parses the form with the given ID.
// The ID is the document's "id" field, or its path without extension.
func (l *Loader) LoadForm(ctx context.Context, formID string) (*domain.Form, error) {
	// Loam resolves "signup" to signup.md; forms whose id differs from their file name need a scan.
	doc, err := l.Repo.Get(ctx, formID)
	if err == nil && formIDOf(doc.ID, doc.Data) == formID {
		return l.build(formID, doc.Data, doc.Content)
	}

	docs, listErr := l.Repo.List(ctx)
	if listErr != nil {
		return nil, fmt.Errorf("loam list failed: %w", listErr)
	}
	for _, d := range docs {
		if formIDOf(d.ID, d.Data) == formID {
			return l.build(formID, d.Data, d.Content)
		}
	}
	return nil, fmt.Errorf("%s: %w", formID, domain.ErrFormNotFound)
}

func (l *Loader) build(formID string, meta FormMetadata, content string) (*domain.Form, error) {
	description := meta.Description
	if description == "" {
		description = strings.TrimSpace(content)
	}

	raw := map[string]any{
		"id":          formID,
		"title":       meta.Title,
		"description": description,
		"blocks":      emptyIfNil(meta.Blocks),
		"connections": emptyIfNil(meta.Connections),
	}
	form, err := l.parser.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("form %s: %w", formID, err)
	}
	return form, nil
}

// ListForms lists all forms in the repository.
func (l *Loader) ListForms(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))

	for _, doc := range docs {
		id := formIDOf(doc.ID, doc.Data)

		// Collision Detection
		if existingPath, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existingPath, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	return ids, nil
}

func formIDOf(docID string, meta FormMetadata) string {
	rawID := meta.ID
	if rawID == "" {
		rawID = docID
	}
	return trimExtension(rawID)
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	if ext != "" {
		return filepath.ToSlash(strings.TrimSuffix(id, ext))
	}
	return filepath.ToSlash(id)
}

func emptyIfNil(items []any) []any {
	if items == nil {
		return []any{}
	}
	return items
}
