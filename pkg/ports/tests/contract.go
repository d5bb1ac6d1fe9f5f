package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

// FormLoaderContractTest is a reusable test suite that verifies if an adapter complies with ports.FormLoader.
// expected maps each form ID the loader should serve to the number of blocks it holds.
func FormLoaderContractTest(t *testing.T, loader ports.FormLoader, expected map[string]int) {
	t.Helper()
	ctx := context.Background()

	// 1. Test LoadForm (Success)
	t.Run("LoadForm_Success", func(t *testing.T) {
		for id, blocks := range expected {
			form, err := loader.LoadForm(ctx, id)
			if err != nil {
				t.Fatalf("unexpected error loading form %s: %v", id, err)
			}
			if form.ID != id {
				t.Errorf("form id mismatch: got %q, want %q", form.ID, id)
			}
			if len(form.Blocks) != blocks {
				t.Errorf("block count mismatch for %s: got %d, want %d", id, len(form.Blocks), blocks)
			}
		}
	})

	// 2. Test LoadForm (NotFound)
	t.Run("LoadForm_NotFound", func(t *testing.T) {
		_, err := loader.LoadForm(ctx, "non-existent-form")
		if !errors.Is(err, domain.ErrFormNotFound) {
			t.Errorf("expected ErrFormNotFound, got %v", err)
		}
	})

	// 3. Test ListForms
	t.Run("ListForms", func(t *testing.T) {
		ids, err := loader.ListForms(ctx)
		if err != nil {
			t.Fatalf("unexpected error listing forms: %v", err)
		}

		if len(ids) != len(expected) {
			t.Errorf("expected %d forms, got %d", len(expected), len(ids))
		}

		lookup := make(map[string]bool)
		for _, id := range ids {
			lookup[id] = true
		}

		for id := range expected {
			if !lookup[id] {
				t.Errorf("form %s missing from list", id)
			}
		}
	})
}
