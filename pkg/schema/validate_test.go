package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/formweave/pkg/domain"
)

func ptr(f float64) *float64 { return &f }

func testForm() *domain.Form {
	return &domain.Form{
		ID: "signup",
		Blocks: []domain.Block{
			{ID: "intro", Type: domain.BlockStatement, Order: 0},
			{ID: "name", Type: domain.BlockShortText, Order: 1, Required: true},
			{ID: "age", Type: domain.BlockNumber, Order: 2, Settings: domain.BlockSettings{Min: ptr(18), Max: ptr(120)}},
			{ID: "email", Type: domain.BlockEmail, Order: 3},
			{ID: "plan", Type: domain.BlockMultipleChoice, Order: 4, Settings: domain.BlockSettings{
				Options: []domain.ChoiceOption{{ID: "opt-free", Label: "Free"}, {ID: "opt-pro", Label: "Pro"}},
			}},
			{ID: "extras", Type: domain.BlockCheckbox, Order: 5, Settings: domain.BlockSettings{
				Options: []domain.ChoiceOption{{ID: "opt-a", Label: "A"}},
			}},
			{ID: "born", Type: domain.BlockDate, Order: 6},
			{ID: "chat", Type: domain.BlockAIConversation, Order: 7},
			{ID: "old", Type: domain.BlockShortText, Order: 8, Deleted: true},
		},
	}
}

func TestForForm_Fields(t *testing.T) {
	s := ForForm(testForm())

	for _, skipped := range []string{"intro", "chat", "old"} {
		if _, ok := s[skipped]; ok {
			t.Errorf("block %s should not be part of the schema", skipped)
		}
	}
	if !s["name"].Required {
		t.Error("name should be required")
	}
	if got := s["extras"].Type.Name(); got != "[choice]" {
		t.Errorf("extras type = %q, want [choice]", got)
	}
}

func TestValidate_Success(t *testing.T) {
	data := map[string]any{
		"name":   "Ada",
		"age":    36.0,
		"email":  "ada@example.com",
		"plan":   "Pro",
		"extras": []any{"opt-a"},
		"born":   "1815-12-10",
	}

	if err := Validate(ForForm(testForm()), data); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	data := map[string]any{
		"age":     "12",
		"email":   "not-an-email",
		"plan":    "Enterprise",
		"extras":  []any{"opt-z"},
		"born":    "10/12/1815",
		"unknown": true,
	}

	err := Validate(ForForm(testForm()), data)
	if err == nil {
		t.Fatal("Validate() should return error")
	}

	errs := ValidationErrors(err)
	keys := map[string]bool{}
	for _, e := range errs {
		var ve *ValidationError
		if !errors.As(e, &ve) {
			t.Fatalf("error should be *ValidationError, got %T", e)
		}
		keys[ve.Key] = true
	}

	for _, want := range []string{"name", "age", "email", "plan", "extras", "born", "unknown"} {
		if !keys[want] {
			t.Errorf("expected a validation error for %s, got %v", want, errs)
		}
	}
}

func TestValidateFields(t *testing.T) {
	s := ForForm(testForm())

	if err := ValidateFields(s, map[string]any{"age": 40}, "age"); err != nil {
		t.Errorf("ValidateFields() error = %v, want nil", err)
	}
	if err := ValidateFields(s, map[string]any{}, "age", "ghost"); len(ValidationErrors(err)) != 2 {
		t.Errorf("ValidateFields() = %v, want 2 errors", err)
	}
}

func TestNumberType_Bounds(t *testing.T) {
	typ := Number(ptr(0), ptr(10))
	tests := []struct {
		value   any
		wantErr bool
	}{
		{5, false},
		{0.0, false},
		{"7", false},
		{-1, true},
		{11.5, true},
		{"abc", true},
		{true, true},
	}

	for _, tt := range tests {
		err := typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestSchema_MarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Schema{"age": {Type: Number(nil, nil), Required: true}})
	if err != nil {
		t.Fatalf("MarshalJSON() error = %v", err)
	}
	if string(raw) != `{"age":{"type":"number","required":true}}` {
		t.Errorf("MarshalJSON() = %s", raw)
	}
}

func TestAggregateError_Unwrap(t *testing.T) {
	inner := &ValidationError{Key: "x", Reason: "bad"}
	err := Aggregate([]error{inner})

	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Key != "x" {
		t.Errorf("errors.As should find the inner ValidationError, got %v", err)
	}
	if Aggregate(nil) != nil {
		t.Error("Aggregate(nil) should be nil")
	}
}
