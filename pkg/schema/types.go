package schema

import (
	"fmt"
	"net/mail"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the accepted format of date answers.
const DateLayout = "2006-01-02"

// Type defines the contract for field validation.
// Implementations determine how values are validated against a type.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "number").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// --- Built-in Type Implementations ---

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	_, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// NumberType validates numbers, optionally within [Min, Max].
// Numeric strings are accepted since form posts carry text.
type NumberType struct {
	Min *float64
	Max *float64
}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Validate(value any) error {
	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case float32:
		n = float64(v)
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("expected number, got %q", v)
		}
		n = parsed
	default:
		return fmt.Errorf("expected number, got %T", value)
	}

	if t.Min != nil && n < *t.Min {
		return fmt.Errorf("must be at least %v", *t.Min)
	}
	if t.Max != nil && n > *t.Max {
		return fmt.Errorf("must be at most %v", *t.Max)
	}
	return nil
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	_, ok := value.(bool)
	if !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// ChoiceType accepts one of a fixed set of option IDs or labels.
type ChoiceType struct {
	allowed []string
}

func (t *ChoiceType) Name() string { return "choice" }

func (t *ChoiceType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if !slices.Contains(t.allowed, s) {
		return fmt.Errorf("%q is not one of the options", s)
	}
	return nil
}

// SliceType validates slices of a specific element type.
type SliceType struct {
	elemType Type
}

func (t *SliceType) Name() string {
	return fmt.Sprintf("[%s]", t.elemType.Name())
}

func (t *SliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("expected slice, got %T", value)
	}

	// Validate each element
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if err := t.elemType.Validate(elem); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// String creates a string type validator.
func String() Type { return &StringType{} }

// Number creates a number validator. Nil bounds are open.
func Number(min, max *float64) Type { return &NumberType{Min: min, Max: max} }

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Choice creates a validator accepting one of allowed.
func Choice(allowed ...string) Type { return &ChoiceType{allowed: allowed} }

// Slice creates a slice type validator for elements of the given type.
func Slice(elemType Type) Type {
	return &SliceType{elemType: elemType}
}

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// Email validates an e-mail address.
func Email() Type {
	return Custom("email", func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if _, err := mail.ParseAddress(s); err != nil {
			return fmt.Errorf("invalid e-mail address %q", s)
		}
		return nil
	})
}

// Date validates a date in DateLayout.
func Date() Type {
	return Custom("date", func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return fmt.Errorf("expected a date like %s", DateLayout)
		}
		return nil
	})
}
