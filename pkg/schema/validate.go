package schema

import (
	"encoding/json"
	"sort"
)

// Field is the expectation for one answer.
type Field struct {
	Type     Type
	Required bool
}

// Schema is a map of field names to their expected types.
type Schema map[string]Field

// MarshalJSON serializes the schema as {"field": {"type": "number", "required": true}}.
func (s Schema) MarshalJSON() ([]byte, error) {
	type field struct {
		Type     string `json:"type"`
		Required bool   `json:"required,omitempty"`
	}
	raw := make(map[string]field, len(s))
	for key, f := range s {
		raw[key] = field{Type: f.Type.Name(), Required: f.Required}
	}
	return json.Marshal(raw)
}

// Validate checks if data conforms to the schema.
// Missing optional fields are fine; unknown fields are rejected.
// Returns an error with all validation failures found.
func Validate(schema Schema, data map[string]any) error {
	var errs []error

	for _, fieldName := range sortedKeys(schema) {
		field := schema[fieldName]
		value, exists := data[fieldName]
		if !exists || value == nil {
			if field.Required {
				errs = append(errs, &ValidationError{
					Key:    fieldName,
					Reason: "required",
					Value:  nil,
				})
			}
			continue
		}

		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	for key, value := range data {
		if _, known := schema[key]; !known {
			errs = append(errs, &ValidationError{
				Key:    key,
				Reason: "not defined in schema",
				Value:  value,
			})
		}
	}

	return Aggregate(errs)
}

// ValidateFields validates only specific fields from data against the schema.
// Missing fields are treated as an error.
func ValidateFields(schema Schema, data map[string]any, fields ...string) error {
	var errs []error

	for _, fieldName := range fields {
		field, exists := schema[fieldName]
		if !exists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "not defined in schema",
				Value:  nil,
			})
			continue
		}

		value, fieldExists := data[fieldName]
		if !fieldExists {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: "required",
				Value:  nil,
			})
			continue
		}

		if err := field.Type.Validate(value); err != nil {
			errs = append(errs, &ValidationError{
				Key:    fieldName,
				Reason: err.Error(),
				Value:  value,
			})
		}
	}

	return Aggregate(errs)
}

func sortedKeys(s Schema) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
