// Package schema validates respondent answers against the blocks of a form.
//
// It defines a small type system (text, number, bool, choice, e-mail, date, lists and custom
// validators). A Schema maps block IDs to fields; ForForm derives one from a form:
//
//	s := schema.ForForm(form)
//	if err := schema.Validate(s, map[string]any{"age": 42, "plan": "opt-pro"}); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        // Handle each *ValidationError
//	    }
//	}
//
// Custom validators can be registered for domain-specific checks:
//
//	postcode := schema.Custom("postcode", func(v any) error {
//	    s, ok := v.(string)
//	    if !ok || len(s) != 5 {
//	        return fmt.Errorf("expected a 5 digit postcode")
//	    }
//	    return nil
//	})
//
// The same error types are used by the connection editor for save-time validation.
package schema
