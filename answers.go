package formweave

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/schema"
)

// ParseAnswer turns typed text into the answer of block and validates it against the
// block's schema. Choices accept an option id, label or 1-based position; checkboxes
// accept several, separated by commas. Empty input is (AnswerValue{}, false, nil) unless
// the block is required.
func ParseAnswer(form *domain.Form, block domain.Block, input string) (domain.AnswerValue, bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if block.Required {
			return domain.AnswerValue{}, false, &schema.ValidationError{Key: block.ID, Reason: "required"}
		}
		return domain.AnswerValue{}, false, nil
	}

	var answer domain.AnswerValue
	switch {
	case block.Type == domain.BlockCheckbox:
		var ids []string
		for _, part := range strings.Split(input, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, optionID(block, part))
			}
		}
		answer = domain.ListAnswer(ids...)
	case block.IsChoice():
		answer = domain.TextAnswer(optionID(block, input))
	case block.Type == domain.BlockNumber:
		n, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return domain.AnswerValue{}, false, &schema.ValidationError{Key: block.ID, Reason: "expected a number", Value: input}
		}
		answer = domain.NumberAnswer(n)
	default:
		answer = domain.TextAnswer(input)
	}

	s := schema.ForForm(form)
	if _, ok := s[block.ID]; !ok {
		return domain.AnswerValue{}, false, fmt.Errorf("block %s takes no direct answer", block.ID)
	}
	if err := schema.ValidateFields(s, map[string]any{block.ID: answer.Interface()}, block.ID); err != nil {
		return domain.AnswerValue{}, false, err
	}
	return answer, true, nil
}

// ValidateResponse checks a whole response against the answer schema of form. Answers to
// unknown or non-answerable blocks and ill-typed answers are rejected. A required block must
// be answered only when the answers route through it. The error is a *schema.AggregateError.
func (e *Engine) ValidateResponse(form *domain.Form, answers domain.Answers) error {
	s := schema.ForForm(form)
	visited := e.walk(form, answers)
	for id, field := range s {
		if field.Required && !visited[id] {
			field.Required = false
			s[id] = field
		}
	}

	data := make(map[string]any, len(answers))
	for id, answer := range answers {
		data[id] = answer.Interface()
	}
	return schema.Validate(s, data)
}

// walk returns the blocks a respondent with answers passes through, from the first block on.
// It routes without lifecycle hooks.
func (e *Engine) walk(form *domain.Form, answers domain.Answers) map[string]bool {
	visited := make(map[string]bool)
	active := form.ActiveBlocks()
	if len(active) == 0 {
		return visited
	}
	resolver := runtime.NewFormAnswers(form, answers)

	for id := active[0].ID; id != "" && !visited[id]; {
		visited[id] = true
		conn, _ := form.ConnectionFor(id)
		next, err := runtime.ResolveNextBlock(conn, resolver)
		switch {
		case err == nil:
			id = next
		case errors.Is(err, domain.ErrNoTargetResolved) && e.positionalFallback:
			id, _ = runtime.NextByOrder(form, id)
		default:
			id = ""
		}
	}
	return visited
}

// optionID maps a position, label or id to the option id. Unknown input is returned as is
// and fails validation.
func optionID(block domain.Block, input string) string {
	if n, err := strconv.Atoi(input); err == nil && n >= 1 && n <= len(block.Settings.Options) {
		return block.Settings.Options[n-1].ID
	}
	for _, opt := range block.Settings.Options {
		if opt.ID == input || strings.EqualFold(opt.Label, input) {
			return opt.ID
		}
	}
	return input
}
