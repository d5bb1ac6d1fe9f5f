package runtime

import (
	"slices"
	"strings"

	"github.com/aretw0/formweave/pkg/domain"
)

// FormAnswers resolves answers for the blocks of one form, including the synthetic
// "choice:<optionId>" fields of choice blocks.
type FormAnswers struct {
	form    *domain.Form
	answers domain.Answers
}

// NewFormAnswers wraps answers given to the blocks of form.
func NewFormAnswers(form *domain.Form, answers domain.Answers) *FormAnswers {
	if answers == nil {
		answers = domain.Answers{}
	}
	return &FormAnswers{form: form, answers: answers}
}

// Answer implements ports.AnswerResolver.
// A choice field resolves to whether the option was selected; it is missing while
// the owning block has no answer.
func (f *FormAnswers) Answer(field string) (domain.AnswerValue, bool) {
	optionID, isChoice := strings.CutPrefix(field, domain.ChoicePrefix)
	if !isChoice {
		return f.answers.Answer(field)
	}
	if f.form == nil {
		return domain.AnswerValue{}, false
	}

	for _, b := range f.form.Blocks {
		opt, ok := b.Option(optionID)
		if !ok {
			continue
		}
		answer, answered := f.answers[b.ID]
		if !answered {
			return domain.AnswerValue{}, false
		}
		return domain.BoolAnswer(selected(answer, opt)), true
	}
	return domain.AnswerValue{}, false
}

// Snapshot exposes the raw answers to expression rules.
func (f *FormAnswers) Snapshot() domain.Answers {
	return f.answers
}

func selected(answer domain.AnswerValue, opt domain.ChoiceOption) bool {
	switch answer.Kind {
	case domain.ValueList:
		return slices.Contains(answer.List, opt.ID) || slices.Contains(answer.List, opt.Label)
	case domain.ValueString:
		return answer.Str == opt.ID || answer.Str == opt.Label
	}
	return false
}

// NextByOrder returns the first active block after blockID by order index.
// It is the positional fallback for domain.ErrNoTargetResolved; false means blockID is last.
func NextByOrder(form *domain.Form, blockID string) (string, bool) {
	current, ok := form.Block(blockID)
	if !ok {
		return "", false
	}
	active := form.ActiveBlocks()
	for i, b := range active {
		if b.ID == blockID {
			if i+1 < len(active) {
				return active[i+1].ID, true
			}
			return "", false
		}
	}
	// A soft-deleted block still knows where it used to sit.
	for _, b := range active {
		if b.Order > current.Order {
			return b.ID, true
		}
	}
	return "", false
}
