package runtime

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

// evaluateCondition applies cond to the answer of its field.
// It returns an error only for conditions that cannot be evaluated; the result is then false.
func evaluateCondition(cond domain.ConditionRule, answers ports.AnswerResolver) (bool, error) {
	if answers == nil {
		return false, nil
	}
	answer, ok := answers.Answer(cond.Field)
	if !ok {
		// No data never satisfies a condition, not even not_equals.
		return false, nil
	}

	switch cond.Operator {
	case domain.OpEquals:
		return equals(cond, answer)
	case domain.OpNotEquals:
		eq, err := equals(cond, answer)
		if err != nil {
			return false, err
		}
		return !eq, nil
	case domain.OpContains:
		return contains(cond, answer)
	case domain.OpGreaterThan, domain.OpLessThan:
		return compare(cond, answer)
	default:
		return false, malformed(cond, "unknown operator")
	}
}

// equals compares using the declared type of the condition value.
func equals(cond domain.ConditionRule, answer domain.AnswerValue) (bool, error) {
	switch cond.Value.Type {
	case domain.ValueNumber:
		n, ok := answer.AsNumber()
		if !ok {
			return false, malformed(cond, fmt.Sprintf("answer %q is not a number", answer.String()))
		}
		return n == cond.Value.Num, nil

	case domain.ValueBoolean:
		switch answer.Kind {
		case domain.ValueBoolean:
			return answer.Bool == cond.Value.Bool, nil
		case domain.ValueString:
			b, err := strconv.ParseBool(strings.TrimSpace(answer.Str))
			if err != nil {
				return false, malformed(cond, fmt.Sprintf("answer %q is not a boolean", answer.Str))
			}
			return b == cond.Value.Bool, nil
		}
		return false, malformed(cond, "answer is not a boolean")

	case domain.ValueString, domain.ValueList, "":
		if answer.Kind == domain.ValueList {
			return len(answer.List) == 1 && answer.List[0] == cond.Value.Str, nil
		}
		return answer.String() == cond.Value.Str, nil
	}
	return false, malformed(cond, "unknown value type "+string(cond.Value.Type))
}

func contains(cond domain.ConditionRule, answer domain.AnswerValue) (bool, error) {
	needle := cond.Value.String()
	switch answer.Kind {
	case domain.ValueList:
		return slices.Contains(answer.List, needle), nil
	case domain.ValueString:
		return strings.Contains(answer.Str, needle), nil
	}
	return false, malformed(cond, "contains needs a text or list answer")
}

func compare(cond domain.ConditionRule, answer domain.AnswerValue) (bool, error) {
	limit, ok := cond.Value.AsNumber()
	if !ok {
		return false, malformed(cond, "comparand is not a number")
	}
	n, ok := answer.AsNumber()
	if !ok {
		// Non-numeric answers never satisfy an ordering operator.
		return false, malformed(cond, fmt.Sprintf("answer %q is not a number", answer.String()))
	}
	if cond.Operator == domain.OpGreaterThan {
		return n > limit, nil
	}
	return n < limit, nil
}

func malformed(cond domain.ConditionRule, reason string) error {
	return &domain.MalformedConditionError{
		ConditionID: cond.ID,
		Field:       cond.Field,
		Operator:    cond.Operator,
		Reason:      reason,
	}
}
