package editor

import (
	"fmt"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/schema"
)

// Validate reports every problem that would make the connection misbehave. It is the only
// place where bad branching input is rejected; routing itself never fails on it.
// The error is a *schema.AggregateError of *schema.ValidationError.
func (s *ConnectionEditState) Validate() error {
	var errs []error
	add := func(key, reason string, value any) {
		errs = append(errs, &schema.ValidationError{Key: key, Reason: reason, Value: value})
	}

	if s.conn.DefaultTargetID != "" {
		if reason := s.targetProblem(s.conn.DefaultTargetID); reason != "" {
			add("default_target_id", reason, s.conn.DefaultTargetID)
		}
	}

	for i, rule := range s.conn.Rules {
		prefix := fmt.Sprintf("rules[%d]", i)

		if rule.TargetBlockID == "" {
			add(prefix+".target_block_id", "no target selected", nil)
		} else if reason := s.targetProblem(rule.TargetBlockID); reason != "" {
			add(prefix+".target_block_id", reason, rule.TargetBlockID)
		}

		if rule.Expression != "" {
			if err := runtime.CompileExpression(rule.Expression); err != nil {
				add(prefix+".expression", err.Error(), rule.Expression)
			}
			continue
		}

		group := rule.Conditions
		if group.LogicalOperator != domain.LogicAnd && group.LogicalOperator != domain.LogicOr {
			add(prefix+".conditions.logical_operator", "must be AND or OR", string(group.LogicalOperator))
		}
		if len(group.Conditions) == 0 {
			add(prefix+".conditions", "rule has no conditions", nil)
		}
		for j, c := range group.Conditions {
			key := fmt.Sprintf("%s.conditions[%d]", prefix, j)
			for _, problem := range s.conditionProblems(c) {
				add(key+"."+problem.field, problem.reason, problem.value)
			}
		}
	}

	return schema.Aggregate(errs)
}

func (s *ConnectionEditState) targetProblem(blockID string) string {
	b, ok := s.form.Block(blockID)
	switch {
	case !ok:
		return "target block does not exist"
	case b.Deleted:
		return "target block was deleted"
	case blockID == s.conn.SourceBlockID:
		return "a block cannot lead to itself"
	}
	return ""
}

type problem struct {
	field  string
	reason string
	value  any
}

func (s *ConnectionEditState) conditionProblems(c domain.ConditionRule) []problem {
	if c.Field == "" {
		return []problem{{"field", "no field selected", nil}}
	}
	fieldType, ok := s.form.FieldType(c.Field)
	if !ok {
		return []problem{{"field", "unknown field", c.Field}}
	}

	var out []problem
	switch {
	case !c.Operator.Valid():
		out = append(out, problem{"operator", "unknown operator", string(c.Operator)})
	case c.Operator.Numeric() && fieldType != domain.ValueNumber:
		out = append(out, problem{"operator", fmt.Sprintf("%s needs a number field", c.Operator), string(c.Operator)})
	case c.Operator == domain.OpContains && fieldType != domain.ValueString && fieldType != domain.ValueList:
		out = append(out, problem{"operator", "contains needs a text or list field", string(c.Operator)})
	}

	if want := domain.ComparandType(fieldType); c.Value.Type != want {
		out = append(out, problem{"value", fmt.Sprintf("expected a %s value", want), string(c.Value.Type)})
	}
	return out
}
