// Package editor holds the authoring side of branching: an in-memory edit session over one
// connection, with save-time validation.
package editor

import (
	"errors"
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/google/uuid"
)

var (
	// ErrRuleNotFound is returned when a rule ID is not part of the connection.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrConditionNotFound is returned when a condition ID is not part of the rule.
	ErrConditionNotFound = errors.New("condition not found")
	// ErrInvalidOperator is returned for operators outside domain.Operators.
	ErrInvalidOperator = errors.New("invalid operator")
)

// ConnectionEditState is the working copy of the connection leaving one source block.
// Mutations only touch the working copy; callers persist it (see Patch) once Validate passes.
type ConnectionEditState struct {
	form  *domain.Form
	conn  *domain.Connection
	newID func() string
}

// Option configures an edit session.
type Option func(*ConnectionEditState)

// WithIDGenerator overrides the uuid generator used for new rules and conditions.
func WithIDGenerator(fn func() string) Option {
	return func(s *ConnectionEditState) {
		s.newID = fn
	}
}

// New opens an edit session for the connection of sourceBlockID, creating an empty one if the
// block has none yet.
func New(form *domain.Form, sourceBlockID string, opts ...Option) (*ConnectionEditState, error) {
	if _, ok := form.Block(sourceBlockID); !ok {
		return nil, fmt.Errorf("source %s: %w", sourceBlockID, domain.ErrBlockNotFound)
	}

	s := &ConnectionEditState{
		form:  form,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	if existing, ok := form.ConnectionFor(sourceBlockID); ok {
		s.conn = existing.Clone()
	} else {
		s.conn = &domain.Connection{
			ID:            s.newID(),
			SourceBlockID: sourceBlockID,
			Rules:         []domain.Rule{},
		}
	}
	return s, nil
}

// Connection returns a copy of the working connection.
func (s *ConnectionEditState) Connection() *domain.Connection {
	return s.conn.Clone()
}

// Patch returns the fields to hand to ConnectionStore.ApplyConnectionUpdate.
func (s *ConnectionEditState) Patch() map[string]any {
	return map[string]any{
		"source_block_id":   s.conn.SourceBlockID,
		"default_target_id": s.conn.DefaultTargetID,
		"is_explicit":       s.conn.IsExplicit,
		"rules":             s.Connection().Rules,
	}
}

// Apply merges a partial update, keyed like the JSON fields of domain.Connection, into the
// working copy. The source block cannot change.
func (s *ConnectionEditState) Apply(fields map[string]any) error {
	next := s.conn.Clone()
	if err := persistence.ApplyConnectionPatch(next, fields); err != nil {
		return err
	}
	if next.SourceBlockID != s.conn.SourceBlockID {
		return fmt.Errorf("source_block_id is %s: %w", s.conn.SourceBlockID, persistence.ErrInvalidUpdate)
	}
	s.conn = next
	return nil
}

// SetDefaultTarget picks the block to go to when no rule matches.
// An empty blockID reverts to the positional fallback.
func (s *ConnectionEditState) SetDefaultTarget(blockID string) {
	s.conn.DefaultTargetID = blockID
	s.conn.IsExplicit = blockID != ""
}

// AddRule appends a rule targeting blockID with one blank condition and returns its ID.
func (s *ConnectionEditState) AddRule(targetBlockID string) string {
	rule := domain.Rule{
		ID:            s.newID(),
		TargetBlockID: targetBlockID,
		Conditions: domain.ConditionGroup{
			LogicalOperator: domain.LogicAnd,
			Conditions:      []domain.ConditionRule{s.blankCondition()},
		},
	}
	s.conn.Rules = append(s.conn.Rules, rule)
	return rule.ID
}

// RemoveRule deletes a rule.
func (s *ConnectionEditState) RemoveRule(ruleID string) error {
	_, idx := s.conn.Rule(ruleID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", ruleID, ErrRuleNotFound)
	}
	s.conn.Rules = append(s.conn.Rules[:idx], s.conn.Rules[idx+1:]...)
	return nil
}

// MoveRule moves a rule to position to, shifting the others. Order decides which rule wins.
func (s *ConnectionEditState) MoveRule(ruleID string, to int) error {
	rule, idx := s.conn.Rule(ruleID)
	if idx < 0 {
		return fmt.Errorf("%s: %w", ruleID, ErrRuleNotFound)
	}
	if to < 0 || to >= len(s.conn.Rules) {
		return fmt.Errorf("position %d of %d out of range", to, len(s.conn.Rules))
	}

	moved := *rule
	rest := append(s.conn.Rules[:idx:idx], s.conn.Rules[idx+1:]...)
	rules := make([]domain.Rule, 0, len(s.conn.Rules))
	rules = append(rules, rest[:to]...)
	rules = append(rules, moved)
	rules = append(rules, rest[to:]...)
	s.conn.Rules = rules
	return nil
}

// SetRuleTarget changes where a rule leads.
func (s *ConnectionEditState) SetRuleTarget(ruleID, targetBlockID string) error {
	rule, err := s.rule(ruleID)
	if err != nil {
		return err
	}
	rule.TargetBlockID = targetBlockID
	return nil
}

// SetExpression switches a rule to an expression; an empty expression switches it back to
// its condition group.
func (s *ConnectionEditState) SetExpression(ruleID, expression string) error {
	rule, err := s.rule(ruleID)
	if err != nil {
		return err
	}
	rule.Expression = expression
	return nil
}

// SetLogicalOperator sets how the conditions of a rule combine.
func (s *ConnectionEditState) SetLogicalOperator(ruleID string, op domain.LogicalOperator) error {
	if op != domain.LogicAnd && op != domain.LogicOr {
		return fmt.Errorf("logical operator %q: %w", op, ErrInvalidOperator)
	}
	rule, err := s.rule(ruleID)
	if err != nil {
		return err
	}
	rule.Conditions.LogicalOperator = op
	return nil
}

// AddCondition appends a blank condition to a rule and returns its ID.
func (s *ConnectionEditState) AddCondition(ruleID string) (string, error) {
	rule, err := s.rule(ruleID)
	if err != nil {
		return "", err
	}
	c := s.blankCondition()
	rule.Conditions.Conditions = append(rule.Conditions.Conditions, c)
	return c.ID, nil
}

// RemoveCondition deletes a condition from a rule.
func (s *ConnectionEditState) RemoveCondition(ruleID, conditionID string) error {
	rule, err := s.rule(ruleID)
	if err != nil {
		return err
	}
	for i, c := range rule.Conditions.Conditions {
		if c.ID == conditionID {
			rule.Conditions.Conditions = append(rule.Conditions.Conditions[:i], rule.Conditions.Conditions[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", conditionID, ErrConditionNotFound)
}

// SetConditionField selects the field a condition inspects. The operator resets to equals and
// the value to the default of the field's type ("", 0 or true).
func (s *ConnectionEditState) SetConditionField(ruleID, conditionID, field string) error {
	c, err := s.condition(ruleID, conditionID)
	if err != nil {
		return err
	}
	t, ok := s.form.FieldType(field)
	if !ok {
		return fmt.Errorf("field %s: %w", field, domain.ErrBlockNotFound)
	}
	c.Field = field
	c.Operator = domain.OpEquals
	c.Value = domain.DefaultValue(t)
	return nil
}

// SetConditionOperator changes the comparison of a condition.
func (s *ConnectionEditState) SetConditionOperator(ruleID, conditionID string, op domain.Operator) error {
	if !op.Valid() {
		return fmt.Errorf("operator %q: %w", op, ErrInvalidOperator)
	}
	c, err := s.condition(ruleID, conditionID)
	if err != nil {
		return err
	}
	c.Operator = op
	return nil
}

// SetConditionValue sets the comparand, coerced to the type of the selected field.
func (s *ConnectionEditState) SetConditionValue(ruleID, conditionID string, raw any) error {
	c, err := s.condition(ruleID, conditionID)
	if err != nil {
		return err
	}

	t := domain.ValueString
	if c.Field != "" {
		fieldType, ok := s.form.FieldType(c.Field)
		if !ok {
			return fmt.Errorf("field %s: %w", c.Field, domain.ErrBlockNotFound)
		}
		t = domain.ComparandType(fieldType)
	}

	v, err := domain.ParseConditionValue(map[string]any{"type": string(t), "value": raw})
	if err != nil {
		return fmt.Errorf("condition %s: %w", conditionID, err)
	}
	c.Value = v
	return nil
}

func (s *ConnectionEditState) blankCondition() domain.ConditionRule {
	return domain.ConditionRule{
		ID:       s.newID(),
		Operator: domain.OpEquals,
		Value:    domain.StringValue(""),
	}
}

func (s *ConnectionEditState) rule(ruleID string) (*domain.Rule, error) {
	rule, idx := s.conn.Rule(ruleID)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", ruleID, ErrRuleNotFound)
	}
	return rule, nil
}

func (s *ConnectionEditState) condition(ruleID, conditionID string) (*domain.ConditionRule, error) {
	rule, err := s.rule(ruleID)
	if err != nil {
		return nil, err
	}
	for i := range rule.Conditions.Conditions {
		if rule.Conditions.Conditions[i].ID == conditionID {
			return &rule.Conditions.Conditions[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", conditionID, ErrConditionNotFound)
}
