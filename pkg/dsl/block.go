package dsl

import (
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
)

// Condition is one comparison of a branch, built with When.
type Condition struct {
	field string
	op    domain.Operator
	value any
}

// When compares the answer stored under field against value.
// value may be a string, a number or a bool.
func When(field string, op domain.Operator, value any) Condition {
	return Condition{field: field, op: op, value: value}
}

// BlockBuilder provides a fluent API for configuring a block.
type BlockBuilder struct {
	block     domain.Block
	defaultTo string
	rules     []domain.Rule
	builder   *Builder
}

func (bb *BlockBuilder) setType(t domain.BlockType, title string) *BlockBuilder {
	bb.block.Type = t
	bb.block.Title = title
	return bb
}

// ShortText makes the block a single-line text question.
func (bb *BlockBuilder) ShortText(title string) *BlockBuilder {
	return bb.setType(domain.BlockShortText, title)
}

// LongText makes the block a multi-line text question.
func (bb *BlockBuilder) LongText(title string) *BlockBuilder {
	return bb.setType(domain.BlockLongText, title)
}

// Email makes the block an email question.
func (bb *BlockBuilder) Email(title string) *BlockBuilder {
	return bb.setType(domain.BlockEmail, title)
}

// Date makes the block a date question.
func (bb *BlockBuilder) Date(title string) *BlockBuilder {
	return bb.setType(domain.BlockDate, title)
}

// Number makes the block a numeric question.
func (bb *BlockBuilder) Number(title string) *BlockBuilder {
	return bb.setType(domain.BlockNumber, title)
}

// MultipleChoice makes the block a single-choice question. Add options with Option.
func (bb *BlockBuilder) MultipleChoice(title string) *BlockBuilder {
	return bb.setType(domain.BlockMultipleChoice, title)
}

// Checkbox makes the block a multi-choice question.
func (bb *BlockBuilder) Checkbox(title string) *BlockBuilder {
	return bb.setType(domain.BlockCheckbox, title)
}

// Dropdown makes the block a dropdown question.
func (bb *BlockBuilder) Dropdown(title string) *BlockBuilder {
	return bb.setType(domain.BlockDropdown, title)
}

// Statement makes the block a display-only block.
func (bb *BlockBuilder) Statement(title string) *BlockBuilder {
	return bb.setType(domain.BlockStatement, title)
}

// Conversation makes the block an AI conversation opened by starter and bounded to maxQuestions turns.
// Zero maxQuestions leaves it unbounded.
func (bb *BlockBuilder) Conversation(title, starter string, maxQuestions int) *BlockBuilder {
	bb.setType(domain.BlockAIConversation, title)
	bb.block.Settings.StarterPrompt = starter
	bb.block.Settings.MaxQuestions = maxQuestions
	return bb
}

// Describe sets the block description.
func (bb *BlockBuilder) Describe(description string) *BlockBuilder {
	bb.block.Description = description
	return bb
}

// Required marks the block as mandatory.
func (bb *BlockBuilder) Required() *BlockBuilder {
	bb.block.Required = true
	return bb
}

// Option appends a choice option.
func (bb *BlockBuilder) Option(id, label string) *BlockBuilder {
	bb.block.Settings.Options = append(bb.block.Settings.Options, domain.ChoiceOption{ID: id, Label: label})
	return bb
}

// Range bounds a numeric answer.
func (bb *BlockBuilder) Range(min, max float64) *BlockBuilder {
	bb.block.Settings.Min = &min
	bb.block.Settings.Max = &max
	return bb
}

// Go sets the default target taken when no branch matches.
func (bb *BlockBuilder) Go(target string) *BlockBuilder {
	bb.defaultTo = target
	return bb
}

// Branch adds a rule leading to target when every condition holds.
func (bb *BlockBuilder) Branch(target string, conds ...Condition) *BlockBuilder {
	return bb.addRule(target, domain.LogicAnd, conds)
}

// BranchAny adds a rule leading to target when at least one condition holds.
func (bb *BlockBuilder) BranchAny(target string, conds ...Condition) *BlockBuilder {
	return bb.addRule(target, domain.LogicOr, conds)
}

// Expression adds a rule leading to target when expr evaluates to true.
func (bb *BlockBuilder) Expression(target, expr string) *BlockBuilder {
	bb.rules = append(bb.rules, domain.Rule{
		ID:            bb.ruleID(),
		TargetBlockID: target,
		Conditions:    domain.ConditionGroup{LogicalOperator: domain.LogicAnd},
		Expression:    expr,
	})
	return bb
}

func (bb *BlockBuilder) addRule(target string, logic domain.LogicalOperator, conds []Condition) *BlockBuilder {
	rule := domain.Rule{
		ID:            bb.ruleID(),
		TargetBlockID: target,
		Conditions:    domain.ConditionGroup{LogicalOperator: logic},
	}
	for i, c := range conds {
		value, err := domain.ParseConditionValue(c.value)
		if err != nil {
			bb.builder.errs = append(bb.builder.errs, fmt.Errorf("block %s: %w", bb.block.ID, err))
			continue
		}
		rule.Conditions.Conditions = append(rule.Conditions.Conditions, domain.ConditionRule{
			ID:       fmt.Sprintf("%s-c%d", rule.ID, i+1),
			Field:    c.field,
			Operator: c.op,
			Value:    value,
		})
	}
	bb.rules = append(bb.rules, rule)
	return bb
}

func (bb *BlockBuilder) ruleID() string {
	return fmt.Sprintf("rule-%s-%d", bb.block.ID, len(bb.rules)+1)
}

// Delete soft-deletes the block.
func (bb *BlockBuilder) Delete() *BlockBuilder {
	bb.block.Deleted = true
	return bb
}

func (bb *BlockBuilder) connection() *domain.Connection {
	if bb.defaultTo == "" && len(bb.rules) == 0 {
		return nil
	}
	return &domain.Connection{
		ID:              "conn-" + bb.block.ID,
		SourceBlockID:   bb.block.ID,
		DefaultTargetID: bb.defaultTo,
		IsExplicit:      true,
		Rules:           bb.rules,
	}
}

// Build returns the underlying domain.Block.
func (bb *BlockBuilder) Build() domain.Block {
	return bb.block
}
