package domain

// Operator compares an answer against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Operators lists the supported operators in display order.
var Operators = []Operator{OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// Numeric reports whether op only applies to numbers.
func (op Operator) Numeric() bool {
	return op == OpGreaterThan || op == OpLessThan
}

// LogicalOperator combines the conditions of a group.
type LogicalOperator string

const (
	LogicAnd LogicalOperator = "AND"
	LogicOr  LogicalOperator = "OR"
)

// ConditionRule checks one field of a prior answer.
type ConditionRule struct {
	ID       string         `json:"id" yaml:"id" mapstructure:"id"`
	Field    string         `json:"field" yaml:"field" mapstructure:"field"`
	Operator Operator       `json:"operator" yaml:"operator" mapstructure:"operator"`
	Value    ConditionValue `json:"value" yaml:"value" mapstructure:"value"`
}

// ConditionGroup composes conditions with a logical operator.
// An empty group never matches.
type ConditionGroup struct {
	LogicalOperator LogicalOperator `json:"logical_operator" yaml:"logical_operator" mapstructure:"logical_operator"`
	Conditions      []ConditionRule `json:"conditions" yaml:"conditions" mapstructure:"conditions"`
}

// Rule routes to TargetBlockID when its conditions hold.
type Rule struct {
	ID            string         `json:"id" yaml:"id" mapstructure:"id"`
	TargetBlockID string         `json:"target_block_id" yaml:"target_block_id" mapstructure:"target_block_id"`
	Conditions    ConditionGroup `json:"conditions" yaml:"conditions" mapstructure:"conditions"`

	// Expression is an alternative to Conditions, written in expr syntax over the answers
	// (e.g. `q1 == "yes" && age > 18`). When set, Conditions is ignored.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty" mapstructure:"expression"`
}

// Connection is the outgoing edge of a source block: a default target plus ordered rules.
// A source block has at most one Connection. Without rules it is unconditional.
type Connection struct {
	ID              string `json:"id" yaml:"id" mapstructure:"id"`
	SourceBlockID   string `json:"source_block_id" yaml:"source_block_id" mapstructure:"source_block_id"`
	DefaultTargetID string `json:"default_target_id,omitempty" yaml:"default_target_id,omitempty" mapstructure:"default_target_id"`

	// IsExplicit is true when the author chose DefaultTargetID deliberately
	// rather than falling back to the next block by order.
	IsExplicit bool   `json:"is_explicit" yaml:"is_explicit" mapstructure:"is_explicit"`
	Rules      []Rule `json:"rules" yaml:"rules" mapstructure:"rules"`
}

// Clone returns a deep copy of the connection.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	next := *c
	next.Rules = make([]Rule, len(c.Rules))
	for i, r := range c.Rules {
		next.Rules[i] = r
		next.Rules[i].Conditions.Conditions = append([]ConditionRule(nil), r.Conditions.Conditions...)
	}
	return &next
}

// Rule returns the rule with the given id.
func (c *Connection) Rule(id string) (*Rule, int) {
	for i := range c.Rules {
		if c.Rules[i].ID == id {
			return &c.Rules[i], i
		}
	}
	return nil, -1
}
