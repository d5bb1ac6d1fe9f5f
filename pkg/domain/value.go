package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueType is the declared type of a field's value.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueNumber  ValueType = "number"
	ValueBoolean ValueType = "boolean"
	ValueList    ValueType = "list"
)

// ComparandType returns the type a condition value takes for a field of type t.
// List fields are compared against a single item.
func ComparandType(t ValueType) ValueType {
	if t == ValueList {
		return ValueString
	}
	return t
}

// ConditionValue is the comparand of a condition, tagged with the type fixed when its field was selected.
type ConditionValue struct {
	Type ValueType
	Str  string
	Num  float64
	Bool bool
}

func StringValue(s string) ConditionValue { return ConditionValue{Type: ValueString, Str: s} }

func NumberValue(n float64) ConditionValue { return ConditionValue{Type: ValueNumber, Num: n} }

func BoolValue(b bool) ConditionValue { return ConditionValue{Type: ValueBoolean, Bool: b} }

// DefaultValue returns the reset value for a field of type t: "", 0 or true.
func DefaultValue(t ValueType) ConditionValue {
	switch ComparandType(t) {
	case ValueNumber:
		return NumberValue(0)
	case ValueBoolean:
		return BoolValue(true)
	default:
		return StringValue("")
	}
}

// Interface returns the underlying Go value.
func (v ConditionValue) Interface() any {
	switch v.Type {
	case ValueNumber:
		return v.Num
	case ValueBoolean:
		return v.Bool
	default:
		return v.Str
	}
}

// String renders the value as text, used for string comparisons and labels.
func (v ConditionValue) String() string {
	switch v.Type {
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueBoolean:
		return strconv.FormatBool(v.Bool)
	default:
		return v.Str
	}
}

// AsNumber returns the numeric form of the value, parsing numeric strings.
func (v ConditionValue) AsNumber() (float64, bool) {
	switch v.Type {
	case ValueNumber:
		return v.Num, true
	case ValueString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return n, err == nil
	}
	return 0, false
}

type taggedValue struct {
	Type  ValueType `json:"type"`
	Value any       `json:"value"`
}

// MarshalJSON encodes the value as {"type": ..., "value": ...}.
func (v ConditionValue) MarshalJSON() ([]byte, error) {
	t := v.Type
	if t == "" {
		t = ValueString
	}
	return json.Marshal(taggedValue{Type: t, Value: v.Interface()})
}

// UnmarshalJSON accepts the tagged form or a bare scalar, whose type is then taken from the literal.
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseConditionValue(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseConditionValue builds a ConditionValue from decoded JSON/YAML data.
func ParseConditionValue(raw any) (ConditionValue, error) {
	if m, ok := raw.(map[string]any); ok {
		t, _ := m["type"].(string)
		return coerceConditionValue(ValueType(t), m["value"])
	}
	return coerceConditionValue("", raw)
}

func coerceConditionValue(t ValueType, raw any) (ConditionValue, error) {
	switch t {
	case ValueNumber:
		if s, ok := raw.(string); ok {
			n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return ConditionValue{}, fmt.Errorf("value %q is not a number", s)
			}
			return NumberValue(n), nil
		}
		n, ok := toFloat(raw)
		if !ok {
			return ConditionValue{}, fmt.Errorf("value %v is not a number", raw)
		}
		return NumberValue(n), nil
	case ValueBoolean:
		switch b := raw.(type) {
		case bool:
			return BoolValue(b), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return ConditionValue{}, fmt.Errorf("value %q is not a boolean", b)
			}
			return BoolValue(parsed), nil
		}
		return ConditionValue{}, fmt.Errorf("value %v is not a boolean", raw)
	case ValueString, ValueList:
		if raw == nil {
			return StringValue(""), nil
		}
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
		return StringValue(fmt.Sprintf("%v", raw)), nil
	case "":
		switch x := raw.(type) {
		case nil:
			return StringValue(""), nil
		case string:
			return StringValue(x), nil
		case bool:
			return BoolValue(x), nil
		}
		if n, ok := toFloat(raw); ok {
			return NumberValue(n), nil
		}
		return ConditionValue{}, fmt.Errorf("unsupported condition value %T", raw)
	}
	return ConditionValue{}, fmt.Errorf("unknown value type %q", t)
}

// AnswerValue is a respondent's answer: a string, number, boolean or list of strings.
type AnswerValue struct {
	Kind ValueType
	Str  string
	Num  float64
	Bool bool
	List []string
}

func TextAnswer(s string) AnswerValue { return AnswerValue{Kind: ValueString, Str: s} }

func NumberAnswer(n float64) AnswerValue { return AnswerValue{Kind: ValueNumber, Num: n} }

func BoolAnswer(b bool) AnswerValue { return AnswerValue{Kind: ValueBoolean, Bool: b} }

func ListAnswer(items ...string) AnswerValue {
	return AnswerValue{Kind: ValueList, List: append([]string(nil), items...)}
}

// AnswerOf converts a decoded value into an AnswerValue.
func AnswerOf(raw any) (AnswerValue, bool) {
	switch x := raw.(type) {
	case AnswerValue:
		return x, true
	case string:
		return TextAnswer(x), true
	case bool:
		return BoolAnswer(x), true
	case []string:
		return ListAnswer(x...), true
	case []any:
		items := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return AnswerValue{}, false
			}
			items = append(items, s)
		}
		return ListAnswer(items...), true
	}
	if n, ok := toFloat(raw); ok {
		return NumberAnswer(n), true
	}
	return AnswerValue{}, false
}

// Interface returns the underlying Go value.
func (a AnswerValue) Interface() any {
	switch a.Kind {
	case ValueNumber:
		return a.Num
	case ValueBoolean:
		return a.Bool
	case ValueList:
		return a.List
	default:
		return a.Str
	}
}

// String renders the answer as text.
func (a AnswerValue) String() string {
	switch a.Kind {
	case ValueNumber:
		return strconv.FormatFloat(a.Num, 'f', -1, 64)
	case ValueBoolean:
		return strconv.FormatBool(a.Bool)
	case ValueList:
		return strings.Join(a.List, ", ")
	default:
		return a.Str
	}
}

// AsNumber returns the numeric form of the answer, parsing numeric strings.
func (a AnswerValue) AsNumber() (float64, bool) {
	switch a.Kind {
	case ValueNumber:
		return a.Num, true
	case ValueString:
		n, err := strconv.ParseFloat(strings.TrimSpace(a.Str), 64)
		return n, err == nil
	}
	return 0, false
}

func (a AnswerValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Interface())
}

func (a *AnswerValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := AnswerOf(raw)
	if !ok {
		return fmt.Errorf("unsupported answer value %s", string(data))
	}
	*a = parsed
	return nil
}

// Answers maps block ids to the respondent's answers.
type Answers map[string]AnswerValue

// Answer implements the answer resolver contract.
func (a Answers) Answer(blockID string) (AnswerValue, bool) {
	v, ok := a[blockID]
	return v, ok
}

// Snapshot returns the answers themselves; expression rules read them as a whole.
func (a Answers) Snapshot() Answers {
	return a
}

func toFloat(raw any) (float64, bool) {
	switch n := raw.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
