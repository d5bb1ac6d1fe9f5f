package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// ErrInvalidUpdate is returned when a partial connection update has unknown keys or values
// that do not decode into a connection.
var ErrInvalidUpdate = errors.New("invalid connection update")

// connectionPatch mirrors the updatable fields of domain.Connection.
// Nil fields were not part of the update.
type connectionPatch struct {
	SourceBlockID   *string        `mapstructure:"source_block_id"`
	DefaultTargetID *string        `mapstructure:"default_target_id"`
	IsExplicit      *bool          `mapstructure:"is_explicit"`
	Rules           *[]domain.Rule `mapstructure:"rules"`
}

// ApplyConnectionPatch merges partialFields into conn.
// Keys follow the JSON names of domain.Connection; "rules" replaces the whole rule list,
// so applying the same fields twice leaves conn unchanged. Unknown keys are rejected.
func ApplyConnectionPatch(conn *domain.Connection, partialFields map[string]any) error {
	normalized, err := normalize(partialFields)
	if err != nil {
		return err
	}
	if _, ok := normalized["id"]; ok {
		delete(normalized, "id")
	}

	var patch connectionPatch
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       conditionValueHook,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &patch,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(normalized); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}

	if patch.SourceBlockID != nil {
		conn.SourceBlockID = *patch.SourceBlockID
	}
	if patch.DefaultTargetID != nil {
		conn.DefaultTargetID = *patch.DefaultTargetID
	}
	if patch.IsExplicit != nil {
		conn.IsExplicit = *patch.IsExplicit
	}
	if patch.Rules != nil {
		conn.Rules = *patch.Rules
		if conn.Rules == nil {
			conn.Rules = []domain.Rule{}
		}
	}
	return nil
}

// normalize round-trips the fields through JSON so typed values (domain.Rule, ConditionValue)
// and plain maps decode the same way.
func normalize(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidUpdate, err)
	}
	return out, nil
}

var conditionValueType = reflect.TypeOf(domain.ConditionValue{})

func conditionValueHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != conditionValueType || from == conditionValueType {
		return data, nil
	}
	return domain.ParseConditionValue(data)
}

// UpsertTurn writes turn at turn.Index: an existing index is replaced, the frontier index appends.
// Indexes past the frontier return domain.ErrTurnOutOfRange.
func UpsertTurn(state *domain.ConversationState, turn domain.Turn) error {
	switch {
	case turn.Index < 0 || turn.Index > len(state.Turns):
		return fmt.Errorf("turn %d of %d: %w", turn.Index, len(state.Turns), domain.ErrTurnOutOfRange)
	case turn.Index == len(state.Turns):
		state.Turns = append(state.Turns, turn)
	default:
		state.Turns[turn.Index] = turn
	}
	state.Normalize()
	return nil
}
