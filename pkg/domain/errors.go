package domain

import (
	"errors"
	"fmt"
)

// ErrNoTargetResolved is returned when no rule matched and the connection has no default target.
// The caller decides whether to fall back to positional order or end the form.
var ErrNoTargetResolved = errors.New("no target resolved")

// ErrGenerationFailed is returned by question generators that could not produce a question.
var ErrGenerationFailed = errors.New("question generation failed")

// ErrMalformedCondition marks a condition that cannot be evaluated.
var ErrMalformedCondition = errors.New("malformed condition")

// ErrConversationComplete is returned when a new turn is submitted to a complete conversation.
var ErrConversationComplete = errors.New("conversation is complete")

// ErrGenerationInFlight is returned when an answer arrives while the previous question is still being generated.
var ErrGenerationInFlight = errors.New("question generation in flight")

// ErrTurnOutOfRange is returned for turn indexes past the frontier.
var ErrTurnOutOfRange = errors.New("turn index out of range")

// ErrConnectionNotFound is returned when a connection ID cannot be found in the store.
var ErrConnectionNotFound = errors.New("connection not found")

// ErrConversationNotFound is returned when a conversation ID cannot be found in the store.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrFormNotFound is returned when a form ID cannot be found.
var ErrFormNotFound = errors.New("form not found")

// ErrBlockNotFound is returned when a block ID is not part of the form.
var ErrBlockNotFound = errors.New("block not found")

// MalformedConditionError describes why a condition could not be evaluated.
type MalformedConditionError struct {
	ConditionID string
	Field       string
	Operator    Operator
	Reason      string
}

func (e *MalformedConditionError) Error() string {
	return fmt.Sprintf("condition '%s' (%s %s): %s", e.ConditionID, e.Field, e.Operator, e.Reason)
}

func (e *MalformedConditionError) Unwrap() error {
	return ErrMalformedCondition
}

// GenerationError wraps a failed generator call.
type GenerationError struct {
	ConversationID string
	TurnIndex      int
	Cause          error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("conversation '%s' turn %d: %v: %v", e.ConversationID, e.TurnIndex, ErrGenerationFailed, e.Cause)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Cause}
}
