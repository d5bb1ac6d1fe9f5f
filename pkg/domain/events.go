package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventRuleMatched        EventType = "rule_matched"
	EventDefaultTarget      EventType = "default_target"
	EventNoTarget           EventType = "no_target"
	EventMalformedCondition EventType = "malformed_condition"
	EventTurnSubmitted      EventType = "turn_submitted"
	EventGenerated          EventType = "question_generated"
	EventGenerationFailed   EventType = "generation_failed"
	EventAdvance            EventType = "advance"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// RoutingEvent describes the outcome of resolving the next block.
type RoutingEvent struct {
	EventBase
	ConnectionID  string `json:"connection_id"`
	SourceBlockID string `json:"source_block_id"`
	RuleID        string `json:"rule_id,omitempty"`
	TargetBlockID string `json:"target_block_id,omitempty"`
}

// ConditionEvent reports a condition that could not be evaluated.
type ConditionEvent struct {
	EventBase
	ConnectionID string `json:"connection_id"`
	RuleID       string `json:"rule_id"`
	Err          error  `json:"-"`
}

// ConversationEvent describes a conversation transition.
type ConversationEvent struct {
	EventBase
	ConversationID string        `json:"conversation_id"`
	BlockID        string        `json:"block_id"`
	TurnIndex      int           `json:"turn_index"`
	Duration       time.Duration `json:"duration,omitempty"`
	Err            error         `json:"-"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnRouted             func(context.Context, *RoutingEvent)
	OnMalformedCondition func(context.Context, *ConditionEvent)
	OnTurnSubmitted      func(context.Context, *ConversationEvent)
	OnGenerated          func(context.Context, *ConversationEvent)
	OnGenerationFailed   func(context.Context, *ConversationEvent)
	OnAdvance            func(context.Context, *ConversationEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnRouted:             chain(h.OnRouted, other.OnRouted),
		OnMalformedCondition: chain(h.OnMalformedCondition, other.OnMalformedCondition),
		OnTurnSubmitted:      chain(h.OnTurnSubmitted, other.OnTurnSubmitted),
		OnGenerated:          chain(h.OnGenerated, other.OnGenerated),
		OnGenerationFailed:   chain(h.OnGenerationFailed, other.OnGenerationFailed),
		OnAdvance:            chain(h.OnAdvance, other.OnAdvance),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
