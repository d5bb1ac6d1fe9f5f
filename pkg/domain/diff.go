package domain

// ConversationDiff carries the changes between two conversation states.
// It is serialized to JSON so clients can patch their local copy.
type ConversationDiff struct {
	ConversationID string `json:"conversation_id"`

	ActiveIndex     *int    `json:"active_index,omitempty"`
	PendingQuestion *string `json:"pending_question,omitempty"`
	Phase           *Phase  `json:"phase,omitempty"`

	// Turns holds every turn that was appended or whose answer changed.
	Turns []Turn `json:"turns,omitempty"`

	// Advance is set when this transition fired the advance signal.
	Advance bool `json:"advance,omitempty"`
}

// DiffConversation computes the changes from oldState to newState.
// A nil oldState yields the whole new state. Returns nil when nothing changed.
func DiffConversation(oldState, newState *ConversationState) *ConversationDiff {
	if newState == nil {
		return nil
	}

	diff := &ConversationDiff{ConversationID: newState.ID}

	if oldState == nil || oldState.ActiveIndex != newState.ActiveIndex {
		idx := newState.ActiveIndex
		diff.ActiveIndex = &idx
	}
	if oldState == nil || oldState.PendingQuestion != newState.PendingQuestion {
		q := newState.PendingQuestion
		diff.PendingQuestion = &q
	}
	if oldState == nil || oldState.Phase() != newState.Phase() {
		p := newState.Phase()
		diff.Phase = &p
	}
	diff.Turns = diffTurns(oldState, newState)
	diff.Advance = newState.AdvanceFired && (oldState == nil || !oldState.AdvanceFired)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func diffTurns(old, new *ConversationState) []Turn {
	if old == nil {
		if len(new.Turns) == 0 {
			return nil
		}
		return append([]Turn(nil), new.Turns...)
	}

	var changed []Turn
	for i, t := range new.Turns {
		if i >= len(old.Turns) || old.Turns[i].Answer != t.Answer || old.Turns[i].Question != t.Question {
			changed = append(changed, t)
		}
	}
	return changed
}

// IsEmpty reports whether the diff carries no change.
func (d *ConversationDiff) IsEmpty() bool {
	return d.ActiveIndex == nil &&
		d.PendingQuestion == nil &&
		d.Phase == nil &&
		len(d.Turns) == 0 &&
		!d.Advance
}
