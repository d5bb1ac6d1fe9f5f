package domain

import "time"

// Phase is the top-level state of a conversation.
type Phase string

const (
	PhaseAwaitingFirstAnswer Phase = "awaiting_first_answer"
	PhaseInProgress          Phase = "in_progress"
	PhaseComplete            Phase = "complete"
)

// Turn is one question/answer exchange of an AI-conversation block.
type Turn struct {
	Index      int       `json:"index"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	AnsweredAt time.Time `json:"answered_at"`
}

// ConversationState is the state of the conversation attached to one (block, response) pair.
// It is a value object: runtime operations clone it and return the next state.
type ConversationState struct {
	ID         string `json:"id"`
	BlockID    string `json:"block_id"`
	ResponseID string `json:"response_id"`

	// StarterPrompt and MaxQuestions mirror the block settings. Turn 0's question is always
	// rewritten from StarterPrompt, never trusted from storage.
	StarterPrompt string `json:"starter_prompt"`
	MaxQuestions  int    `json:"max_questions"`

	Turns []Turn `json:"turns"`

	// PendingQuestion is the unanswered question at the frontier.
	// Empty after turn 0 means it still has to be generated.
	PendingQuestion string `json:"pending_question,omitempty"`

	// ActiveIndex is the turn the respondent is viewing; len(Turns) is the frontier.
	ActiveIndex int `json:"active_index"`

	// ExplicitComplete is set when the generator signals the end of the conversation.
	ExplicitComplete bool `json:"explicit_complete,omitempty"`

	// AdvanceFired latches the one-shot advance signal.
	AdvanceFired bool `json:"advance_fired,omitempty"`
	// Left is set once the respondent moved on to another block.
	Left bool `json:"left,omitempty"`
	// Revisiting is set when the respondent came back after leaving. It suppresses auto-advance.
	Revisiting bool `json:"revisiting,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation for an AI-conversation block.
func NewConversation(id, responseID string, block Block) *ConversationState {
	return &ConversationState{
		ID:              id,
		BlockID:         block.ID,
		ResponseID:      responseID,
		StarterPrompt:   block.Settings.StarterPrompt,
		MaxQuestions:    block.Settings.MaxQuestions,
		Turns:           []Turn{},
		PendingQuestion: block.Settings.StarterPrompt,
	}
}

// RawComplete is the completion predicate without the review override.
func (s *ConversationState) RawComplete() bool {
	return s.ExplicitComplete || (s.MaxQuestions > 0 && len(s.Turns) >= s.MaxQuestions)
}

// EffectiveComplete reports completion, except while a past turn is active
// so the review/edit view stays interactive.
func (s *ConversationState) EffectiveComplete() bool {
	if s.ActiveIndex < len(s.Turns) {
		return false
	}
	return s.RawComplete()
}

// Phase reports the top-level state.
func (s *ConversationState) Phase() Phase {
	switch {
	case s.RawComplete():
		return PhaseComplete
	case len(s.Turns) == 0:
		return PhaseAwaitingFirstAnswer
	default:
		return PhaseInProgress
	}
}

// Editing reports whether a past turn is selected.
func (s *ConversationState) Editing() bool {
	return s.ActiveIndex < len(s.Turns)
}

// FrontierQuestion is the question shown at the frontier, or "" if it is not known yet.
func (s *ConversationState) FrontierQuestion() string {
	if len(s.Turns) == 0 {
		return s.StarterPrompt
	}
	return s.PendingQuestion
}

// Questions returns the question text of every turn.
func (s *ConversationState) Questions() []string {
	out := make([]string, len(s.Turns))
	for i, t := range s.Turns {
		out[i] = t.Question
	}
	return out
}

// Answers returns the answer text of every turn.
func (s *ConversationState) Answers() []string {
	out := make([]string, len(s.Turns))
	for i, t := range s.Turns {
		out[i] = t.Answer
	}
	return out
}

// Normalize rewrites turn 0's question from the starter prompt and clamps the active pointer.
func (s *ConversationState) Normalize() {
	if len(s.Turns) > 0 {
		s.Turns[0].Question = s.StarterPrompt
	}
	for i := range s.Turns {
		s.Turns[i].Index = i
	}
	if s.ActiveIndex < 0 {
		s.ActiveIndex = 0
	}
	if s.ActiveIndex > len(s.Turns) {
		s.ActiveIndex = len(s.Turns)
	}
}

// Clone returns a deep copy safe for mutation.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	next := *s
	next.Turns = append([]Turn(nil), s.Turns...)
	return &next
}

// QuestionRequest is what the question generator receives.
type QuestionRequest struct {
	ConversationID string
	BlockID        string
	PriorQuestions []string
	PriorAnswers   []string
	// TurnIndex is the index of the turn the generated question is for.
	TurnIndex    int
	MaxQuestions int
}

// GeneratedQuestion is the generator's reply. Complete ends the conversation instead of asking.
type GeneratedQuestion struct {
	Text     string `json:"text"`
	Complete bool   `json:"complete,omitempty"`
}
