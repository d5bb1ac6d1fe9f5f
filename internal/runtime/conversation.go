package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
)

const (
	// FallbackQuestion replaces a question the generator could not produce.
	FallbackQuestion = "Could you tell me more about that?"
	// ClosingQuestion replaces the question of the last slot of a bounded conversation.
	ClosingQuestion = "Is there anything else you would like to share before we wrap up?"
)

// Fallback returns the deterministic question used for turnIndex when generation fails.
func Fallback(turnIndex, maxQuestions int) string {
	if maxQuestions > 0 && turnIndex == maxQuestions-1 {
		return ClosingQuestion
	}
	return FallbackQuestion
}

// Machine drives the turns of AI-conversation blocks.
// Every operation takes the current state and returns the next one; the input is never mutated.
// Persisting the result is up to the caller.
type Machine struct {
	generator ports.QuestionGenerator
	opts      options
}

// NewMachine creates a conversation machine. A nil generator always falls back.
func NewMachine(generator ports.QuestionGenerator, opts ...Option) *Machine {
	return &Machine{
		generator: generator,
		opts:      newOptions(opts),
	}
}

// Outcome is the result of a conversation transition.
type Outcome struct {
	State *domain.ConversationState
	// Advance is the one-shot signal to move on to the next form block.
	Advance bool
	// Generation holds the generator error that was replaced by a fallback question.
	Generation error
	// Abandoned is set when the caller's context ended during generation; the question
	// stays empty until Resume regenerates it.
	Abandoned bool
	// Dropped is set when the answer was not recorded because the regenerated question
	// turned out to be the end of the conversation.
	Dropped bool
}

// SubmitAnswer records answer at turnIndex.
// Submitting at the frontier of a complete conversation returns domain.ErrConversationComplete.
//
// A past index edits that turn's answer in place, leaving every later turn alone, and moves the
// active pointer to the following turn. The frontier index appends a turn with the pending
// question and asks the generator for the next one unless the conversation hit its bound.
// When the pending question has to be regenerated and the generator ends the conversation
// instead, the answer is dropped and the outcome carries the advance signal.
func (m *Machine) SubmitAnswer(ctx context.Context, current *domain.ConversationState, turnIndex int, answer string) (*Outcome, error) {
	if current == nil {
		return nil, domain.ErrConversationNotFound
	}
	st := current.Clone()
	st.Normalize()

	switch {
	case turnIndex < 0 || turnIndex > len(st.Turns):
		return nil, fmt.Errorf("turn %d of %d: %w", turnIndex, len(st.Turns), domain.ErrTurnOutOfRange)

	case turnIndex < len(st.Turns):
		st.Turns[turnIndex].Answer = answer
		st.Turns[turnIndex].AnsweredAt = m.opts.clock()
		st.ActiveIndex = turnIndex + 1
		st.UpdatedAt = m.opts.clock()
		m.emitTurn(ctx, st, turnIndex)
		return m.settle(ctx, &Outcome{State: st}), nil
	}

	if st.RawComplete() {
		return nil, fmt.Errorf("conversation %s: %w", st.ID, domain.ErrConversationComplete)
	}

	// The pending question is missing after an abandoned generation.
	if turnIndex > 0 && st.PendingQuestion == "" {
		regenerated := m.generate(ctx, st)
		if regenerated.Abandoned {
			return regenerated, nil
		}
		st = regenerated.State
		if st.RawComplete() {
			// The generator ended the conversation instead of asking; the answer is not recorded.
			m.opts.logger.Debug("answer dropped, conversation ended on regeneration", "conversation_id", st.ID, "turn", turnIndex)
			regenerated.Dropped = true
			return m.settle(ctx, regenerated), nil
		}
	}

	st.Turns = append(st.Turns, domain.Turn{
		Index:      turnIndex,
		Question:   st.FrontierQuestion(),
		Answer:     answer,
		AnsweredAt: m.opts.clock(),
	})
	st.PendingQuestion = ""
	st.ActiveIndex = len(st.Turns)
	st.UpdatedAt = m.opts.clock()
	st.Normalize()
	m.emitTurn(ctx, st, turnIndex)

	if st.RawComplete() {
		m.opts.logger.Debug("conversation reached its bound", "conversation_id", st.ID, "block_id", st.BlockID)
		return m.settle(ctx, &Outcome{State: st}), nil
	}

	out := m.generate(ctx, st)
	if out.Abandoned {
		return out, nil
	}
	return m.settle(ctx, out), nil
}

// generate asks for the question of the next frontier slot and stores it as pending.
func (m *Machine) generate(ctx context.Context, current *domain.ConversationState) *Outcome {
	st := current.Clone()
	req := domain.QuestionRequest{
		ConversationID: st.ID,
		BlockID:        st.BlockID,
		PriorQuestions: st.Questions(),
		PriorAnswers:   st.Answers(),
		TurnIndex:      len(st.Turns),
		MaxQuestions:   st.MaxQuestions,
	}

	genCtx := ctx
	if m.opts.generationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, m.opts.generationTimeout)
		defer cancel()
	}

	start := time.Now()
	q, err := m.call(genCtx, req)
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		// The caller went away: keep the appended turn, drop the result.
		m.opts.logger.Debug("question generation abandoned", "conversation_id", st.ID, "err", ctx.Err())
		st.PendingQuestion = ""
		return &Outcome{State: st, Abandoned: true}
	}

	if err == nil && !q.Complete && strings.TrimSpace(q.Text) == "" {
		err = errors.New("empty question")
	}

	if err != nil {
		genErr := &domain.GenerationError{ConversationID: st.ID, TurnIndex: req.TurnIndex, Cause: err}
		m.opts.logger.Warn("question generation failed, using fallback",
			"conversation_id", st.ID, "block_id", st.BlockID, "err", err)
		st.PendingQuestion = Fallback(req.TurnIndex, st.MaxQuestions)
		m.emit(ctx, m.opts.hooks.OnGenerationFailed, domain.EventGenerationFailed, st, req.TurnIndex, elapsed, genErr)
		return &Outcome{State: st, Generation: genErr}
	}

	if q.Complete {
		m.opts.logger.Debug("generator completed conversation", "conversation_id", st.ID)
		st.ExplicitComplete = true
		st.PendingQuestion = ""
	} else {
		st.PendingQuestion = strings.TrimSpace(q.Text)
	}
	m.emit(ctx, m.opts.hooks.OnGenerated, domain.EventGenerated, st, req.TurnIndex, elapsed, nil)
	return &Outcome{State: st}
}

func (m *Machine) call(ctx context.Context, req domain.QuestionRequest) (q domain.GeneratedQuestion, err error) {
	if m.generator == nil {
		return q, errors.New("no question generator configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return m.generator.GenerateNextQuestion(ctx, req)
}

// NavigateTo moves the active pointer to turnIndex in [0, len(turns)]. Turns are not touched.
func (m *Machine) NavigateTo(ctx context.Context, current *domain.ConversationState, turnIndex int) (*Outcome, error) {
	if current == nil {
		return nil, domain.ErrConversationNotFound
	}
	if turnIndex < 0 || turnIndex > len(current.Turns) {
		return nil, fmt.Errorf("turn %d of %d: %w", turnIndex, len(current.Turns), domain.ErrTurnOutOfRange)
	}
	st := current.Clone()
	st.ActiveIndex = turnIndex
	return m.settle(ctx, &Outcome{State: st}), nil
}

// Resume prepares a stored conversation for display: turn 0 is re-derived from the starter
// prompt, a completed conversation entered again after leaving is marked as revisited, and a
// missing pending question is regenerated.
func (m *Machine) Resume(ctx context.Context, current *domain.ConversationState) (*Outcome, error) {
	if current == nil {
		return nil, domain.ErrConversationNotFound
	}
	st := current.Clone()
	st.Normalize()

	if st.Left && st.RawComplete() {
		st.Revisiting = true
	}

	if len(st.Turns) > 0 && !st.RawComplete() && st.PendingQuestion == "" {
		out := m.generate(ctx, st)
		if out.Abandoned {
			return out, nil
		}
		return m.settle(ctx, out), nil
	}
	return m.settle(ctx, &Outcome{State: st}), nil
}

// Leave records that the respondent moved on to another block.
func (m *Machine) Leave(current *domain.ConversationState) *domain.ConversationState {
	st := current.Clone()
	if st == nil {
		return nil
	}
	st.Left = true
	st.Revisiting = false
	return st
}

// settle fires the advance signal once the conversation is effectively complete at the
// frontier, at most once, and never while revisiting.
func (m *Machine) settle(ctx context.Context, out *Outcome) *Outcome {
	st := out.State
	if st.AdvanceFired || st.Revisiting || !st.EffectiveComplete() {
		return out
	}
	st.AdvanceFired = true
	out.Advance = true
	m.opts.logger.Debug("conversation complete, advancing", "conversation_id", st.ID, "block_id", st.BlockID)
	m.emit(ctx, m.opts.hooks.OnAdvance, domain.EventAdvance, st, len(st.Turns), 0, nil)
	return out
}

func (m *Machine) emitTurn(ctx context.Context, st *domain.ConversationState, turnIndex int) {
	m.emit(ctx, m.opts.hooks.OnTurnSubmitted, domain.EventTurnSubmitted, st, turnIndex, 0, nil)
}

func (m *Machine) emit(ctx context.Context, hook func(context.Context, *domain.ConversationEvent), eventType domain.EventType, st *domain.ConversationState, turnIndex int, d time.Duration, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.ConversationEvent{
		EventBase:      domain.EventBase{Timestamp: m.opts.clock(), Type: eventType},
		ConversationID: st.ID,
		BlockID:        st.BlockID,
		TurnIndex:      turnIndex,
		Duration:       d,
		Err:            err,
	})
}
