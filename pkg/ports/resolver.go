package ports

import (
	"context"

	"github.com/aretw0/formweave/pkg/domain"
)

// AnswerResolver looks up answers given to prior blocks.
// It is supplied by the response/session store. domain.Answers satisfies it.
type AnswerResolver interface {
	// Answer returns the answer for blockID (or a synthetic "choice:<optionId>" field)
	// and false when there is none.
	Answer(blockID string) (domain.AnswerValue, bool)
}

// QuestionGenerator produces the next question of an AI-conversation block.
// Implementations may fail; the conversation machine falls back to a fixed question.
type QuestionGenerator interface {
	GenerateNextQuestion(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error)
}

// GeneratorFunc adapts a function to QuestionGenerator.
type GeneratorFunc func(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error)

// GenerateNextQuestion calls f.
func (f GeneratorFunc) GenerateNextQuestion(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error) {
	return f(ctx, req)
}
