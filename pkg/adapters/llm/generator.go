// Package llm generates AI-conversation questions with an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DoneToken is the reply that ends the conversation instead of asking another question.
const DoneToken = "DONE"

// DefaultInstructions is the system prompt sent with every request.
const DefaultInstructions = `You are interviewing a respondent filling in a form.
Read the conversation so far and ask exactly one short, open follow-up question that digs deeper
into what they said. Reply with the question only.
If the respondent has already given enough detail, reply with ` + DoneToken + ` and nothing else.`

// Generator implements ports.QuestionGenerator.
type Generator struct {
	client       *openai.Client
	model        string
	instructions string
	logger       *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithInstructions replaces the system prompt.
func WithInstructions(instructions string) Option {
	return func(g *Generator) {
		g.instructions = instructions
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a generator for the API at baseURL. An empty apiKey tries unauthenticated access,
// which local model servers usually accept.
func New(baseURL, model, apiKey string, opts ...Option) *Generator {
	g := &Generator{
		model:        model,
		instructions: DefaultInstructions,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	// Retries belong to the caller: a failed question falls back immediately.
	options := []option.RequestOption{option.WithBaseURL(baseURL), option.WithMaxRetries(0)}
	if apiKey == "" {
		g.logger.Info("no API key configured, will try unauthenticated access", "base_url", baseURL)
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}

	client := openai.NewClient(options...)
	g.client = &client
	return g
}

// GenerateNextQuestion asks the model for the question of req.TurnIndex.
func (g *Generator) GenerateNextQuestion(ctx context.Context, req domain.QuestionRequest) (domain.GeneratedQuestion, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.instructions),
			openai.UserMessage(Transcript(req)),
		},
		Model: g.model,
	})
	if err != nil {
		return domain.GeneratedQuestion{}, fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return domain.GeneratedQuestion{}, fmt.Errorf("client didn't return any content choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	g.logger.Debug("question generated", "conversation_id", req.ConversationID, "turn", req.TurnIndex)

	if strings.EqualFold(strings.Trim(reply, ".! "), DoneToken) {
		return domain.GeneratedQuestion{Complete: true}, nil
	}
	return domain.GeneratedQuestion{Text: reply}, nil
}

// Transcript renders the conversation so far as the user message of the prompt.
func Transcript(req domain.QuestionRequest) string {
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for i, q := range req.PriorQuestions {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, q)
		if i < len(req.PriorAnswers) {
			fmt.Fprintf(&b, "A%d: %s\n", i+1, req.PriorAnswers[i])
		}
	}
	if req.MaxQuestions > 0 {
		fmt.Fprintf(&b, "\nThis is question %d of at most %d.", req.TurnIndex+1, req.MaxQuestions)
		if req.TurnIndex == req.MaxQuestions-1 {
			b.WriteString(" It is the last one, so ask a closing question.")
		}
	} else {
		fmt.Fprintf(&b, "\nThis is question %d.", req.TurnIndex+1)
	}
	return b.String()
}
