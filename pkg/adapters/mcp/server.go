package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/internal/presentation/graph"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ConversationResult provides a unified structure for conversation tools.
type ConversationResult struct {
	State             *domain.ConversationState `json:"state" jsonschema_description:"The conversation after the operation"`
	Phase             domain.Phase              `json:"phase" jsonschema_description:"awaiting_first_answer, in_progress or complete"`
	EffectiveComplete bool                      `json:"effective_complete" jsonschema_description:"Whether the respondent may move on"`
	Advance           bool                      `json:"advance" jsonschema_description:"Set once, when the form should move to the next block"`
	Dropped           bool                      `json:"dropped,omitempty" jsonschema_description:"Set when the conversation ended before the answer was recorded"`
	Fallback          bool                      `json:"fallback,omitempty" jsonschema_description:"Set when the generator failed and the fallback question is shown"`
}

// Engine defines what the MCP server needs from formweave.
type Engine interface {
	ListForms(ctx context.Context) ([]string, error)
	LoadForm(ctx context.Context, formID string) (*domain.Form, error)
	ResolveNext(ctx context.Context, form *domain.Form, blockID string, answers domain.Answers) (formweave.Next, error)

	StartConversation(ctx context.Context, form *domain.Form, blockID, responseID string) (*session.Result, error)
	SubmitAnswer(ctx context.Context, conversationID string, turnIndex int, answer string) (*session.Result, error)
	NavigateTo(ctx context.Context, conversationID string, turnIndex int) (*session.Result, error)
	LeaveConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)
	Conversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)
}

var _ Engine = (*formweave.Engine)(nil)

// Server exposes formweave routing and conversations as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the MCP server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("formweave-mcp", strings.TrimSpace(formweave.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_forms",
		mcp.WithDescription("List the ids of the available forms."),
	), s.handleListForms)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Render the routing of a form as a Mermaid flowchart."),
		mcp.WithString("form_id", mcp.Required(), mcp.Description("Form ID")),
	), s.handleGetGraph)

	s.mcpServer.AddTool(mcp.NewTool("resolve_next",
		mcp.WithDescription("Resolve the block that follows a block given the answers so far."),
		mcp.WithString("form_id", mcp.Required(), mcp.Description("Form ID")),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("The block just answered")),
		mcp.WithString("answers", mcp.Description("JSON object mapping block ids to answers")),
		mcp.WithOutputSchema[formweave.Next](),
	), mcp.NewStructuredToolHandler(s.handleResolveNext))

	s.mcpServer.AddTool(mcp.NewTool("start_conversation",
		mcp.WithDescription("Open or resume the AI conversation of a response on a block."),
		mcp.WithString("form_id", mcp.Required(), mcp.Description("Form ID")),
		mcp.WithString("block_id", mcp.Required(), mcp.Description("AI conversation block ID")),
		mcp.WithString("response_id", mcp.Required(), mcp.Description("Form response ID")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("submit_answer",
		mcp.WithDescription("Answer a turn. Answering a past turn edits it and keeps later turns."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithNumber("turn_index", mcp.Required(), mcp.Description("Turn being answered")),
		mcp.WithString("answer", mcp.Required(), mcp.Description("Respondent answer")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Select a turn to review or edit."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithNumber("turn_index", mcp.Required(), mcp.Description("Turn to view")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleNavigate))

	s.mcpServer.AddTool(mcp.NewTool("leave_conversation",
		mcp.WithDescription("Record that the respondent moved on to another block."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleLeave))

	s.mcpServer.AddTool(mcp.NewTool("get_conversation",
		mcp.WithDescription("Read the current state of a conversation."),
		mcp.WithString("conversation_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithOutputSchema[ConversationResult](),
	), mcp.NewStructuredToolHandler(s.handleGetConversation))
}

func (s *Server) handleListForms(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := s.engine.ListForms(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	jsonBytes, _ := json.Marshal(ids)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	formID, _ := request.GetArguments()["form_id"].(string)
	form, err := s.engine.LoadForm(ctx, formID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(form, nil)), nil
}

// Handler methods for structured tools

func (s *Server) handleResolveNext(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (formweave.Next, error) {
	formID, _ := args["form_id"].(string)
	blockID, _ := args["block_id"].(string)

	answers := domain.Answers{}
	if raw, ok := args["answers"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &answers); err != nil {
			return formweave.Next{}, fmt.Errorf("invalid answers: %w", err)
		}
	}

	form, err := s.engine.LoadForm(ctx, formID)
	if err != nil {
		return formweave.Next{}, err
	}
	next, err := s.engine.ResolveNext(ctx, form, blockID, answers)
	if errors.Is(err, domain.ErrNoTargetResolved) {
		return formweave.Next{End: true}, nil
	}
	return next, err
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationResult, error) {
	formID, _ := args["form_id"].(string)
	blockID, _ := args["block_id"].(string)
	responseID, _ := args["response_id"].(string)
	if responseID == "" {
		return ConversationResult{}, errors.New("response_id is required")
	}

	form, err := s.engine.LoadForm(ctx, formID)
	if err != nil {
		return ConversationResult{}, err
	}
	res, err := s.engine.StartConversation(ctx, form, blockID, responseID)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("start failed: %w", err)
	}
	return fromResult(res), nil
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationResult, error) {
	id, _ := args["conversation_id"].(string)
	answer, _ := args["answer"].(string)
	turn, err := turnIndex(args)
	if err != nil {
		return ConversationResult{}, err
	}

	res, err := s.engine.SubmitAnswer(ctx, id, turn, answer)
	if err != nil {
		s.logger.Warn("MCP submit_answer rejected", "conversation_id", id, "err", err)
		return ConversationResult{}, fmt.Errorf("submit failed: %w", err)
	}
	return fromResult(res), nil
}

func (s *Server) handleNavigate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationResult, error) {
	id, _ := args["conversation_id"].(string)
	turn, err := turnIndex(args)
	if err != nil {
		return ConversationResult{}, err
	}

	res, err := s.engine.NavigateTo(ctx, id, turn)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("navigate failed: %w", err)
	}
	return fromResult(res), nil
}

func (s *Server) handleLeave(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationResult, error) {
	id, _ := args["conversation_id"].(string)
	st, err := s.engine.LeaveConversation(ctx, id)
	if err != nil {
		return ConversationResult{}, fmt.Errorf("leave failed: %w", err)
	}
	return fromState(st), nil
}

func (s *Server) handleGetConversation(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationResult, error) {
	id, _ := args["conversation_id"].(string)
	st, err := s.engine.Conversation(ctx, id)
	if err != nil {
		return ConversationResult{}, err
	}
	return fromState(st), nil
}

func turnIndex(args map[string]interface{}) (int, error) {
	switch v := args["turn_index"].(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("turn_index must be a whole number, got %v", v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, errors.New("turn_index is required")
	}
}

func fromState(st *domain.ConversationState) ConversationResult {
	return ConversationResult{
		State:             st,
		Phase:             st.Phase(),
		EffectiveComplete: st.EffectiveComplete(),
	}
}

func fromResult(res *session.Result) ConversationResult {
	out := fromState(res.State)
	out.Advance = res.Advance
	out.Dropped = res.Dropped
	out.Fallback = res.Generation != nil
	return out
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("formweave://forms", "Available Forms",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.engine.ListForms(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list forms: %w", err)
		}
		jsonBytes, _ := json.Marshal(ids)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "formweave://forms",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
