package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/internal/presentation/graph"
	"github.com/aretw0/formweave/internal/sanitize"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/aretw0/formweave/pkg/schema"
	"github.com/aretw0/formweave/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the part of formweave.Engine the HTTP API serves.
type Engine interface {
	ListForms(ctx context.Context) ([]string, error)
	LoadForm(ctx context.Context, formID string) (*domain.Form, error)
	ResolveNext(ctx context.Context, form *domain.Form, blockID string, answers domain.Answers) (formweave.Next, error)
	UpdateConnection(ctx context.Context, id string, fields map[string]any) (*domain.Connection, error)
	UpdateFormConnection(ctx context.Context, formID, blockID string, fields map[string]any) (*domain.Connection, error)
	ValidateResponse(form *domain.Form, answers domain.Answers) error

	StartConversation(ctx context.Context, form *domain.Form, blockID, responseID string) (*session.Result, error)
	SubmitAnswer(ctx context.Context, conversationID string, turnIndex int, answer string) (*session.Result, error)
	NavigateTo(ctx context.Context, conversationID string, turnIndex int) (*session.Result, error)
	LeaveConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)
	Conversation(ctx context.Context, conversationID string) (*domain.ConversationState, error)
	DeleteConversation(ctx context.Context, conversationID string) error
}

var _ Engine = (*formweave.Engine)(nil)

// Server serves forms and their conversations over HTTP.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes the gatherer on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine:  engine,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, s.logRequests, enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/forms", func(r chi.Router) {
		r.Get("/", s.ListForms)
		r.Route("/{formID}", func(r chi.Router) {
			r.Get("/", s.GetForm)
			r.Get("/graph", s.GetGraph)
			r.Get("/schema", s.GetSchema)
			r.Post("/responses/validate", s.ValidateResponse)
			r.Post("/blocks/{blockID}/next", s.ResolveNext)
			r.Patch("/blocks/{blockID}/connection", s.UpdateFormConnection)
			r.Post("/blocks/{blockID}/conversations", s.StartConversation)
		})
	})
	r.Patch("/connections/{connectionID}", s.UpdateConnection)
	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Get("/", s.GetConversation)
		r.Delete("/", s.DeleteConversation)
		r.Post("/turns", s.SubmitAnswer)
		r.Post("/navigate", s.Navigate)
		r.Post("/leave", s.Leave)
		r.Get("/events", s.SubscribeEvents)
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	var validation *schema.ValidationError
	switch {
	case errors.Is(err, domain.ErrFormNotFound),
		errors.Is(err, domain.ErrBlockNotFound),
		errors.Is(err, domain.ErrConnectionNotFound),
		errors.Is(err, domain.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGenerationInFlight),
		errors.Is(err, domain.ErrConversationComplete):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTurnOutOfRange),
		errors.Is(err, sanitize.ErrTooLarge),
		errors.Is(err, sanitize.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoTargetResolved),
		errors.Is(err, formweave.ErrNotConversation),
		errors.Is(err, persistence.ErrInvalidUpdate),
		errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{
		"app":     "formweave-http",
		"version": strings.TrimSpace(formweave.Version),
	})
}

// ListForms handles GET /forms.
func (s *Server) ListForms(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.ListForms(r.Context())
	if err != nil {
		s.fail(w, r, "list forms", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	render.JSON(w, r, ids)
}

// GetForm handles GET /forms/{formID}.
func (s *Server) GetForm(w http.ResponseWriter, r *http.Request) {
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	render.JSON(w, r, form)
}

// GetGraph handles GET /forms/{formID}/graph, answering with a Mermaid flowchart.
// The optional "current" query parameter highlights a block.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	var overlay *graph.GraphOverlay
	if current := r.URL.Query().Get("current"); current != "" {
		overlay = &graph.GraphOverlay{CurrentBlock: current}
	}
	render.PlainText(w, r, graph.GenerateMermaid(form, overlay))
}

// ResolveNextRequest carries the answers collected so far.
type ResolveNextRequest struct {
	Answers domain.Answers `json:"answers"`
}

// ResolveNext handles POST /forms/{formID}/blocks/{blockID}/next.
func (s *Server) ResolveNext(w http.ResponseWriter, r *http.Request) {
	var body ResolveNextRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	next, err := s.Engine.ResolveNext(r.Context(), form, chi.URLParam(r, "blockID"), body.Answers)
	if err != nil {
		s.fail(w, r, "resolve next", err)
		return
	}
	render.JSON(w, r, next)
}

// GetSchema handles GET /forms/{formID}/schema.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	render.JSON(w, r, schema.ForForm(form))
}

// ValidateResponseResult is returned when a response passes validation.
type ValidateResponseResult struct {
	Valid bool `json:"valid"`
}

// ValidateResponse handles POST /forms/{formID}/responses/validate.
func (s *Server) ValidateResponse(w http.ResponseWriter, r *http.Request) {
	var body ResolveNextRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	if err := s.Engine.ValidateResponse(form, body.Answers); err != nil {
		s.fail(w, r, "validate response", err)
		return
	}
	render.JSON(w, r, ValidateResponseResult{Valid: true})
}

// UpdateConnection handles PATCH /connections/{connectionID}.
func (s *Server) UpdateConnection(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := render.DecodeJSON(r.Body, &fields); err != nil {
		s.badRequest(w, r, err)
		return
	}
	conn, err := s.Engine.UpdateConnection(r.Context(), chi.URLParam(r, "connectionID"), fields)
	if err != nil {
		s.fail(w, r, "update connection", err)
		return
	}
	render.JSON(w, r, conn)
}

// UpdateFormConnection handles PATCH /forms/{formID}/blocks/{blockID}/connection.
// The patched connection is validated against the form before it is stored.
func (s *Server) UpdateFormConnection(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := render.DecodeJSON(r.Body, &fields); err != nil {
		s.badRequest(w, r, err)
		return
	}
	conn, err := s.Engine.UpdateFormConnection(r.Context(), chi.URLParam(r, "formID"), chi.URLParam(r, "blockID"), fields)
	if err != nil {
		s.fail(w, r, "update connection", err)
		return
	}
	render.JSON(w, r, conn)
}

// ConversationResponse is returned by every conversation transition.
type ConversationResponse struct {
	State             *domain.ConversationState `json:"state"`
	Diff              *domain.ConversationDiff  `json:"diff,omitempty"`
	Phase             domain.Phase              `json:"phase"`
	EffectiveComplete bool                      `json:"effective_complete"`
	Advance           bool                      `json:"advance"`
	Abandoned         bool                      `json:"abandoned,omitempty"`
	// Dropped is set when the conversation ended before the submitted answer was recorded.
	Dropped bool `json:"dropped,omitempty"`
	// Fallback is set when the generator failed and the fallback question was used.
	Fallback bool `json:"fallback,omitempty"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, res *session.Result) {
	if res.Diff != nil {
		if payload, err := json.Marshal(res.Diff); err == nil {
			s.Streams.Broadcast(res.State.ID, string(payload))
		}
	}
	render.JSON(w, r, ConversationResponse{
		State:             res.State,
		Diff:              res.Diff,
		Phase:             res.State.Phase(),
		EffectiveComplete: res.State.EffectiveComplete(),
		Advance:           res.Advance,
		Abandoned:         res.Abandoned,
		Dropped:           res.Dropped,
		Fallback:          res.Generation != nil,
	})
}

// StartConversationRequest names the response the conversation belongs to.
type StartConversationRequest struct {
	ResponseID string `json:"response_id"`
}

// StartConversation handles POST /forms/{formID}/blocks/{blockID}/conversations.
func (s *Server) StartConversation(w http.ResponseWriter, r *http.Request) {
	var body StartConversationRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	if body.ResponseID == "" {
		s.badRequest(w, r, errors.New("response_id is required"))
		return
	}
	form, err := s.Engine.LoadForm(r.Context(), chi.URLParam(r, "formID"))
	if err != nil {
		s.fail(w, r, "load form", err)
		return
	}
	res, err := s.Engine.StartConversation(r.Context(), form, chi.URLParam(r, "blockID"), body.ResponseID)
	if err != nil {
		s.fail(w, r, "start conversation", err)
		return
	}
	s.respond(w, r, res)
}

// TurnRequest addresses one turn of a conversation.
type TurnRequest struct {
	TurnIndex int    `json:"turn_index"`
	Answer    string `json:"answer,omitempty"`
}

// SubmitAnswer handles POST /conversations/{conversationID}/turns.
func (s *Server) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.Engine.SubmitAnswer(r.Context(), chi.URLParam(r, "conversationID"), body.TurnIndex, body.Answer)
	if err != nil {
		s.fail(w, r, "submit answer", err)
		return
	}
	s.respond(w, r, res)
}

// Navigate handles POST /conversations/{conversationID}/navigate.
func (s *Server) Navigate(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		s.badRequest(w, r, err)
		return
	}
	res, err := s.Engine.NavigateTo(r.Context(), chi.URLParam(r, "conversationID"), body.TurnIndex)
	if err != nil {
		s.fail(w, r, "navigate", err)
		return
	}
	s.respond(w, r, res)
}

// Leave handles POST /conversations/{conversationID}/leave.
func (s *Server) Leave(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.LeaveConversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.fail(w, r, "leave conversation", err)
		return
	}
	render.JSON(w, r, state)
}

// GetConversation handles GET /conversations/{conversationID}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.Conversation(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		s.fail(w, r, "load conversation", err)
		return
	}
	render.JSON(w, r, ConversationResponse{
		State:             state,
		Phase:             state.Phase(),
		EffectiveComplete: state.EffectiveComplete(),
	})
}

// DeleteConversation handles DELETE /conversations/{conversationID}.
func (s *Server) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.DeleteConversation(r.Context(), chi.URLParam(r, "conversationID")); err != nil {
		s.fail(w, r, "delete conversation", err)
		return
	}
	render.NoContent(w, r)
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // ConversationID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a listener for a conversation. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(conversationID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[conversationID]; !ok {
		sm.subscribers[conversationID] = make(map[chan string]struct{})
	}
	sm.subscribers[conversationID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[conversationID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, conversationID)
			}
		}
	}
}

// Subscribers counts the listeners of a conversation.
func (sm *StreamManager) Subscribers(conversationID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[conversationID])
}

// Broadcast sends msg to every listener of the conversation, dropping it for slow clients.
func (sm *StreamManager) Broadcast(conversationID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[conversationID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "conversation_id", conversationID)
		}
	}
}

// SubscribeEvents handles GET /conversations/{conversationID}/events (SSE).
// The optional "watch" query parameter filters diffs by field: turns, phase, active_index, question, advance.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	conversationID := chi.URLParam(r, "conversationID")
	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	ch, cancel := s.Streams.Subscribe(conversationID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !watched(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func watched(msg string, fields []string) bool {
	var diff domain.ConversationDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range fields {
		switch strings.TrimSpace(field) {
		case "turns":
			if len(diff.Turns) > 0 {
				return true
			}
		case "phase":
			if diff.Phase != nil {
				return true
			}
		case "active_index":
			if diff.ActiveIndex != nil {
				return true
			}
		case "question":
			if diff.PendingQuestion != nil {
				return true
			}
		case "advance":
			if diff.Advance {
				return true
			}
		}
	}
	return false
}
