package formweave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/internal/sanitize"
	loamAdapter "github.com/aretw0/formweave/pkg/adapters/loam"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/editor"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/aretw0/formweave/pkg/ports"
	"github.com/aretw0/formweave/pkg/session"
	"github.com/aretw0/loam"
)

// Engine is the high-level entry point for the formweave library.
// It resolves the next block of a form and drives its AI conversations.
type Engine struct {
	loader        ports.FormLoader
	connections   ports.ConnectionStore
	conversations ports.ConversationStore
	generator     ports.QuestionGenerator
	locker        ports.DistributedLocker
	queue         *persistence.Queue

	router   *runtime.Router
	machine  *runtime.Machine
	sessions *session.Manager

	hooks              domain.LifecycleHooks
	logger             *slog.Logger
	positionalFallback bool
	generationTimeout  time.Duration
	maxAnswerSize      int
	Name               string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLoader injects a custom FormLoader, bypassing the default Loam initialization.
func WithLoader(l ports.FormLoader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGenerator sets the question generator of AI-conversation blocks.
// Without one every generated question falls back to a fixed text.
func WithGenerator(g ports.QuestionGenerator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithConnectionStore overrides the connections of loaded forms with edited ones.
func WithConnectionStore(s ports.ConnectionStore) Option {
	return func(e *Engine) {
		e.connections = s
	}
}

// WithConversationStore sets where conversation state lives (default: in memory).
func WithConversationStore(s ports.ConversationStore) Option {
	return func(e *Engine) {
		e.conversations = s
	}
}

// WithLocker serializes conversations across processes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithPersistenceQueue writes conversation state through q instead of inline.
// The caller starts and shuts down the queue.
func WithPersistenceQueue(q *persistence.Queue) Option {
	return func(e *Engine) {
		e.queue = q
	}
}

// WithPositionalFallback makes ResolveNext move to the next block by order when no
// rule matched and no default target is set.
func WithPositionalFallback(enabled bool) Option {
	return func(e *Engine) {
		e.positionalFallback = enabled
	}
}

// WithGenerationTimeout bounds each question generator call.
func WithGenerationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.generationTimeout = d
	}
}

// WithMaxAnswerSize caps conversation answers in bytes (default: sanitize.Limit()).
func WithMaxAnswerSize(n int) Option {
	return func(e *Engine) {
		e.maxAnswerSize = n
	}
}

// New initializes a new Engine.
// By default, it reads forms from a Loam repository at the given path.
// If WithLoader option is provided, formsPath can be empty and Loam is skipped.
func New(formsPath string, opts ...Option) (*Engine, error) {
	eng := &Engine{}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.loader == nil {
		if formsPath == "" {
			return nil, fmt.Errorf("formsPath is required when no custom loader is provided")
		}

		absPath, err := filepath.Abs(formsPath)
		if err != nil {
			return nil, fmt.Errorf("invalid path: %w", err)
		}
		eng.Name = filepath.Base(absPath)

		// Strict mode keeps numbers as json.Number; read-only keeps Loam from sandboxing writes.
		repo, err := loam.Init(absPath,
			loam.WithStrict(true),
			loam.WithReadOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize loam: %w", err)
		}
		eng.loader = loamAdapter.New(loam.NewTypedRepository[loamAdapter.FormMetadata](repo))
	} else if formsPath != "" {
		eng.Name = filepath.Base(formsPath)
	}

	if eng.logger == nil {
		eng.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("forms", eng.Name)
	}
	if eng.conversations == nil {
		eng.conversations = memory.NewConversationStore()
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLogger(eng.logger),
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithGenerationTimeout(eng.generationTimeout),
	}
	eng.router = runtime.NewRouter(runtimeOpts...)
	eng.machine = runtime.NewMachine(eng.generator, runtimeOpts...)

	sessionOpts := []session.Option{session.WithLogger(eng.logger)}
	if eng.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(eng.locker))
	}
	if eng.queue != nil {
		sessionOpts = append(sessionOpts, session.WithQueue(eng.queue))
	}
	eng.sessions = session.NewManager(eng.conversations, eng.machine, sessionOpts...)

	return eng, nil
}

// Loader returns the FormLoader used by the engine.
func (e *Engine) Loader() ports.FormLoader {
	return e.loader
}

// Sessions returns the conversation manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// ConnectionStore returns the connection store, or nil when connections come from the forms only.
func (e *Engine) ConnectionStore() ports.ConnectionStore {
	return e.connections
}

// LoadForm returns a form with stored connection edits applied.
func (e *Engine) LoadForm(ctx context.Context, formID string) (*domain.Form, error) {
	form, err := e.loader.LoadForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if e.connections == nil {
		return form, nil
	}

	for _, b := range form.Blocks {
		conn, err := e.connections.GetBySource(ctx, b.ID)
		if errors.Is(err, domain.ErrConnectionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load connection for %s: %w", b.ID, err)
		}
		replaceConnection(form, conn)
	}
	return form, nil
}

// ListForms lists the available form ids.
func (e *Engine) ListForms(ctx context.Context) ([]string, error) {
	return e.loader.ListForms(ctx)
}

func replaceConnection(form *domain.Form, conn *domain.Connection) {
	for i := range form.Connections {
		if form.Connections[i].SourceBlockID == conn.SourceBlockID {
			form.Connections[i] = *conn
			return
		}
	}
	form.Connections = append(form.Connections, *conn)
}

// Next is where a respondent goes after a block.
type Next struct {
	BlockID string `json:"block_id,omitempty"`
	// Positional is set when no rule or default applied and the block order decided.
	Positional bool `json:"positional,omitempty"`
	// End is set when the form is over.
	End bool `json:"end,omitempty"`
}

// ResolveNext picks the block after blockID given the answers so far.
// Without positional fallback, a block whose connection resolves nothing returns
// domain.ErrNoTargetResolved.
func (e *Engine) ResolveNext(ctx context.Context, form *domain.Form, blockID string, answers domain.Answers) (Next, error) {
	if _, ok := form.Block(blockID); !ok {
		return Next{}, fmt.Errorf("%s: %w", blockID, domain.ErrBlockNotFound)
	}

	conn, _ := form.ConnectionFor(blockID)
	target, err := e.router.ResolveNextBlock(ctx, conn, runtime.NewFormAnswers(form, answers))
	if err == nil {
		return Next{BlockID: target}, nil
	}
	if !errors.Is(err, domain.ErrNoTargetResolved) || !e.positionalFallback {
		return Next{}, err
	}

	next, ok := runtime.NextByOrder(form, blockID)
	if !ok {
		return Next{End: true}, nil
	}
	return Next{BlockID: next, Positional: true}, nil
}

// EditConnection opens the connection of blockID for authoring.
func (e *Engine) EditConnection(ctx context.Context, formID, blockID string) (*editor.ConnectionEditState, error) {
	form, err := e.LoadForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	return editor.New(form, blockID)
}

// SaveConnection validates an edited connection and stores it.
func (e *Engine) SaveConnection(ctx context.Context, edit *editor.ConnectionEditState) error {
	if e.connections == nil {
		return fmt.Errorf("no connection store configured")
	}
	if err := edit.Validate(); err != nil {
		return err
	}
	return e.connections.Save(ctx, edit.Connection())
}

// UpdateFormConnection applies a partial update to the connection of blockID and stores it
// once it validates against the form.
func (e *Engine) UpdateFormConnection(ctx context.Context, formID, blockID string, fields map[string]any) (*domain.Connection, error) {
	edit, err := e.EditConnection(ctx, formID, blockID)
	if err != nil {
		return nil, err
	}
	if err := edit.Apply(fields); err != nil {
		return nil, err
	}
	if err := e.SaveConnection(ctx, edit); err != nil {
		return nil, err
	}
	return edit.Connection(), nil
}

// UpdateConnection applies a partial update to a stored connection. Only the shape of the
// update is checked; use UpdateFormConnection to validate targets against a form.
func (e *Engine) UpdateConnection(ctx context.Context, id string, fields map[string]any) (*domain.Connection, error) {
	if e.connections == nil {
		return nil, fmt.Errorf("no connection store configured")
	}
	return e.connections.ApplyConnectionUpdate(ctx, id, fields)
}

// ErrNotConversation is returned when a conversation is started on a block that is not an AI conversation.
var ErrNotConversation = errors.New("not an AI conversation")

// ConversationID is the id of the conversation a response holds for an AI-conversation block.
func ConversationID(responseID, blockID string) string {
	return responseID + "." + blockID
}

// StartConversation opens (or resumes) the conversation of responseID on an AI-conversation block.
func (e *Engine) StartConversation(ctx context.Context, form *domain.Form, blockID, responseID string) (*session.Result, error) {
	block, ok := form.Block(blockID)
	if !ok || block.Deleted {
		return nil, fmt.Errorf("%s: %w", blockID, domain.ErrBlockNotFound)
	}
	if block.Type != domain.BlockAIConversation {
		return nil, fmt.Errorf("block %s is a %s: %w", blockID, block.Type, ErrNotConversation)
	}
	return e.sessions.Start(ctx, ConversationID(responseID, blockID), responseID, block)
}

// SubmitAnswer records a conversation answer after sanitizing it.
func (e *Engine) SubmitAnswer(ctx context.Context, conversationID string, turnIndex int, answer string) (*session.Result, error) {
	clean, err := sanitize.Answer(answer, e.maxAnswerSize)
	if err != nil {
		return nil, err
	}
	return e.sessions.Submit(ctx, conversationID, turnIndex, clean)
}

// NavigateTo selects a turn of a conversation for review or editing.
func (e *Engine) NavigateTo(ctx context.Context, conversationID string, turnIndex int) (*session.Result, error) {
	return e.sessions.Navigate(ctx, conversationID, turnIndex)
}

// LeaveConversation records that the respondent moved on from the conversation's block.
func (e *Engine) LeaveConversation(ctx context.Context, conversationID string) (*domain.ConversationState, error) {
	return e.sessions.Leave(ctx, conversationID)
}

// Conversation returns the latest conversation state.
func (e *Engine) Conversation(ctx context.Context, conversationID string) (*domain.ConversationState, error) {
	return e.sessions.Load(ctx, conversationID)
}

// ListConversations lists the ids of stored conversations.
func (e *Engine) ListConversations(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

// DeleteConversation removes a stored conversation.
func (e *Engine) DeleteConversation(ctx context.Context, conversationID string) error {
	return e.sessions.Delete(ctx, conversationID)
}
