package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/aretw0/formweave/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// pendingState is the latest state of a conversation whose writes are still queued.
type pendingState struct {
	state  *domain.ConversationState
	writes int
}

// Result is the outcome of a transition plus what changed.
type Result struct {
	*runtime.Outcome
	Diff *domain.ConversationDiff
}

// Manager orchestrates conversation access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store   ports.ConversationStore
	machine *runtime.Machine

	mu       sync.Mutex            // Global lock for the maps below
	locks    map[string]*lockEntry // Map of active locks
	inFlight map[string]bool       // Conversations with an outstanding submit
	pending  map[string]*pendingState

	queue   *persistence.Queue      // Optional asynchronous persistence
	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks. Defaults to 30s.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithQueue persists transitions through q instead of writing synchronously.
// The caller owns q: Start it before use and Shutdown it to flush pending writes.
func WithQueue(q *persistence.Queue) Option {
	return func(m *Manager) {
		m.queue = q
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a conversation manager over store, driving turns with machine.
func NewManager(store ports.ConversationStore, machine *runtime.Machine, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		machine:  machine,
		locks:    make(map[string]*lockEntry),
		inFlight: make(map[string]bool),
		pending:  make(map[string]*pendingState),
		lockTTL:  30 * time.Second,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes a function while holding the lock for the conversation.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"conversation_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

func (m *Manager) beginFlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[id] {
		return false
	}
	m.inFlight[id] = true
	return true
}

func (m *Manager) endFlight(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, id)
}

// Start loads a conversation, creating it for block when it does not exist yet, and prepares
// it for display (see runtime.Machine.Resume).
func (m *Manager) Start(ctx context.Context, id, responseID string, block domain.Block) (*Result, error) {
	var res *Result
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.load(ctx, id)
		previous := current
		if errors.Is(err, domain.ErrConversationNotFound) {
			current = domain.NewConversation(id, responseID, block)
			current.UpdatedAt = time.Now()
			m.logger.Debug("conversation created", "conversation_id", id, "block_id", block.ID)
		} else if err != nil {
			return err
		}

		out, err := m.machine.Resume(ctx, current)
		if err != nil {
			return err
		}
		// A new conversation is sent whole.
		res = newResult(previous, out)
		return m.persist(ctx, out.State)
	})
	return res, err
}

// Submit records answer at turnIndex. It fails with domain.ErrGenerationInFlight while another
// submit on the same conversation is waiting for its question.
func (m *Manager) Submit(ctx context.Context, id string, turnIndex int, answer string) (*Result, error) {
	if !m.beginFlight(id) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrGenerationInFlight)
	}
	defer m.endFlight(id)

	var res *Result
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.load(ctx, id)
		if err != nil {
			return err
		}

		out, err := m.machine.SubmitAnswer(ctx, current, turnIndex, answer)
		if err != nil {
			return err
		}
		res = newResult(current, out)
		switch {
		case out.Abandoned:
			m.logger.Info("caller left during generation, keeping answer", "conversation_id", id, "turn", turnIndex)
		case out.Dropped:
			m.logger.Info("conversation ended before the answer was recorded", "conversation_id", id, "turn", turnIndex)
		}
		return m.persist(ctx, out.State)
	})
	return res, err
}

// Navigate moves the active pointer of a conversation.
func (m *Manager) Navigate(ctx context.Context, id string, turnIndex int) (*Result, error) {
	var res *Result
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.load(ctx, id)
		if err != nil {
			return err
		}
		out, err := m.machine.NavigateTo(ctx, current, turnIndex)
		if err != nil {
			return err
		}
		res = newResult(current, out)
		return m.persist(ctx, out.State)
	})
	return res, err
}

// Leave records that the respondent moved on to another block.
func (m *Manager) Leave(ctx context.Context, id string) (*domain.ConversationState, error) {
	var next *domain.ConversationState
	err := m.WithLock(ctx, id, func(ctx context.Context) error {
		current, err := m.load(ctx, id)
		if err != nil {
			return err
		}
		next = m.machine.Leave(current)
		return m.persist(ctx, next)
	})
	return next, err
}

// Load returns the latest state, including writes still waiting in the queue.
func (m *Manager) Load(ctx context.Context, id string) (*domain.ConversationState, error) {
	return m.load(ctx, id)
}

// Delete removes the conversation from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return m.store.Delete(ctx, id)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying conversation store.
func (m *Manager) Store() ports.ConversationStore {
	return m.store
}

func (m *Manager) load(ctx context.Context, id string) (*domain.ConversationState, error) {
	m.mu.Lock()
	p, ok := m.pending[id]
	m.mu.Unlock()
	if ok {
		return p.state.Clone(), nil
	}
	return m.store.Load(ctx, id)
}

// persist writes st. The write outlives the caller's context so an answer given right before
// the caller went away is not lost.
func (m *Manager) persist(ctx context.Context, st *domain.ConversationState) error {
	ctx = context.WithoutCancel(ctx)
	if m.queue == nil {
		if err := m.store.Save(ctx, st); err != nil {
			return fmt.Errorf("failed to save conversation %s: %w", st.ID, err)
		}
		return nil
	}

	snapshot := st.Clone()
	m.mu.Lock()
	p, ok := m.pending[st.ID]
	if !ok {
		p = &pendingState{}
		m.pending[st.ID] = p
	}
	p.state = snapshot
	p.writes++
	m.mu.Unlock()

	err := m.queue.Submit(persistence.Command{
		Key: fmt.Sprintf("conversation/%s/turns/%d", st.ID, len(st.Turns)),
		Apply: func(ctx context.Context) error {
			return m.store.Save(ctx, snapshot)
		},
		Done: func(err error) {
			m.settle(st.ID, err)
		},
	})
	if err != nil {
		m.settle(st.ID, err)
		return fmt.Errorf("failed to queue conversation %s: %w", st.ID, err)
	}
	return nil
}

// settle drops the cached state once its last queued write finished.
func (m *Manager) settle(id string, err error) {
	if err != nil {
		m.logger.Error("conversation write failed", "conversation_id", id, "err", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[id]
	if !ok {
		return
	}
	p.writes--
	if p.writes <= 0 {
		delete(m.pending, id)
	}
}

func newResult(previous *domain.ConversationState, out *runtime.Outcome) *Result {
	return &Result{
		Outcome: out,
		Diff:    domain.DiffConversation(previous, out.State),
	}
}
