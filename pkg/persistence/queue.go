package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/formweave/internal/logging"
)

// ErrQueueFull is returned by Submit when the buffer is full.
var ErrQueueFull = errors.New("persistence queue full")

// ErrQueueClosed is returned by Submit after Shutdown.
var ErrQueueClosed = errors.New("persistence queue closed")

// Command is one idempotent persistence step, e.g. applying a conversation turn.
// Apply may run more than once, so it must be safe to repeat.
type Command struct {
	// Key identifies the command in logs and callbacks (e.g. "conversation/abc/turn/2").
	Key   string
	Apply func(ctx context.Context) error
	// Done, if set, runs once with the final outcome: nil when applied, the last error otherwise.
	Done func(err error)
}

// Queue runs persistence commands in the background, retrying failures with exponential backoff.
// Callers mutate their local state first, submit a command, and learn the outcome through the
// confirm/failure callbacks. Commands run in submission order.
type Queue struct {
	commands chan Command
	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool

	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	onConfirm   func(Command)
	onFailure   func(Command, error)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithRetry sets how many times a command is attempted and the initial backoff delay.
func WithRetry(attempts int, delay time.Duration) QueueOption {
	return func(q *Queue) {
		if attempts > 0 {
			q.maxAttempts = attempts
		}
		q.baseDelay = delay
	}
}

// WithMaxDelay caps the backoff delay.
func WithMaxDelay(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.maxDelay = d
	}
}

// WithQueueSize sets the buffer size.
func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		q.commands = make(chan Command, n)
	}
}

// OnConfirm registers a callback run after a command was applied.
func OnConfirm(fn func(Command)) QueueOption {
	return func(q *Queue) {
		q.onConfirm = fn
	}
}

// OnFailure registers a callback run when a command exhausted its attempts.
func OnFailure(fn func(Command, error)) QueueOption {
	return func(q *Queue) {
		q.onFailure = fn
	}
}

// NewQueue creates a queue. Call Start to begin processing.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		commands:    make(chan Command, 64),
		logger:      logging.NewNop(),
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    5 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the worker. It stops when ctx is canceled or the queue is shut down.
func (q *Queue) Start(ctx context.Context) {
	go q.worker(ctx)
}

func (q *Queue) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.logger.Debug("persistence queue stopped", "err", ctx.Err())
			q.close()
			q.drain(ctx.Err())
			return
		case cmd, ok := <-q.commands:
			if !ok {
				return
			}
			_ = q.Apply(ctx, cmd)
			q.wg.Done()
		}
	}
}

// close stops accepting commands. Submit holds the read lock while sending, so no send races the close.
func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.commands)
	}
}

// drain fails every buffered command once the worker can no longer run them.
func (q *Queue) drain(cause error) {
	for cmd := range q.commands {
		q.fail(cmd, cause)
		q.wg.Done()
	}
}

// Submit enqueues a command without blocking. It fails with ErrQueueClosed after Shutdown
// or once the worker's context ended.
func (q *Queue) Submit(cmd Command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.wg.Add(1)
	select {
	case q.commands <- cmd:
		return nil
	default:
		q.wg.Done()
		q.logger.Warn("persistence queue full", "key", cmd.Key)
		return ErrQueueFull
	}
}

// Apply runs cmd synchronously with the queue's retry policy and callbacks.
func (q *Queue) Apply(ctx context.Context, cmd Command) error {
	var err error
	for attempt := 1; attempt <= q.maxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			break
		}

		err = cmd.Apply(ctx)
		if err == nil {
			q.logger.Debug("persistence command confirmed", "key", cmd.Key, "attempt", attempt)
			if q.onConfirm != nil {
				q.onConfirm(cmd)
			}
			if cmd.Done != nil {
				cmd.Done(nil)
			}
			return nil
		}

		q.logger.Warn("persistence command failed", "key", cmd.Key, "attempt", attempt, "err", err)
		if attempt == q.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			err = ctx.Err()
			attempt = q.maxAttempts
		case <-time.After(q.backoff(attempt)):
		}
	}

	err = fmt.Errorf("command %s: %w", cmd.Key, err)
	q.fail(cmd, err)
	return err
}

func (q *Queue) fail(cmd Command, err error) {
	q.logger.Error("persistence command abandoned", "key", cmd.Key, "err", err)
	if q.onFailure != nil {
		q.onFailure(cmd, err)
	}
	if cmd.Done != nil {
		cmd.Done(err)
	}
}

func (q *Queue) backoff(attempt int) time.Duration {
	d := q.baseDelay << (attempt - 1)
	if q.maxDelay > 0 && d > q.maxDelay {
		return q.maxDelay
	}
	return d
}

// Shutdown stops accepting commands and waits for the buffered ones to finish.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.close()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("persistence queue shutdown timed out")
		return ctx.Err()
	case <-done:
		return nil
	}
}
