package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/pkg/domain"
)

type options struct {
	logger            *slog.Logger
	hooks             domain.LifecycleHooks
	clock             func() time.Time
	generationTimeout time.Duration
}

// Option configures a Router or a Machine.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

// WithClock overrides time.Now, used to stamp answered turns.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithGenerationTimeout bounds each question generator call. Zero means no bound.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.generationTimeout = d
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: logging.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
