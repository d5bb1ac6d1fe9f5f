package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/presentation/tui"
	"github.com/aretw0/formweave/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// Unlike signal.NotifyContext it remembers which signal arrived.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sc.sigCh)
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// PlayOptions configures a terminal run of a form.
type PlayOptions struct {
	FormID     string
	ResponseID string
	Headless   bool
	// JSON prints the collected answers as a JSON object instead of a summary.
	JSON   bool
	Input  io.Reader
	Output io.Writer
}

// Play runs a form in the terminal and prints the answers collected.
func Play(ctx context.Context, engine *formweave.Engine, opts PlayOptions) error {
	formID, err := ResolveFormID(ctx, engine, opts.FormID)
	if err != nil {
		return err
	}

	quiet := opts.Headless || opts.JSON
	r := &formweave.Runner{
		Input:      opts.Input,
		Output:     opts.Output,
		Headless:   quiet,
		ResponseID: opts.ResponseID,
	}
	if !quiet {
		tui.PrintBanner(opts.Output)
		r.Renderer = tui.NewRenderer()
	}

	answers, runErr := r.Run(ctx, engine, formID)
	if errors.Is(runErr, context.Canceled) {
		printSystemMessage(opts.Output, "Interrupted.")
		runErr = nil
	}

	if opts.JSON {
		if answers == nil {
			answers = domain.Answers{}
		}
		enc := json.NewEncoder(opts.Output)
		enc.SetIndent("", "  ")
		if err := enc.Encode(answers); err != nil {
			return err
		}
	} else if !opts.Headless {
		printSummary(opts.Output, answers)
	}
	return runErr
}

// ResolveFormID returns id, or the only form of the repository when id is empty.
func ResolveFormID(ctx context.Context, engine *formweave.Engine, id string) (string, error) {
	if id != "" {
		return id, nil
	}
	ids, err := engine.ListForms(ctx)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("no forms found in %s", engine.Name)
	case 1:
		return ids[0], nil
	}
	slices.Sort(ids)
	return "", fmt.Errorf("several forms found, pick one of: %s", strings.Join(ids, ", "))
}

func printSummary(w io.Writer, answers domain.Answers) {
	if len(answers) == 0 {
		printSystemMessage(w, "No answers recorded.")
		return
	}
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	printSystemMessage(w, "Answers:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, answers[k])
	}
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}
