package formweave

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/formweave/internal/presentation/tui"
	"github.com/aretw0/formweave/pkg/domain"
)

// Runner plays a form in a terminal using the provided IO.
// This allows for easy testing and integration with different frontends.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer
	// ResponseID identifies the respondent's conversations (default: "local").
	ResponseID string
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// errQuit ends the run when the respondent types exit or quit.
var errQuit = errors.New("quit")

// Run walks formID from its first block until the form ends, the input is exhausted
// or the respondent quits, and returns the answers given.
func (r *Runner) Run(ctx context.Context, engine *Engine, formID string) (domain.Answers, error) {
	if r.Input == nil {
		return nil, fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return nil, fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)
	responseID := r.ResponseID
	if responseID == "" {
		responseID = "local"
	}

	form, err := engine.LoadForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	active := form.ActiveBlocks()
	if len(active) == 0 {
		return nil, fmt.Errorf("form %s has no blocks", formID)
	}

	if !r.Headless && form.Title != "" {
		r.print("# " + form.Title)
	}

	answers := domain.Answers{}
	block := active[0]
	for {
		r.print(tui.BlockMarkdown(block))

		switch block.Type {
		case domain.BlockStatement:
		case domain.BlockAIConversation:
			err = r.converse(ctx, engine, form, block, responseID, lines)
		default:
			err = r.ask(form, block, answers, lines)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, errQuit) {
			return answers, nil
		}
		if err != nil {
			return answers, err
		}

		next, err := engine.ResolveNext(ctx, form, block.ID, answers)
		if errors.Is(err, domain.ErrNoTargetResolved) || (err == nil && next.End) {
			return answers, nil
		}
		if err != nil {
			return answers, fmt.Errorf("navigation error: %w", err)
		}
		block, _ = form.Block(next.BlockID)
	}
}

// ask reads lines until one parses as a valid answer for block.
func (r *Runner) ask(form *domain.Form, block domain.Block, answers domain.Answers, lines *bufio.Reader) error {
	for {
		input, err := r.readLine(lines)
		if err != nil {
			return err
		}
		answer, ok, err := ParseAnswer(form, block, input)
		if err != nil {
			fmt.Fprintf(r.Output, "Invalid answer: %v\n", err)
			continue
		}
		if ok {
			answers[block.ID] = answer
		} else {
			delete(answers, block.ID)
		}
		return nil
	}
}

// converse runs an AI conversation. Typing :back revisits the previous turn.
func (r *Runner) converse(ctx context.Context, engine *Engine, form *domain.Form, block domain.Block, responseID string, lines *bufio.Reader) error {
	res, err := engine.StartConversation(ctx, form, block.ID, responseID)
	if err != nil {
		return err
	}
	st := res.State
	defer func() {
		if _, err := engine.LeaveConversation(context.WithoutCancel(ctx), st.ID); err != nil {
			fmt.Fprintf(r.Output, "Could not save conversation: %v\n", err)
		}
	}()

	for !st.EffectiveComplete() {
		question := st.FrontierQuestion()
		if st.Editing() {
			question = fmt.Sprintf("%s (was: %s)", st.Turns[st.ActiveIndex].Question, st.Turns[st.ActiveIndex].Answer)
		}
		r.print(question)

		input, err := r.readLine(lines)
		if err != nil {
			return err
		}

		if input == ":back" {
			if st.ActiveIndex == 0 {
				continue
			}
			res, err = engine.NavigateTo(ctx, st.ID, st.ActiveIndex-1)
		} else {
			res, err = engine.SubmitAnswer(ctx, st.ID, st.ActiveIndex, input)
		}
		if err != nil {
			return err
		}
		st = res.State
		if res.Advance {
			return nil
		}
	}
	return nil
}

func (r *Runner) readLine(lines *bufio.Reader) (string, error) {
	if !r.Headless {
		fmt.Fprint(r.Output, "> ")
	}
	text, err := lines.ReadString('\n')
	if err != nil && (text == "" || !errors.Is(err, io.EOF)) {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", fmt.Errorf("input error: %w", err)
	}
	input := strings.TrimSpace(text)
	if input == "exit" || input == "quit" {
		fmt.Fprintln(r.Output, "Bye!")
		return "", errQuit
	}
	return input, nil
}

func (r *Runner) print(markdown string) {
	output := markdown
	if r.Renderer != nil {
		if rendered, err := r.Renderer(markdown); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}
