package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// Falls back to the raw markdown when no renderer can be built.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(), // Automatically detect light/dark background
	)
	if err != nil {
		return func(markdown string) (string, error) { return markdown, nil }
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// BlockMarkdown renders the prompt of a block: title, description and the input hint.
func BlockMarkdown(b domain.Block) string {
	var sb strings.Builder
	title := b.Title
	if title == "" {
		title = b.ID
	}
	if b.Required {
		title += " *"
	}
	sb.WriteString("## " + title + "\n\n")
	if b.Description != "" {
		sb.WriteString(b.Description + "\n\n")
	}

	switch {
	case b.IsChoice():
		for i, opt := range b.Settings.Options {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, opt.Label)
		}
		if b.Type == domain.BlockCheckbox {
			sb.WriteString("\n_Pick any, separated by commas._\n")
		}
	case b.Type == domain.BlockNumber:
		if hint := rangeHint(b.Settings.Min, b.Settings.Max); hint != "" {
			sb.WriteString("_" + hint + "_\n")
		}
	case b.Type == domain.BlockDate:
		sb.WriteString("_YYYY-MM-DD_\n")
	}
	return sb.String()
}

func rangeHint(min, max *float64) string {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("Between %s and %s", format(*min), format(*max))
	case min != nil:
		return "At least " + format(*min)
	case max != nil:
		return "At most " + format(*max)
	}
	return ""
}
