package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
)

// ValidateForm checks for broken connections and blocks unreachable from the first block.
func ValidateForm(form *domain.Form) error {
	if form == nil {
		return fmt.Errorf("form is nil")
	}

	var errors []string
	report := func(format string, args ...any) {
		errors = append(errors, fmt.Sprintf(format, args...))
	}

	active := form.ActiveBlocks()
	if len(active) == 0 {
		return fmt.Errorf("form '%s' has no blocks", form.ID)
	}

	for _, b := range active {
		if b.Type == domain.BlockAIConversation && strings.TrimSpace(b.Settings.StarterPrompt) == "" {
			report("AI conversation block '%s' has no starter prompt", b.ID)
		}
	}

	// 1. Connections
	seen := make(map[string]string)
	for _, conn := range form.Connections {
		if prev, dup := seen[conn.SourceBlockID]; dup {
			report("Block '%s' has more than one connection ('%s', '%s')", conn.SourceBlockID, prev, conn.ID)
		}
		seen[conn.SourceBlockID] = conn.ID

		checkBlock(form, conn.SourceBlockID, fmt.Sprintf("connection '%s' source", conn.ID), report)
		if conn.DefaultTargetID != "" {
			checkBlock(form, conn.DefaultTargetID, fmt.Sprintf("connection '%s' default target", conn.ID), report)
		}
		for _, rule := range conn.Rules {
			where := fmt.Sprintf("rule '%s' target", rule.ID)
			if rule.TargetBlockID == "" {
				report("Missing %s", where)
				continue
			}
			checkBlock(form, rule.TargetBlockID, where, report)
			if rule.TargetBlockID == conn.SourceBlockID {
				report("Rule '%s' leads block '%s' to itself", rule.ID, conn.SourceBlockID)
			}
			if rule.Expression != "" {
				if err := runtime.CompileExpression(rule.Expression); err != nil {
					report("Rule '%s' expression does not compile: %v", rule.ID, err)
				}
			}
		}
	}

	// 2. Crawler
	visited := make(map[string]bool)
	queue := []string{active[0].ID}
	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]

		if visited[currentID] {
			continue
		}
		visited[currentID] = true

		for _, target := range successors(form, currentID) {
			if !visited[target] {
				queue = append(queue, target)
			}
		}
	}

	for _, b := range active {
		if !visited[b.ID] {
			report("Unreachable block: '%s'", b.ID)
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

// successors lists every block the respondent can reach from blockID.
func successors(form *domain.Form, blockID string) []string {
	var out []string
	conn, ok := form.ConnectionFor(blockID)
	if ok {
		for _, rule := range conn.Rules {
			if rule.TargetBlockID != "" {
				out = append(out, rule.TargetBlockID)
			}
		}
		if conn.DefaultTargetID != "" {
			return append(out, conn.DefaultTargetID)
		}
	}
	// Nothing catches the fall-through: the next block by order does.
	if next, ok := runtime.NextByOrder(form, blockID); ok {
		out = append(out, next)
	}
	return out
}

func checkBlock(form *domain.Form, id, where string, report func(string, ...any)) {
	b, ok := form.Block(id)
	switch {
	case !ok:
		report("Missing block '%s' (%s)", id, where)
	case b.Deleted:
		report("Deleted block '%s' (%s)", id, where)
	}
}
