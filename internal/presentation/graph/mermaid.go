package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/formweave/internal/runtime"
	"github.com/aretw0/formweave/pkg/domain"
)

// GraphOverlay contains response data to visualize on the graph.
type GraphOverlay struct {
	VisitedBlocks []string
	CurrentBlock  string
}

// GenerateMermaid produces a Mermaid flowchart of the active blocks of form.
// It applies semantic styling:
// - First block: ((Circle))
// - AI conversation: [[Subroutine]]
// - Input (any question type): [/Parallelogram/]
// - Statement: [Rectangle]
// Rule edges are labelled with their conditions; positional fall-through is dotted.
func GenerateMermaid(form *domain.Form, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	active := form.ActiveBlocks()
	for i, block := range active {
		safeID := sanitizeMermaidID(block.ID)

		opener, closer := "[/", "/]"
		switch {
		case i == 0:
			opener, closer = "((", "))"
		case block.Type == domain.BlockAIConversation:
			opener, closer = "[[", "]]"
		case block.Type == domain.BlockStatement:
			opener, closer = "[", "]"
		}

		label := block.ID
		if block.Title != "" {
			label = fmt.Sprintf("%s <br/> %s", block.ID, escape(block.Title))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, label, closer))

		conn, ok := form.ConnectionFor(block.ID)
		if ok {
			for _, rule := range conn.Rules {
				if rule.TargetBlockID == "" {
					continue
				}
				sb.WriteString(fmt.Sprintf("    %s -- \"%s\" --> %s\n",
					safeID, escape(RuleLabel(rule)), sanitizeMermaidID(rule.TargetBlockID)))
			}
			if conn.DefaultTargetID != "" {
				sb.WriteString(fmt.Sprintf("    %s --> %s\n", safeID, sanitizeMermaidID(conn.DefaultTargetID)))
				continue
			}
		}
		if next, ok := runtime.NextByOrder(form, block.ID); ok {
			sb.WriteString(fmt.Sprintf("    %s -.-> %s\n", safeID, sanitizeMermaidID(next)))
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedBlocks {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				sb.WriteString(fmt.Sprintf("    class %s visited;\n", safeID))
			}
		}

		if overlay.CurrentBlock != "" {
			sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(overlay.CurrentBlock)))
		}
	}

	return sb.String()
}

// RuleLabel renders a rule as readable text, e.g. `age greater_than 17 AND plan equals pro`.
func RuleLabel(rule domain.Rule) string {
	if rule.Expression != "" {
		return rule.Expression
	}
	if len(rule.Conditions.Conditions) == 0 {
		return "never"
	}
	parts := make([]string, 0, len(rule.Conditions.Conditions))
	for _, c := range rule.Conditions.Conditions {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value))
	}
	op := rule.Conditions.LogicalOperator
	if op == "" {
		op = domain.LogicAnd
	}
	return strings.Join(parts, " "+string(op)+" ")
}

// escape replaces double quotes, which would end a Mermaid label.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
