package compiler

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/formweave/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Parser converts form definitions into a domain.Form.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes a YAML or JSON form definition.
func (p *Parser) Parse(data []byte) (*domain.Form, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to parse form: empty document")
	}
	return p.Decode(raw)
}

// Decode builds a form from generic data, e.g. decoded frontmatter.
// The data goes through JSON so tagged condition values decode the same way for every source.
func (p *Parser) Decode(raw map[string]any) (*domain.Form, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}

	var form domain.Form
	if err := json.Unmarshal(data, &form); err != nil {
		return nil, fmt.Errorf("failed to decode form: %w", err)
	}
	if err := normalize(&form); err != nil {
		return nil, err
	}
	return &form, nil
}

// normalize checks identities and fills the defaults authors may leave out.
func normalize(form *domain.Form) error {
	if form.ID == "" {
		return fmt.Errorf("form missing id")
	}

	seen := make(map[string]bool, len(form.Blocks))
	for i, b := range form.Blocks {
		if b.ID == "" {
			return fmt.Errorf("form %s: block %d missing id", form.ID, i)
		}
		if seen[b.ID] {
			return fmt.Errorf("form %s: duplicate block id %s", form.ID, b.ID)
		}
		seen[b.ID] = true
	}

	for i := range form.Connections {
		conn := &form.Connections[i]
		if conn.SourceBlockID == "" {
			return fmt.Errorf("form %s: connection %d missing source_block_id", form.ID, i)
		}
		if conn.ID == "" {
			conn.ID = "conn-" + conn.SourceBlockID
		}
		if conn.Rules == nil {
			conn.Rules = []domain.Rule{}
		}
		for j := range conn.Rules {
			rule := &conn.Rules[j]
			if rule.ID == "" {
				rule.ID = fmt.Sprintf("%s-rule-%d", conn.ID, j)
			}
			if rule.Conditions.LogicalOperator == "" {
				rule.Conditions.LogicalOperator = domain.LogicAnd
			}
			for k := range rule.Conditions.Conditions {
				c := &rule.Conditions.Conditions[k]
				if c.ID == "" {
					c.ID = fmt.Sprintf("%s-c%d", rule.ID, k)
				}
			}
		}
	}
	return nil
}
