package schema

import "github.com/aretw0/formweave/pkg/domain"

// ForForm derives the answer schema of a form. Statements, AI conversations (answered turn
// by turn) and soft-deleted blocks collect no direct answer and are left out.
func ForForm(form *domain.Form) Schema {
	s := make(Schema)
	for _, b := range form.ActiveBlocks() {
		t := blockType(b)
		if t == nil {
			continue
		}
		s[b.ID] = Field{Type: t, Required: b.Required}
	}
	return s
}

func blockType(b domain.Block) Type {
	switch b.Type {
	case domain.BlockStatement, domain.BlockAIConversation:
		return nil
	case domain.BlockNumber:
		return Number(b.Settings.Min, b.Settings.Max)
	case domain.BlockEmail:
		return Email()
	case domain.BlockDate:
		return Date()
	case domain.BlockMultipleChoice, domain.BlockDropdown:
		return Choice(optionKeys(b)...)
	case domain.BlockCheckbox:
		return Slice(Choice(optionKeys(b)...))
	default:
		return String()
	}
}

func optionKeys(b domain.Block) []string {
	keys := make([]string, 0, 2*len(b.Settings.Options))
	for _, opt := range b.Settings.Options {
		keys = append(keys, opt.ID, opt.Label)
	}
	return keys
}
