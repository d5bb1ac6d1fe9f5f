package domain

import (
	"sort"
	"strings"
)

// BlockType tags the kind of question or content a Block holds.
type BlockType string

const (
	BlockShortText      BlockType = "short_text"
	BlockLongText       BlockType = "long_text"
	BlockMultipleChoice BlockType = "multiple_choice"
	BlockCheckbox       BlockType = "checkbox"
	BlockDropdown       BlockType = "dropdown"
	BlockEmail          BlockType = "email"
	BlockNumber         BlockType = "number"
	BlockDate           BlockType = "date"
	BlockAIConversation BlockType = "ai_conversation"
	// BlockStatement displays content and collects no answer.
	BlockStatement BlockType = "statement"
)

// ChoicePrefix marks a synthetic condition field that checks whether one option was selected.
// e.g. "choice:opt-2"
const ChoicePrefix = "choice:"

// ChoiceOption is one selectable option of a choice block.
type ChoiceOption struct {
	ID    string `json:"id" yaml:"id" mapstructure:"id"`
	Label string `json:"label" yaml:"label" mapstructure:"label"`
}

// BlockSettings holds the type-specific configuration of a Block.
type BlockSettings struct {
	Options []ChoiceOption `json:"options,omitempty" yaml:"options,omitempty" mapstructure:"options"`
	Min     *float64       `json:"min,omitempty" yaml:"min,omitempty" mapstructure:"min"`
	Max     *float64       `json:"max,omitempty" yaml:"max,omitempty" mapstructure:"max"`

	// StarterPrompt is the first question of an AI-conversation block.
	StarterPrompt string `json:"starter_prompt,omitempty" yaml:"starter_prompt,omitempty" mapstructure:"starter_prompt"`
	// MaxQuestions bounds the conversation length. Zero means unbounded.
	MaxQuestions int `json:"max_questions,omitempty" yaml:"max_questions,omitempty" mapstructure:"max_questions"`
}

// Block is a question or content unit in a form.
type Block struct {
	ID          string        `json:"id" yaml:"id" mapstructure:"id"`
	Type        BlockType     `json:"type" yaml:"type" mapstructure:"type"`
	Order       int           `json:"order" yaml:"order" mapstructure:"order"`
	Title       string        `json:"title" yaml:"title" mapstructure:"title"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Required    bool          `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	Settings    BlockSettings `json:"settings,omitempty" yaml:"settings,omitempty" mapstructure:"settings"`

	// Deleted marks a soft-deleted block. It stays in the form so past responses keep their meaning.
	Deleted bool `json:"deleted,omitempty" yaml:"deleted,omitempty" mapstructure:"deleted"`
}

// ValueType returns the declared type of the answers this block collects.
func (b Block) ValueType() ValueType {
	switch b.Type {
	case BlockNumber:
		return ValueNumber
	case BlockCheckbox:
		return ValueList
	default:
		return ValueString
	}
}

// IsChoice reports whether the block offers a fixed option list.
func (b Block) IsChoice() bool {
	switch b.Type {
	case BlockMultipleChoice, BlockCheckbox, BlockDropdown:
		return true
	}
	return false
}

// Option looks up a choice option by id.
func (b Block) Option(id string) (ChoiceOption, bool) {
	for _, opt := range b.Settings.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return ChoiceOption{}, false
}

// Form groups the blocks of a form with the connections between them.
type Form struct {
	ID          string       `json:"id" yaml:"id" mapstructure:"id"`
	Title       string       `json:"title" yaml:"title" mapstructure:"title"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	Blocks      []Block      `json:"blocks" yaml:"blocks" mapstructure:"blocks"`
	Connections []Connection `json:"connections,omitempty" yaml:"connections,omitempty" mapstructure:"connections"`
}

// Block returns the block with the given id, including soft-deleted ones.
func (f *Form) Block(id string) (Block, bool) {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// ActiveBlocks returns the non-deleted blocks sorted by order index.
func (f *Form) ActiveBlocks() []Block {
	active := make([]Block, 0, len(f.Blocks))
	for _, b := range f.Blocks {
		if !b.Deleted {
			active = append(active, b)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Order < active[j].Order
	})
	return active
}

// ConnectionFor returns the connection whose source is blockID.
func (f *Form) ConnectionFor(blockID string) (*Connection, bool) {
	for i := range f.Connections {
		if f.Connections[i].SourceBlockID == blockID {
			return &f.Connections[i], true
		}
	}
	return nil, false
}

// FieldType resolves the declared value type of a condition field.
// A field is either a block id or a synthetic "choice:<optionId>" reference.
func (f *Form) FieldType(field string) (ValueType, bool) {
	if optionID, ok := strings.CutPrefix(field, ChoicePrefix); ok {
		for _, b := range f.Blocks {
			if _, found := b.Option(optionID); found {
				return ValueBoolean, true
			}
		}
		return "", false
	}
	b, ok := f.Block(field)
	if !ok {
		return "", false
	}
	return b.ValueType(), true
}
