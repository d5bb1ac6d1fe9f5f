package loam

// FormMetadata is the frontmatter (or JSON/YAML body) of a form document.
// Blocks and connections stay generic here; the form parser gives them their domain shape.
type FormMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Blocks      []any  `json:"blocks" mapstructure:"blocks"`
	Connections []any  `json:"connections" mapstructure:"connections"`
}
