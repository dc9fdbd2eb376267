// Package markdown provides styled markdown rendering for agent output.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// noMarginStyle is a JSON style that removes document margins.
const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps glamour with agentbridge configuration.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
	style    string
}

// New creates a markdown renderer with the given width and style.
// style should be "dark" or "light"; empty means "dark". A fixed style is
// used instead of WithAutoStyle() so no terminal background query is sent.
func New(width int, style string) (*Renderer, error) {
	if style == "" {
		style = "dark"
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width, style: style}, nil
}

// Width returns the configured word wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Style returns the glamour style name in use.
func (r *Renderer) Style() string {
	return r.style
}

// Render transforms markdown to styled terminal output with trailing blank
// lines trimmed.
func (r *Renderer) Render(markdown string) (string, error) {
	out, err := r.renderer.Render(markdown)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

// RenderOrRaw renders markdown, returning the input unchanged on failure.
func (r *Renderer) RenderOrRaw(markdown string) string {
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
