// Package chatrender writes normalized agent items to a terminal.
package chatrender

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/agentbridge/internal/orchestration/client"
	"github.com/zjrosen/agentbridge/internal/ui/markdown"
)

// Role colors, consistent across output modes.
var (
	AssistantColor = lipgloss.AdaptiveColor{Light: "#179299", Dark: "#179299"}
	UserColor      = lipgloss.AdaptiveColor{Light: "#FB923C", Dark: "#FB923C"}
	SystemColor    = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF8787"}
	PlanColor      = lipgloss.AdaptiveColor{Light: "#DF8E1D", Dark: "#FECA57"}
	MutedColor     = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}
)

var (
	// RoleStyle applies bold formatting to role labels.
	RoleStyle = lipgloss.NewStyle().Bold(true)

	assistantLabel = RoleStyle.Foreground(AssistantColor)
	userLabel      = RoleStyle.Foreground(UserColor)
	planLabel      = RoleStyle.Foreground(PlanColor)
	approvalStyle  = RoleStyle.Foreground(PlanColor)
	errorStyle     = RoleStyle.Foreground(SystemColor)
	noticeStyle    = lipgloss.NewStyle().Italic(true).Foreground(MutedColor)
	fileStyle      = lipgloss.NewStyle().Foreground(MutedColor)
)

// Format selects how items are written.
type Format string

const (
	FormatPretty Format = "pretty"
	FormatJSON   Format = "json"
)

// Printer writes items one after another. Safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	md     *markdown.Renderer
	format Format
}

// NewPrinter returns a printer. md may be nil, in which case markdown is
// written unrendered.
func NewPrinter(w io.Writer, md *markdown.Renderer, format Format) *Printer {
	if format == "" {
		format = FormatPretty
	}
	return &Printer{w: w, md: md, format: format}
}

// Print writes one item.
func (p *Printer) Print(item client.ResponseItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.format == FormatJSON {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encoding item: %w", err)
		}
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	}
	_, err := fmt.Fprintln(p.w, p.Render(item))
	return err
}

// Render returns the pretty form of item.
func (p *Printer) Render(item client.ResponseItem) string {
	text := item.Text()
	var b strings.Builder

	switch {
	case item.Kind == client.KindError:
		b.WriteString(errorStyle.Render("error: ") + text)
	case item.Kind == client.KindNotice:
		b.WriteString(noticeStyle.Render(text))
	case item.Kind == client.KindApprovalRequest:
		b.WriteString(approvalStyle.Render(text))
	case item.Kind == client.KindPlan:
		b.WriteString(planLabel.Render("plan") + "\n")
		b.WriteString(p.markdown(text))
	case item.Role == client.RoleUser:
		b.WriteString(userLabel.Render("you") + " " + text)
	default:
		b.WriteString(assistantLabel.Render("devin") + "\n")
		b.WriteString(p.markdown(text))
	}

	for _, f := range item.Files() {
		line := "  " + f.Filename
		if f.MimeType != "" {
			line += " (" + f.MimeType + ")"
		}
		b.WriteString("\n" + fileStyle.Render(line))
	}
	return b.String()
}

func (p *Printer) markdown(text string) string {
	if p.md == nil || text == "" {
		return text
	}
	return p.md.RenderOrRaw(text)
}
