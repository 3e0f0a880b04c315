package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hylla/nexus/internal/domain"
)

// minMarkdownWidth keeps narrow terminals readable.
const minMarkdownWidth = 24

// markdownRenderer renders markdown for terminal views and recreates the renderer when wrap width changes.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render converts markdown input into ANSI-styled terminal text with the requested wrap width.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, minMarkdownWidth)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// reasonsMarkdown renders a task's block reasons newest first.
func reasonsMarkdown(card string, comments []domain.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", card)
	if len(comments) == 0 {
		b.WriteString("_No block reasons recorded._\n")
		return b.String()
	}
	for i := len(comments) - 1; i >= 0; i-- {
		c := comments[i]
		fmt.Fprintf(&b, "- **%s** by `%s`: %s\n", c.CreatedAt.UTC().Format("2006-01-02 15:04"), c.AuthorID, strings.TrimSpace(c.Body))
	}
	return b.String()
}
