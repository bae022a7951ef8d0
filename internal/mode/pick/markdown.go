// ABOUTME: Preview renderer: diffs rendered through glamour as fenced diff blocks
// ABOUTME: Caches rendered results keyed by content hash and width

package pick

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// previewRenderer renders diff previews with caching. Not safe for
// concurrent use; the picker calls it from its update loop only.
type previewRenderer struct {
	cache map[string]string // "hash:width" -> rendered
}

func newPreviewRenderer() *previewRenderer {
	return &previewRenderer{cache: make(map[string]string)}
}

// Render returns the terminal-styled rendering of a unified diff.
// When glamour fails the diff is colored line by line instead.
func (r *previewRenderer) Render(diff string, width int) string {
	if diff == "" {
		return ""
	}

	key := cacheKey(diff, width)
	if cached, ok := r.cache[key]; ok {
		return cached
	}

	rendered, err := renderMarkdown("```diff\n"+strings.TrimRight(diff, "\n")+"\n```\n", width)
	if err != nil {
		rendered = RenderDiff(diff)
	}
	r.cache[key] = rendered
	return rendered
}

// renderMarkdown uses the background lipgloss already settled on; glamour's
// auto style would query the terminal again.
func renderMarkdown(md string, width int) (string, error) {
	style := "light"
	if lipgloss.HasDarkBackground() {
		style = "dark"
	}
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle(style)}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return "", err
	}
	return strings.Trim(rendered, "\n "), nil
}

func cacheKey(content string, width int) string {
	h := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x:%d", h[:8], width)
}
