// ABOUTME: Lipgloss styles for the picker and for colored diffs on a terminal
// ABOUTME: RenderDiff colors unified diff lines; used by the picker and by CLI dry runs

package pick

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	filterStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	matchStyle    = lipgloss.NewStyle().Underline(true)
	dimStyle      = lipgloss.NewStyle().Faint(true)
	emptyStyle    = lipgloss.NewStyle().Italic(true).Faint(true)
)

// Diff line styles.
var (
	diffAdded   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	diffRemoved = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // red
	diffHeader  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	diffHunk    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")) // magenta
)

// RenderDiff returns a unified diff with ANSI color coding: added lines
// green, removed lines red, file headers cyan, hunk headers magenta.
func RenderDiff(diff string) string {
	if diff == "" {
		return ""
	}

	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	var b strings.Builder
	b.Grow(len(diff) + len(lines)*10)

	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		switch {
		case strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---"):
			b.WriteString(diffHeader.Render(line))
		case strings.HasPrefix(line, "@@"):
			b.WriteString(diffHunk.Render(line))
		case strings.HasPrefix(line, "+"):
			b.WriteString(diffAdded.Render(line))
		case strings.HasPrefix(line, "-"):
			b.WriteString(diffRemoved.Render(line))
		default:
			b.WriteString(line)
		}
	}
	return b.String()
}

// highlight underlines the bytes of label at the matched indexes.
func highlight(label string, matched []int) string {
	if len(matched) == 0 {
		return label
	}
	set := make(map[int]bool, len(matched))
	for _, i := range matched {
		set[i] = true
	}
	var b strings.Builder
	for i, r := range label {
		if set[i] {
			b.WriteString(matchStyle.Render(string(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
