// ABOUTME: Entry point for the interactive picker: builds items from code actions and runs the program
// ABOUTME: The program draws on stderr so stdout stays free for the chosen result

package pick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/keybindings"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
)

// ErrCancelled is returned when the picker is dismissed without a choice.
var ErrCancelled = errors.New("pick: cancelled")

// Items describes each action with the files it touches and its diff.
func Items(ctx context.Context, docs edit.Documents, root string, actions []refactor.Action) []Item {
	items := make([]Item, len(actions))
	for i, a := range actions {
		item := Item{Label: a.Title, Detail: a.Kind}
		added, removed, err := edit.Stats(ctx, docs, a.Edit)
		if err == nil {
			item.Detail = fmt.Sprintf("%s  %s  +%d -%d", a.Kind, filesLabel(a.Edit, root), added, removed)
		}
		if item.Preview, err = edit.Preview(ctx, docs, a.Edit, root); err != nil {
			log.Warn("pick: preview for %s: %v", a.Title, err)
		}
		items[i] = item
	}
	return items
}

func filesLabel(ws *edit.WorkspaceEdit, root string) string {
	paths := ws.Paths()
	if len(paths) == 1 {
		return relative(root, paths[0])
	}
	return fmt.Sprintf("%d files", len(paths))
}

func relative(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

// Run shows the picker and blocks until the user chooses or cancels.
// It returns the index of the chosen item. Nil keys use the defaults.
func Run(ctx context.Context, title string, items []Item, keys *keybindings.Manager, opts ...tea.ProgramOption) (int, error) {
	if len(items) == 0 {
		return -1, ErrCancelled
	}
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(os.Stderr)}, opts...)
	m := NewModel(title, items).WithKeys(keys)
	m.width = TerminalWidth(os.Stderr, 0)
	p := tea.NewProgram(m, opts...)

	final, err := p.Run()
	if err != nil {
		return -1, fmt.Errorf("bubble tea: %w", err)
	}
	done, ok := final.(Model)
	if !ok {
		return -1, fmt.Errorf("bubble tea: unexpected model %T", final)
	}
	if i, ok := done.Chosen(); ok {
		return i, nil
	}
	return -1, ErrCancelled
}

// Interactive reports whether both r and w are terminals.
func Interactive(r io.Reader, w io.Writer) bool {
	return IsTerminal(r) && IsTerminal(w)
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or fallback when w is not a terminal.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
