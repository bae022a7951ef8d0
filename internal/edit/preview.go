// ABOUTME: Unified-diff preview of a WorkspaceEdit against current document contents
// ABOUTME: Used by the CLI dry run, the picker and the RPC mode before applying

package edit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mauromedda/pyrefactor-go/internal/diff"
)

// Preview renders ws as one unified diff, file by file. Paths are shown
// relative to root when they are inside it.
func Preview(ctx context.Context, docs Documents, ws *WorkspaceEdit, root string) (string, error) {
	var b strings.Builder
	for _, f := range ws.Files {
		current, err := docs.Read(ctx, f.Path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", f.Path, err)
		}
		result, err := f.Result(current)
		if err != nil {
			return "", err
		}
		b.WriteString(diff.Unified(displayPath(root, f.Path), current, result))
	}
	return b.String(), nil
}

// Stats sums inserted and deleted lines over the edit set.
func Stats(ctx context.Context, docs Documents, ws *WorkspaceEdit) (added, removed int, err error) {
	for _, f := range ws.Files {
		current, err := docs.Read(ctx, f.Path)
		if err != nil {
			return 0, 0, fmt.Errorf("reading %s: %w", f.Path, err)
		}
		result, err := f.Result(current)
		if err != nil {
			return 0, 0, err
		}
		a, r := diff.Stat(current, result)
		added += a
		removed += r
	}
	return added, removed, nil
}

func displayPath(root, path string) string {
	if root != "" {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}
