// ABOUTME: Transactional application of a WorkspaceEdit to files on disk
// ABOUTME: Stages every file with renameio, replaces them in order, restores originals on failure

package edit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/renameio"

	"github.com/mauromedda/pyrefactor-go/internal/log"
)

var (
	// ErrStale means a file changed after its edits were computed.
	ErrStale = errors.New("edit: file changed since the edit was computed")
	// ErrOverlap means two different edits in one file cover the same text.
	ErrOverlap = errors.New("edit: overlapping edits")
)

// commit replaces the destination of a staged file. Tests swap it to inject failures.
var commit = (*renameio.PendingFile).CloseAtomicallyReplace

// Result computes the new content of the file from its current content.
// Identical duplicate edits collapse into one; any other overlap is ErrOverlap.
func (f FileEdit) Result(content string) (string, error) {
	type span struct {
		start, end int
		text       string
	}
	spans := make([]span, 0, len(f.Edits))
	for _, e := range f.Edits {
		start, end := OffsetAt(content, e.Range.Start), OffsetAt(content, e.Range.End)
		if end < start {
			return "", fmt.Errorf("%s: range end before start", f.Path)
		}
		spans = append(spans, span{start, end, e.NewText})
	}
	slices.SortStableFunc(spans, func(a, b span) int {
		return cmp.Or(cmp.Compare(a.start, b.start), cmp.Compare(a.end, b.end))
	})
	spans = slices.Compact(spans)

	var out []byte
	pos := 0
	for i, s := range spans {
		if s.start < pos || (i > 0 && s.start == spans[i-1].start && s.end == spans[i-1].end) {
			return "", fmt.Errorf("%s: %w", f.Path, ErrOverlap)
		}
		out = append(out, content[pos:s.start]...)
		out = append(out, s.text...)
		pos = s.end
	}
	out = append(out, content[pos:]...)
	return string(out), nil
}

type stagedFile struct {
	path     string
	original []byte
	existed  bool
	perm     fs.FileMode
	pending  *renameio.PendingFile
}

// Apply writes ws to disk. Every file is checked against the hash it was
// computed from, then all new contents are staged next to their targets
// before any target is touched. If a replacement fails, files already
// replaced are restored, so either every file changes or none does.
func Apply(ctx context.Context, docs Documents, ws *WorkspaceEdit) error {
	if ws.Empty() {
		return nil
	}

	results := make([]string, len(ws.Files))
	for i, f := range ws.Files {
		current, err := docs.Read(ctx, f.Path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f.Path, err)
		}
		if Hash(current) != f.BaseHash {
			return fmt.Errorf("%s: %w", f.Path, ErrStale)
		}
		if results[i], err = f.Result(current); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	staged := make([]*stagedFile, 0, len(ws.Files))
	cleanup := func() {
		for _, s := range staged {
			_ = s.pending.Cleanup()
		}
	}
	for i, f := range ws.Files {
		s, err := stage(f.Path, results[i])
		if err != nil {
			cleanup()
			return err
		}
		staged = append(staged, s)
	}

	for i, s := range staged {
		if err := commit(s.pending); err != nil {
			cleanup()
			rollback(staged[:i])
			return fmt.Errorf("replacing %s: %w", s.path, err)
		}
	}
	log.Debug("edit: applied %d file(s)", len(staged))
	return nil
}

func stage(path, content string) (*stagedFile, error) {
	s := &stagedFile{path: path, perm: 0o644}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		s.existed = true
		s.perm = info.Mode().Perm()
		if s.original, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	pf, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return nil, fmt.Errorf("staging %s: %w", path, err)
	}
	s.pending = pf
	if err := pf.Chmod(s.perm); err != nil {
		_ = pf.Cleanup()
		return nil, fmt.Errorf("staging %s: %w", path, err)
	}
	if _, err := pf.WriteString(content); err != nil {
		_ = pf.Cleanup()
		return nil, fmt.Errorf("staging %s: %w", path, err)
	}
	return s, nil
}

func rollback(replaced []*stagedFile) {
	for _, s := range replaced {
		var err error
		if s.existed {
			err = renameio.WriteFile(s.path, s.original, s.perm)
		} else {
			err = os.Remove(s.path)
		}
		if err != nil {
			log.Error("edit: restoring %s: %v", s.path, err)
		}
	}
}
