// ABOUTME: Turns rope's changed files into one multi-file edit set grouped by path
// ABOUTME: Each file gets whole-document replacements computed against its current content

package edit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/mauromedda/pyrefactor-go/internal/rope"
)

// maxConcurrentReads bounds document resolution in Assemble.
const maxConcurrentReads = 8

// Position is a zero-based line and a character offset counted in UTF-16
// code units, as editors speaking LSP expect.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span of a document.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// TextEdit replaces Range with NewText.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// FileEdit holds every edit for one file. BaseHash is the SHA-256 of the
// content the edits were computed against.
type FileEdit struct {
	Path     string     `json:"path"`
	BaseHash string     `json:"baseHash"`
	Edits    []TextEdit `json:"edits"`
}

// WorkspaceEdit is an edit set meant to be applied as one unit.
type WorkspaceEdit struct {
	Files []FileEdit `json:"files"`
}

// Empty reports whether the edit set changes nothing.
func (ws *WorkspaceEdit) Empty() bool {
	return ws == nil || len(ws.Files) == 0
}

// Paths lists the files the edit set touches, in order.
func (ws *WorkspaceEdit) Paths() []string {
	if ws == nil {
		return nil
	}
	paths := make([]string, len(ws.Files))
	for i, f := range ws.Files {
		paths[i] = f.Path
	}
	return paths
}

// NormalizePath is the grouping key for a file path: cleaned and in Unicode NFC.
func NormalizePath(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

// Hash returns the hex SHA-256 of content.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Assemble converts changed files into a WorkspaceEdit. Every changed file
// becomes a replacement of its document's full extent. Entries for the same
// path share one FileEdit and keep their input order; files appear in the
// order their path was first seen. Paths are grouped by NormalizePath, but
// each FileEdit keeps the first spelling rope reported, since file names on
// disk are raw bytes and may be in any normalization form.
func Assemble(ctx context.Context, docs Documents, files []rope.ChangedFile) (*WorkspaceEdit, error) {
	var order []string
	byPath := make(map[string]int)
	for _, f := range files {
		key := NormalizePath(f.Path)
		if _, ok := byPath[key]; !ok {
			byPath[key] = len(order)
			order = append(order, filepath.Clean(f.Path))
		}
	}

	contents := make([]string, len(order))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)
	for i, path := range order {
		g.Go(func() error {
			content, err := docs.Read(gctx, path)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", path, err)
			}
			contents[i] = content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ws := &WorkspaceEdit{Files: make([]FileEdit, len(order))}
	for i, path := range order {
		ws.Files[i] = FileEdit{Path: path, BaseHash: Hash(contents[i])}
	}
	for _, f := range files {
		i := byPath[NormalizePath(f.Path)]
		ws.Files[i].Edits = append(ws.Files[i].Edits, TextEdit{
			Range:   FullRange(contents[i]),
			NewText: f.NewContents,
		})
	}
	return ws, nil
}
