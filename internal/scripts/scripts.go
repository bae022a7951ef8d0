// ABOUTME: Bundled rope scripts embedded in the binary and installed on demand
// ABOUTME: Installation is content-addressed, so upgrades never overwrite scripts in use

package scripts

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/google/renameio"

	"github.com/mauromedda/pyrefactor-go/internal/log"
)

//go:embed python/*.py
var bundle embed.FS

// Script file names.
const (
	Server             = "rope_server.py"
	Inline             = "inline.py"
	IntroduceParameter = "introduce_parameter.py"
	LocalToField       = "local_to_field.py"
)

// Paths locates an installed script set.
type Paths struct {
	Dir string
}

// Script returns the absolute path of the named script.
func (p Paths) Script(name string) string {
	return filepath.Join(p.Dir, name)
}

// Names lists the bundled scripts in sorted order.
func Names() []string {
	entries, _ := fs.ReadDir(bundle, "python")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

// Source returns the content of a bundled script.
func Source(name string) ([]byte, error) {
	return bundle.ReadFile(path.Join("python", name))
}

// Version is a short hash over every bundled script.
func Version() string {
	h := sha256.New()
	for _, name := range Names() {
		data, _ := Source(name)
		fmt.Fprintf(h, "%s\x00%d\x00", name, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Install writes the bundled scripts to root/<version>/ and returns their
// location. Files already present with the same content are left alone.
func Install(root string) (Paths, error) {
	dir := filepath.Join(root, Version())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Paths{}, fmt.Errorf("creating scripts dir: %w", err)
	}

	written := 0
	for _, name := range Names() {
		data, err := Source(name)
		if err != nil {
			return Paths{}, err
		}
		dest := filepath.Join(dir, name)
		if existing, err := os.ReadFile(dest); err == nil && bytes.Equal(existing, data) {
			continue
		}
		if err := renameio.WriteFile(dest, data, 0o644); err != nil {
			return Paths{}, fmt.Errorf("installing %s: %w", name, err)
		}
		written++
	}
	if written > 0 {
		log.Debug("scripts: installed %d script(s) in %s", written, dir)
	}
	return Paths{Dir: dir}, nil
}
