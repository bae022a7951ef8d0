// ABOUTME: Document sources for edit assembly: files on disk, optionally overlaid by editor buffers
// ABOUTME: Overlay buffers win over disk so unsaved editor state is what edits are computed against

package edit

import (
	"context"
	"os"
	"sync"
)

// Documents resolves the current content of a file.
type Documents interface {
	Read(ctx context.Context, path string) (string, error)
}

// Disk reads documents from the file system.
type Disk struct{}

func (Disk) Read(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Overlay serves in-memory buffers and falls back to Base for other paths.
type Overlay struct {
	Base Documents

	mu      sync.RWMutex
	buffers map[string]string
}

// NewOverlay creates an overlay over base; a nil base means Disk.
func NewOverlay(base Documents) *Overlay {
	if base == nil {
		base = Disk{}
	}
	return &Overlay{Base: base, buffers: make(map[string]string)}
}

// Set records the buffer content for path.
func (o *Overlay) Set(path, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buffers[NormalizePath(path)] = content
}

// Forget drops the buffer for path so reads go back to Base.
func (o *Overlay) Forget(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.buffers, NormalizePath(path))
}

func (o *Overlay) Read(ctx context.Context, path string) (string, error) {
	o.mu.RLock()
	content, ok := o.buffers[NormalizePath(path)]
	o.mu.RUnlock()
	if ok {
		return content, nil
	}
	return o.Base.Read(ctx, path)
}
