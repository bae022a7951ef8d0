// ABOUTME: One-shot refactorings run through bundled scripts instead of the long-lived server
// ABOUTME: Inline, introduce parameter and local-to-field; each yields an edit set or ErrNoChanges

package refactor

import (
	"context"
	"errors"
	"strconv"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

// ErrNoChanges means the refactoring produced no edits at that position.
var ErrNoChanges = errors.New("refactor: nothing to change here")

// Inline inlines the variable, method or parameter at offset.
func (s *Session) Inline(ctx context.Context, file string, offset int) (*edit.WorkspaceEdit, error) {
	return s.runScript(ctx, scripts.Inline, file, offset)
}

// IntroduceParameter turns the expression at offset into a parameter.
// An empty name uses the configured default.
func (s *Session) IntroduceParameter(ctx context.Context, file string, offset int, name string) (*edit.WorkspaceEdit, error) {
	if name == "" {
		name = s.Options().ParameterName
	}
	return s.runScript(ctx, scripts.IntroduceParameter, file, offset, name)
}

// LocalToField turns the local variable at offset into an instance attribute.
func (s *Session) LocalToField(ctx context.Context, file string, offset int) (*edit.WorkspaceEdit, error) {
	return s.runScript(ctx, scripts.LocalToField, file, offset)
}

func (s *Session) runScript(ctx context.Context, script, file string, offset int, extra ...string) (*edit.WorkspaceEdit, error) {
	opts := s.Options()
	args := append([]string{}, opts.Interpreter.Args()...)
	args = append(args, opts.Scripts.Script(script), opts.ProjectDir, file, strconv.Itoa(offset))
	args = append(args, extra...)

	files := <-opts.Runner.RunScript(ctx, opts.Interpreter.Command(), args)
	if len(files) == 0 {
		return nil, ErrNoChanges
	}
	return edit.Assemble(ctx, opts.Docs, files)
}

// Apply writes an edit set to disk and drops cached proposals.
func (s *Session) Apply(ctx context.Context, ws *edit.WorkspaceEdit) error {
	if err := edit.Apply(ctx, edit.Disk{}, ws); err != nil {
		return err
	}
	s.Invalidate()
	if o, ok := s.Options().Docs.(*edit.Overlay); ok {
		for _, p := range ws.Paths() {
			o.Forget(p)
		}
	}
	return nil
}
