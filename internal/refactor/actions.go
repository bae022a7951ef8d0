// ABOUTME: Code actions: rope proposals turned into titled, kinded edit sets
// ABOUTME: Unknown proposal types and proposals that change nothing are dropped

package refactor

import (
	"context"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/rope"
)

// Code action kinds, as editors speaking LSP name them.
const (
	KindInline           = "refactor.inline"
	KindExtractParameter = "refactor.extract.parameter"
)

// Action is one refactoring offered at a position.
type Action struct {
	Title string              `json:"title"`
	Kind  string              `json:"kind"`
	Type  rope.RefactorType   `json:"type"`
	Edit  *edit.WorkspaceEdit `json:"edit"`
}

// Describe returns the title and kind for a proposal type.
func Describe(t rope.RefactorType) (title, kind string, ok bool) {
	switch t {
	case rope.RefactorInline:
		return "Inline", KindInline, true
	case rope.RefactorIntroduceParameter:
		return "Introduce parameter", KindExtractParameter, true
	}
	return "", "", false
}

// BuildActions assembles an edit set for each usable proposal, in order.
func BuildActions(ctx context.Context, docs edit.Documents, proposals []rope.Proposal) []Action {
	actions := make([]Action, 0, len(proposals))
	for _, p := range proposals {
		title, kind, ok := Describe(p.Type)
		if !ok {
			log.Debug("refactor: skipping unknown proposal type %q", p.Type)
			continue
		}
		if len(p.ChangedFiles) == 0 {
			continue
		}
		ws, err := edit.Assemble(ctx, docs, p.ChangedFiles)
		if err != nil {
			log.Warn("refactor: %s: %v", title, err)
			continue
		}
		actions = append(actions, Action{Title: title, Kind: kind, Type: p.Type, Edit: ws})
	}
	return actions
}

// CodeActions lists the refactorings available at a code-point offset.
func (s *Session) CodeActions(ctx context.Context, file string, offset int) ([]Action, error) {
	proposals, err := s.GetRefactors(ctx, file, offset)
	if err != nil {
		return nil, err
	}
	return BuildActions(ctx, s.Options().Docs, proposals), nil
}
