// ABOUTME: Request/response schema types for the refactoring RPC methods
// ABOUTME: Positions arrive as a code-point offset or a line/UTF-16 column pair

package rpc

import (
	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
)

// InitializeParams selects the project a session serves.
type InitializeParams struct {
	// Folders are the editor's workspace folders; with several, the one
	// containing File is used.
	Folders  []string `json:"folders"`
	File     string   `json:"file,omitempty"`
	Python   string   `json:"python,omitempty"`
	Protocol string   `json:"protocol,omitempty"`
}

// InitializeResult is the response payload for the initialize method.
type InitializeResult struct {
	Version string          `json:"version"`
	Methods []string        `json:"methods"`
	Status  refactor.Status `json:"status"`
}

// PositionParams locates a refactoring. Offset wins over Position.
// Content, when present, is the unsaved editor buffer for File.
type PositionParams struct {
	File     string         `json:"file"`
	Offset   *int           `json:"offset,omitempty"`
	Position *edit.Position `json:"position,omitempty"`
	Content  *string        `json:"content,omitempty"`
}

// IntroduceParameterParams adds the parameter name; empty uses the configured default.
type IntroduceParameterParams struct {
	PositionParams
	Name string `json:"name,omitempty"`
}

// CodeActionsResult is the response payload for the code_actions method.
type CodeActionsResult struct {
	Actions []refactor.Action `json:"actions"`
}

// EditResult carries the edit set of a one-shot refactoring; a null edit
// means there was nothing to change.
type EditResult struct {
	Edit *edit.WorkspaceEdit `json:"edit"`
}

// EditParams carries an edit set back from the editor.
type EditParams struct {
	Edit *edit.WorkspaceEdit `json:"edit"`
}

// ApplyResult is the response payload for the apply method.
type ApplyResult struct {
	Applied bool     `json:"applied"`
	Files   []string `json:"files"`
}

// PreviewResult is the response payload for the preview method.
type PreviewResult struct {
	Diff    string `json:"diff"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// StatusResult is the response payload for the status method.
type StatusResult struct {
	Initialized bool             `json:"initialized"`
	Session     *refactor.Status `json:"session,omitempty"`
}

// ShutdownResult is the response payload for the shutdown method.
type ShutdownResult struct {
	Stopped bool `json:"stopped"`
}
