// ABOUTME: Handler implementations for the refactoring RPC methods
// ABOUTME: Dispatches requests to the session opened by initialize, with input validation

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
)

// HandlerFunc processes an RPC request's params and returns a Response.
type HandlerFunc func(ctx context.Context, params json.RawMessage) Response

// Router dispatches RPC requests to registered handlers by method name.
type Router struct {
	handlers map[string]HandlerFunc
}

// NewRouter creates a Router with an empty handler registry.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register associates a method name with a handler function.
func (r *Router) Register(method string, handler HandlerFunc) {
	r.handlers[method] = handler
}

// Methods lists the registered method names, sorted.
func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Handle dispatches a request to the registered handler, or returns
// a method-not-found error if no handler is registered.
func (r *Router) Handle(ctx context.Context, req Request) Response {
	h, ok := r.handlers[req.Method]
	if !ok {
		return Response{
			ID:    req.ID,
			Error: NewMethodNotFoundError(req.Method),
		}
	}

	resp := h(ctx, req.Params)
	resp.ID = req.ID
	return resp
}

// Deps holds what handlers call into.
type Deps struct {
	Version string
	// Overlay holds unsaved editor buffers; sessions opened by Open should
	// read documents through it.
	Overlay *edit.Overlay
	// Open builds and starts a session for the selected project.
	Open func(ctx context.Context, p InitializeParams) (*refactor.Session, error)
}

// workspace holds the session opened by the last initialize call.
type workspace struct {
	deps    *Deps
	methods func() []string

	mu      sync.RWMutex
	session *refactor.Session
}

func (w *workspace) current() (*refactor.Session, *Error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.session == nil {
		return nil, NewNoSessionError()
	}
	return w.session, nil
}

// swap installs s and returns the session it replaced.
func (w *workspace) swap(s *refactor.Session) *refactor.Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.session
	w.session = s
	return old
}

// RegisterHandlers wires every method handler into the given router and
// returns a function that closes the open session, if any.
func RegisterHandlers(r *Router, d *Deps) (closeSession func() error) {
	if d.Overlay == nil {
		d.Overlay = edit.NewOverlay(nil)
	}
	w := &workspace{deps: d, methods: r.Methods}

	r.Register(MethodInitialize, w.handleInitialize)
	r.Register(MethodCodeActions, w.handleCodeActions)
	r.Register(MethodInline, w.handleOneShot((*refactor.Session).Inline))
	r.Register(MethodIntroduceParameter, w.handleIntroduceParameter)
	r.Register(MethodLocalToField, w.handleOneShot((*refactor.Session).LocalToField))
	r.Register(MethodPreview, w.handlePreview)
	r.Register(MethodApply, w.handleApply)
	r.Register(MethodRestart, w.handleRestart)
	r.Register(MethodStatus, w.handleStatus)
	r.Register(MethodShutdown, w.handleShutdown)

	return func() error {
		if old := w.swap(nil); old != nil {
			return old.Close()
		}
		return nil
	}
}

func decodeParams(raw json.RawMessage, v any) *Error {
	if len(raw) == 0 {
		return NewInvalidParamsError("missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewInvalidParamsError("invalid params: " + err.Error())
	}
	return nil
}

func (w *workspace) handleInitialize(ctx context.Context, raw json.RawMessage) Response {
	var p InitializeParams
	if len(raw) > 0 {
		if err := decodeParams(raw, &p); err != nil {
			return Response{Error: err}
		}
	}
	if w.deps.Open == nil {
		return Response{Error: NewInternalError("initialize is not supported")}
	}

	s, err := w.deps.Open(ctx, p)
	if err != nil {
		return Response{Error: errorFor(err)}
	}
	if old := w.swap(s); old != nil {
		if err := old.Close(); err != nil {
			log.Warn("rpc: closing previous session: %v", err)
		}
	}
	return Response{Result: InitializeResult{
		Version: w.deps.Version,
		Methods: w.methods(),
		Status:  s.Status(),
	}}
}

// position resolves params to a file and a code-point offset. A request
// with content records it as the file's buffer; one without content means
// the editor's buffer matches disk, so any recorded buffer is dropped.
func (w *workspace) position(ctx context.Context, p PositionParams) (string, int, *Error) {
	if p.File == "" {
		return "", 0, NewInvalidParamsError("file is required")
	}
	if p.Content != nil {
		w.deps.Overlay.Set(p.File, *p.Content)
	} else {
		w.deps.Overlay.Forget(p.File)
	}
	switch {
	case p.Offset != nil:
		if *p.Offset < 0 {
			return "", 0, NewInvalidParamsError("offset must not be negative")
		}
		return p.File, *p.Offset, nil
	case p.Position != nil:
		content, err := w.deps.Overlay.Read(ctx, p.File)
		if err != nil {
			return "", 0, NewInvalidParamsError("reading " + p.File + ": " + err.Error())
		}
		return p.File, edit.RuneOffset(content, *p.Position), nil
	}
	return "", 0, NewInvalidParamsError("offset or position is required")
}

func (w *workspace) handleCodeActions(ctx context.Context, raw json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	var p PositionParams
	if err := decodeParams(raw, &p); err != nil {
		return Response{Error: err}
	}
	file, offset, rpcErr := w.position(ctx, p)
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}

	actions, err := s.CodeActions(ctx, file, offset)
	if err != nil {
		return Response{Error: errorFor(err)}
	}
	return Response{Result: CodeActionsResult{Actions: actions}}
}

type oneShot func(s *refactor.Session, ctx context.Context, file string, offset int) (*edit.WorkspaceEdit, error)

func (w *workspace) handleOneShot(run oneShot) HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) Response {
		s, rpcErr := w.current()
		if rpcErr != nil {
			return Response{Error: rpcErr}
		}
		var p PositionParams
		if err := decodeParams(raw, &p); err != nil {
			return Response{Error: err}
		}
		file, offset, rpcErr := w.position(ctx, p)
		if rpcErr != nil {
			return Response{Error: rpcErr}
		}
		return editResponse(run(s, ctx, file, offset))
	}
}

func (w *workspace) handleIntroduceParameter(ctx context.Context, raw json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	var p IntroduceParameterParams
	if err := decodeParams(raw, &p); err != nil {
		return Response{Error: err}
	}
	file, offset, rpcErr := w.position(ctx, p.PositionParams)
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	return editResponse(s.IntroduceParameter(ctx, file, offset, p.Name))
}

func editResponse(ws *edit.WorkspaceEdit, err error) Response {
	switch {
	case errors.Is(err, refactor.ErrNoChanges):
		return Response{Result: EditResult{}}
	case err != nil:
		return Response{Error: errorFor(err)}
	}
	return Response{Result: EditResult{Edit: ws}}
}

func (w *workspace) handlePreview(ctx context.Context, raw json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	var p EditParams
	if err := decodeParams(raw, &p); err != nil {
		return Response{Error: err}
	}
	if p.Edit == nil {
		return Response{Error: NewInvalidParamsError("edit is required")}
	}

	opts := s.Options()
	diff, err := edit.Preview(ctx, opts.Docs, p.Edit, opts.ProjectDir)
	if err != nil {
		return Response{Error: errorFor(err)}
	}
	added, removed, err := edit.Stats(ctx, opts.Docs, p.Edit)
	if err != nil {
		return Response{Error: errorFor(err)}
	}
	return Response{Result: PreviewResult{Diff: diff, Added: added, Removed: removed}}
}

func (w *workspace) handleApply(ctx context.Context, raw json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	var p EditParams
	if err := decodeParams(raw, &p); err != nil {
		return Response{Error: err}
	}
	if p.Edit == nil {
		return Response{Error: NewInvalidParamsError("edit is required")}
	}

	if err := s.Apply(ctx, p.Edit); err != nil {
		return Response{Error: errorFor(err)}
	}
	files := p.Edit.Paths()
	if files == nil {
		files = []string{}
	}
	return Response{Result: ApplyResult{Applied: true, Files: files}}
}

func (w *workspace) handleRestart(ctx context.Context, _ json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Error: rpcErr}
	}
	if err := s.Restart(ctx); err != nil {
		return Response{Error: errorFor(err)}
	}
	st := s.Status()
	return Response{Result: StatusResult{Initialized: true, Session: &st}}
}

func (w *workspace) handleStatus(_ context.Context, _ json.RawMessage) Response {
	s, rpcErr := w.current()
	if rpcErr != nil {
		return Response{Result: StatusResult{}}
	}
	st := s.Status()
	return Response{Result: StatusResult{Initialized: true, Session: &st}}
}

func (w *workspace) handleShutdown(_ context.Context, _ json.RawMessage) Response {
	if old := w.swap(nil); old != nil {
		if err := old.Close(); err != nil {
			log.Warn("rpc: closing session: %v", err)
		}
	}
	return Response{Result: ShutdownResult{Stopped: true}}
}
