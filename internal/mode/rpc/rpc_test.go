// ABOUTME: Tests for RPC server, router, methods, and error handling
// ABOUTME: Sessions run on a fake rope backend and script runner; JSONL goes through pipes

package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/python"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
	"github.com/mauromedda/pyrefactor-go/internal/rope"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

// --- fakes ---

type fakeBackend struct {
	pid       int
	proposals func(file string, offset int) []rope.Proposal

	mu      sync.Mutex
	running bool
	offsets []int
}

func (b *fakeBackend) Start(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

func (b *fakeBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

func (b *fakeBackend) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *fakeBackend) PID() int { return b.pid }

func (b *fakeBackend) GetRefactors(_ context.Context, file string, offset int) ([]rope.Proposal, error) {
	b.mu.Lock()
	b.offsets = append(b.offsets, offset)
	running := b.running
	b.mu.Unlock()
	if !running {
		return nil, rope.ErrStopped
	}
	if b.proposals == nil {
		return []rope.Proposal{}, nil
	}
	return b.proposals(file, offset), nil
}

type fakeRunner struct {
	mu     sync.Mutex
	args   []string
	output []rope.ChangedFile
}

func (r *fakeRunner) RunScript(_ context.Context, _ string, args []string) <-chan []rope.ChangedFile {
	r.mu.Lock()
	r.args = args
	out := r.output
	r.mu.Unlock()
	ch := make(chan []rope.ChangedFile, 1)
	ch <- out
	close(ch)
	return ch
}

func (r *fakeRunner) lastArgs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.args
}

// harness wires a router to sessions built on the fakes.
type harness struct {
	router   *Router
	overlay  *edit.Overlay
	runner   *fakeRunner
	dir      string
	closeAll func() error

	mu       sync.Mutex
	backends []*fakeBackend
	opened   []InitializeParams
}

func newHarness(t *testing.T, proposals func(file string, offset int) []rope.Proposal) *harness {
	t.Helper()
	h := &harness{
		router:  NewRouter(),
		overlay: edit.NewOverlay(nil),
		runner:  &fakeRunner{},
		dir:     t.TempDir(),
	}
	newBackend := func(rope.ClientConfig) refactor.Backend {
		h.mu.Lock()
		defer h.mu.Unlock()
		b := &fakeBackend{pid: 100 + len(h.backends), proposals: proposals}
		h.backends = append(h.backends, b)
		return b
	}
	h.closeAll = RegisterHandlers(h.router, &Deps{
		Version: "test",
		Overlay: h.overlay,
		Open: func(ctx context.Context, p InitializeParams) (*refactor.Session, error) {
			h.mu.Lock()
			h.opened = append(h.opened, p)
			h.mu.Unlock()
			s := refactor.NewSession(refactor.Options{
				ProjectDir:  h.dir,
				Interpreter: python.Interpreter{Argv: []string{"python3"}},
				Scripts:     scripts.Paths{Dir: "/scripts"},
				Docs:        h.overlay,
				NewBackend:  newBackend,
				Runner:      h.runner,
			})
			if err := s.Start(ctx); err != nil {
				return nil, err
			}
			return s, nil
		},
	})
	t.Cleanup(func() { _ = h.closeAll() })
	return h
}

func (h *harness) call(t *testing.T, method string, params any) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = data
	}
	return h.router.Handle(context.Background(), Request{ID: "1", Method: method, Params: raw})
}

func (h *harness) initialize(t *testing.T) {
	t.Helper()
	resp := h.call(t, MethodInitialize, InitializeParams{Folders: []string{h.dir}})
	if resp.Error != nil {
		t.Fatalf("initialize: %v", resp.Error)
	}
}

func (h *harness) writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeResult[T any](t *testing.T, resp Response) T {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return v
}

func intPtr(n int) *int { return &n }

func inlineProposal(file, contents string) func(string, int) []rope.Proposal {
	return func(string, int) []rope.Proposal {
		return []rope.Proposal{{
			Type:         rope.RefactorInline,
			ChangedFiles: []rope.ChangedFile{{Path: file, NewContents: contents}},
		}}
	}
}

// --- Error constructor tests ---

func TestNewParseError(t *testing.T) {
	e := NewParseError("bad json")
	if e.Code != ErrCodeParse {
		t.Errorf("Code = %d; want %d", e.Code, ErrCodeParse)
	}
	if e.Message != "bad json" {
		t.Errorf("Message = %q; want %q", e.Message, "bad json")
	}
}

func TestNewMethodNotFoundError(t *testing.T) {
	e := NewMethodNotFoundError("bogus")
	if e.Code != ErrCodeMethodNotFound {
		t.Errorf("Code = %d; want %d", e.Code, ErrCodeMethodNotFound)
	}
	if !strings.Contains(e.Message, "bogus") {
		t.Errorf("Message = %q; want it to contain %q", e.Message, "bogus")
	}
}

func TestNewInvalidParamsError(t *testing.T) {
	e := NewInvalidParamsError("missing field")
	if e.Code != ErrCodeInvalidParams {
		t.Errorf("Code = %d; want %d", e.Code, ErrCodeInvalidParams)
	}
}

func TestNewInternalError(t *testing.T) {
	e := NewInternalError("oops")
	if e.Code != ErrCodeInternal {
		t.Errorf("Code = %d; want %d", e.Code, ErrCodeInternal)
	}
}

func TestNewNoSessionError(t *testing.T) {
	e := NewNoSessionError()
	if e.Code != ErrCodeNoSession {
		t.Errorf("Code = %d; want %d", e.Code, ErrCodeNoSession)
	}
}

func TestErrorFor(t *testing.T) {
	t.Parallel()

	code := 1
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not started", refactor.ErrNotStarted, ErrCodeServerUnavailable},
		{"stopped", rope.ErrStopped, ErrCodeServerUnavailable},
		{"exited", &rope.ExitError{Code: &code}, ErrCodeServerUnavailable},
		{"spawn", &rope.SpawnError{Command: "python3", Err: os.ErrNotExist}, ErrCodeServerUnavailable},
		{"not ready", &rope.NotReadyError{Got: "{}"}, ErrCodeServerUnavailable},
		{"stale", fmt.Errorf("a.py: %w", edit.ErrStale), ErrCodeStale},
		{"overlap", edit.ErrOverlap, ErrCodeOverlap},
		{"timeout", context.DeadlineExceeded, ErrCodeTimeout},
		{"no interpreter", python.ErrNoInterpreter, ErrCodeEnvironment},
		{"no project", python.ErrNoContainingProject, ErrCodeEnvironment},
		{"rpc error", NewInvalidParamsError("x"), ErrCodeInvalidParams},
		{"other", errors.New("boom"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := errorFor(tt.err)
			if got.Code != tt.want {
				t.Errorf("Code = %d; want %d", got.Code, tt.want)
			}
			if got.Message == "" {
				t.Error("Message is empty")
			}
		})
	}
}

// --- Router tests ---

func TestRouterMethodNotFound(t *testing.T) {
	r := NewRouter()
	resp := r.Handle(context.Background(), Request{ID: "1", Method: "nope"})
	if resp.ID != "1" {
		t.Errorf("ID = %q; want %q", resp.ID, "1")
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("Error = %v; want method not found", resp.Error)
	}
}

func TestRouterMethods(t *testing.T) {
	r := NewRouter()
	RegisterHandlers(r, &Deps{})

	want := []string{
		MethodApply, MethodCodeActions, MethodInitialize, MethodInline,
		MethodIntroduceParameter, MethodLocalToField, MethodPreview,
		MethodRestart, MethodShutdown, MethodStatus,
	}
	if diff := cmp.Diff(want, r.Methods()); diff != "" {
		t.Errorf("Methods() mismatch (-want +got):\n%s", diff)
	}
}

// --- Method tests ---

func TestMethodsRequireSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	for _, method := range []string{
		MethodCodeActions, MethodInline, MethodIntroduceParameter,
		MethodLocalToField, MethodPreview, MethodApply, MethodRestart,
	} {
		resp := h.call(t, method, PositionParams{File: "a.py", Offset: intPtr(0)})
		if resp.Error == nil || resp.Error.Code != ErrCodeNoSession {
			t.Errorf("%s: Error = %v; want no session", method, resp.Error)
		}
	}
}

func TestHandleStatusBeforeInitialize(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	got := decodeResult[StatusResult](t, h.call(t, MethodStatus, nil))
	if got.Initialized || got.Session != nil {
		t.Errorf("status = %+v; want uninitialized", got)
	}
}

func TestHandleInitialize(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	resp := h.call(t, MethodInitialize, InitializeParams{Folders: []string{h.dir}, File: "a.py", Protocol: "tagged"})
	got := decodeResult[InitializeResult](t, resp)
	if got.Version != "test" {
		t.Errorf("Version = %q; want %q", got.Version, "test")
	}
	if !got.Status.Running || got.Status.PID != 100 {
		t.Errorf("Status = %+v; want running with pid 100", got.Status)
	}
	if len(got.Methods) != len(h.router.Methods()) {
		t.Errorf("Methods = %v; want %v", got.Methods, h.router.Methods())
	}
	if diff := cmp.Diff([]InitializeParams{{Folders: []string{h.dir}, File: "a.py", Protocol: "tagged"}}, h.opened); diff != "" {
		t.Errorf("Open params mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleInitializeReplacesSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	h.initialize(t)
	h.initialize(t)

	if h.backends[0].Running() {
		t.Error("first backend still running after re-initialize")
	}
	got := decodeResult[StatusResult](t, h.call(t, MethodStatus, nil))
	if got.Session == nil || got.Session.PID != 101 {
		t.Errorf("status = %+v; want pid 101", got.Session)
	}
}

func TestHandleInitializeOpenFailure(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	RegisterHandlers(r, &Deps{Open: func(context.Context, InitializeParams) (*refactor.Session, error) {
		return nil, fmt.Errorf("resolving interpreter: %w", python.ErrNoInterpreter)
	}})

	resp := r.Handle(context.Background(), Request{ID: "1", Method: MethodInitialize})
	if resp.Error == nil || resp.Error.Code != ErrCodeEnvironment {
		t.Fatalf("Error = %v; want environment error", resp.Error)
	}
}

func TestHandleCodeActionsOffset(t *testing.T) {
	t.Parallel()
	var file string
	h := newHarness(t, func(f string, o int) []rope.Proposal { return inlineProposal(file, "y = 1\n")(f, o) })
	file = h.writeFile(t, "a.py", "x = 1\n")
	h.initialize(t)

	got := decodeResult[CodeActionsResult](t, h.call(t, MethodCodeActions, PositionParams{File: file, Offset: intPtr(0)}))
	if len(got.Actions) != 1 {
		t.Fatalf("got %d actions; want 1", len(got.Actions))
	}
	a := got.Actions[0]
	if a.Title != "Inline" || a.Kind != refactor.KindInline {
		t.Errorf("action = %q/%q; want Inline/%s", a.Title, a.Kind, refactor.KindInline)
	}
	want := []edit.TextEdit{{
		Range:   edit.Range{End: edit.Position{Line: 1}},
		NewText: "y = 1\n",
	}}
	if diff := cmp.Diff(want, a.Edit.Files[0].Edits); diff != "" {
		t.Errorf("edits mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCodeActionsPositionUsesBuffer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "")
	h.initialize(t)

	content := "héllo = 1\nx = héllo\n"
	resp := h.call(t, MethodCodeActions, PositionParams{
		File:     file,
		Position: &edit.Position{Line: 1, Character: 5},
		Content:  &content,
	})
	got := decodeResult[CodeActionsResult](t, resp)
	if len(got.Actions) != 0 {
		t.Errorf("got %d actions; want 0", len(got.Actions))
	}

	b := h.backends[0]
	b.mu.Lock()
	defer b.mu.Unlock()
	if diff := cmp.Diff([]int{15}, b.offsets); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleCodeActionsInvalidParams(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.initialize(t)

	tests := []struct {
		name   string
		params any
	}{
		{"missing params", nil},
		{"missing file", PositionParams{Offset: intPtr(1)}},
		{"missing position", PositionParams{File: "a.py"}},
		{"negative offset", PositionParams{File: "a.py", Offset: intPtr(-1)}},
		{"wrong shape", []int{1, 2}},
	}
	for _, tt := range tests {
		resp := h.call(t, MethodCodeActions, tt.params)
		if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
			t.Errorf("%s: Error = %v; want invalid params", tt.name, resp.Error)
		}
	}
}

func TestHandleInline(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "x = 2\ny = x\n")
	h.runner.output = []rope.ChangedFile{{Path: file, NewContents: "y = 2\n"}}
	h.initialize(t)

	got := decodeResult[EditResult](t, h.call(t, MethodInline, PositionParams{File: file, Offset: intPtr(10)}))
	if got.Edit == nil || len(got.Edit.Files) != 1 {
		t.Fatalf("edit = %+v; want one file", got.Edit)
	}
	args := h.runner.lastArgs()
	if len(args) < 2 || args[len(args)-1] != "10" || args[len(args)-2] != file {
		t.Errorf("script args = %v; want ... %s 10", args, file)
	}
}

func TestHandleInlineNothingToChange(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "x = 2\n")
	h.initialize(t)

	resp := h.call(t, MethodLocalToField, PositionParams{File: file, Offset: intPtr(0)})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	if string(data) != `{"edit":null}` {
		t.Errorf("result = %s; want {\"edit\":null}", data)
	}
}

func TestHandleIntroduceParameterName(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "def f():\n    return 1\n")
	h.runner.output = []rope.ChangedFile{{Path: file, NewContents: "def f(p=1):\n    return p\n"}}
	h.initialize(t)

	tests := []struct {
		name string
		want string
	}{
		{"", "new_parameter"},
		{"limit", "limit"},
	}
	for _, tt := range tests {
		resp := h.call(t, MethodIntroduceParameter, IntroduceParameterParams{
			PositionParams: PositionParams{File: file, Offset: intPtr(20)},
			Name:           tt.name,
		})
		decodeResult[EditResult](t, resp)
		args := h.runner.lastArgs()
		if got := args[len(args)-1]; got != tt.want {
			t.Errorf("name %q: last arg = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestHandlePreviewAndApply(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "x = 1\n")
	h.runner.output = []rope.ChangedFile{{Path: file, NewContents: "y = 1\n"}}
	h.initialize(t)

	ws := decodeResult[EditResult](t, h.call(t, MethodInline, PositionParams{File: file, Offset: intPtr(0)})).Edit

	preview := decodeResult[PreviewResult](t, h.call(t, MethodPreview, EditParams{Edit: ws}))
	if !strings.Contains(preview.Diff, "-x = 1") || !strings.Contains(preview.Diff, "+y = 1") {
		t.Errorf("diff = %q; want the changed line", preview.Diff)
	}
	if preview.Added != 1 || preview.Removed != 1 {
		t.Errorf("stats = +%d -%d; want +1 -1", preview.Added, preview.Removed)
	}

	applied := decodeResult[ApplyResult](t, h.call(t, MethodApply, EditParams{Edit: ws}))
	if !applied.Applied || len(applied.Files) != 1 {
		t.Errorf("apply = %+v; want one applied file", applied)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "y = 1\n" {
		t.Errorf("file = %q; want %q", data, "y = 1\n")
	}

	resp := h.call(t, MethodApply, EditParams{Edit: ws})
	if resp.Error == nil || resp.Error.Code != ErrCodeStale {
		t.Errorf("second apply: Error = %v; want stale", resp.Error)
	}
}

func TestHandleApplyAfterBufferIsSaved(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	file := h.writeFile(t, "a.py", "x = 1\n")
	h.runner.output = []rope.ChangedFile{{Path: file, NewContents: "y = 1\n"}}
	h.initialize(t)

	unsaved := "x = 1  # edited\n"
	ws := decodeResult[EditResult](t, h.call(t, MethodInline, PositionParams{
		File:    file,
		Offset:  intPtr(0),
		Content: &unsaved,
	})).Edit
	if ws == nil || ws.Files[0].BaseHash != edit.Hash(unsaved) {
		t.Fatalf("edit = %+v; want it computed against the buffer", ws)
	}
	resp := h.call(t, MethodApply, EditParams{Edit: ws})
	if resp.Error == nil || resp.Error.Code != ErrCodeStale {
		t.Fatalf("apply of a buffer edit: Error = %v; want stale", resp.Error)
	}

	// The editor saved or reverted; the next request carries no buffer.
	ws = decodeResult[EditResult](t, h.call(t, MethodInline, PositionParams{File: file, Offset: intPtr(0)})).Edit
	if ws == nil || ws.Files[0].BaseHash != edit.Hash("x = 1\n") {
		t.Fatalf("edit = %+v; want it computed against the file on disk", ws)
	}
	applied := decodeResult[ApplyResult](t, h.call(t, MethodApply, EditParams{Edit: ws}))
	if !applied.Applied {
		t.Errorf("apply = %+v; want applied", applied)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "y = 1\n" {
		t.Errorf("file = %q; want %q", data, "y = 1\n")
	}
}

func TestHandleApplyRequiresEdit(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.initialize(t)

	for _, method := range []string{MethodApply, MethodPreview} {
		resp := h.call(t, method, EditParams{})
		if resp.Error == nil || resp.Error.Code != ErrCodeInvalidParams {
			t.Errorf("%s: Error = %v; want invalid params", method, resp.Error)
		}
	}
}

func TestHandleRestart(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.initialize(t)

	got := decodeResult[StatusResult](t, h.call(t, MethodRestart, nil))
	if got.Session == nil || !got.Session.Running || got.Session.PID != 101 {
		t.Errorf("status = %+v; want running pid 101", got.Session)
	}
	if h.backends[0].Running() {
		t.Error("old backend still running after restart")
	}
}

func TestHandleShutdown(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.initialize(t)

	got := decodeResult[ShutdownResult](t, h.call(t, MethodShutdown, nil))
	if !got.Stopped {
		t.Error("Stopped = false; want true")
	}
	if h.backends[0].Running() {
		t.Error("backend still running after shutdown")
	}
	status := decodeResult[StatusResult](t, h.call(t, MethodStatus, nil))
	if status.Initialized {
		t.Error("still initialized after shutdown")
	}
}

// --- JSONL round-trip via pipe ---

func runServer(t *testing.T, input string, handler func(context.Context, Request) Response) []Response {
	t.Helper()
	pr, pw := io.Pipe()
	srv := NewServer(strings.NewReader(input), pw, handler)

	done := make(chan error, 1)
	go func() {
		err := srv.Run(context.Background())
		pw.Close()
		done <- err
	}()

	var out []Response
	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", scanner.Text(), err)
		}
		out = append(out, resp)
	}
	if err := <-done; err != nil {
		t.Fatalf("server error: %v", err)
	}
	return out
}

func TestServerJSONLRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	out := runServer(t, `{"id":"rt1","method":"status"}`+"\n", h.router.Handle)

	if len(out) != 1 {
		t.Fatalf("got %d responses; want 1", len(out))
	}
	if out[0].ID != "rt1" {
		t.Errorf("ID = %q; want %q", out[0].ID, "rt1")
	}
	if out[0].Error != nil {
		t.Fatalf("unexpected error: %v", out[0].Error)
	}
}

func TestServerJSONLParseError(t *testing.T) {
	out := runServer(t, "not json\n", func(context.Context, Request) Response { return Response{} })

	if len(out) != 1 || out[0].Error == nil {
		t.Fatalf("responses = %+v; want one parse error", out)
	}
	if out[0].Error.Code != ErrCodeParse {
		t.Errorf("Code = %d; want %d", out[0].Error.Code, ErrCodeParse)
	}
}

func TestServerJSONLMissingMethod(t *testing.T) {
	out := runServer(t, `{"id":"x"}`+"\n", func(context.Context, Request) Response { return Response{} })

	if len(out) != 1 || out[0].Error == nil || out[0].Error.Code != ErrCodeInvalidReq {
		t.Fatalf("responses = %+v; want one invalid request error", out)
	}
	if out[0].ID != "x" {
		t.Errorf("ID = %q; want %q", out[0].ID, "x")
	}
}

func TestServerJSONLMultipleRequests(t *testing.T) {
	h := newHarness(t, nil)
	input := `{"id":"m1","method":"status"}` + "\n" +
		"\n" +
		`{"id":"m2","method":"bogus"}` + "\n" +
		`{"id":"m3","method":"code_actions","params":{"file":"a.py","offset":1}}` + "\n"

	out := runServer(t, input, h.router.Handle)
	if len(out) != 3 {
		t.Fatalf("got %d responses; want 3", len(out))
	}
	byID := make(map[string]Response, len(out))
	for _, r := range out {
		byID[r.ID] = r
	}
	if byID["m1"].Error != nil {
		t.Errorf("m1: unexpected error %v", byID["m1"].Error)
	}
	if e := byID["m2"].Error; e == nil || e.Code != ErrCodeMethodNotFound {
		t.Errorf("m2: Error = %v; want method not found", e)
	}
	if e := byID["m3"].Error; e == nil || e.Code != ErrCodeNoSession {
		t.Errorf("m3: Error = %v; want no session", e)
	}
}

func TestServerShutdownStopsReading(t *testing.T) {
	h := newHarness(t, nil)
	input := `{"id":"a","method":"initialize","params":{}}` + "\n" +
		`{"id":"b","method":"shutdown"}` + "\n" +
		`{"id":"c","method":"status"}` + "\n"

	out := runServer(t, input, h.router.Handle)
	ids := make([]string, len(out))
	for i, r := range out {
		ids[i] = r.ID
	}
	if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
		t.Errorf("response ids mismatch (-want +got):\n%s", diff)
	}
}

func TestServerInitializeIsABarrier(t *testing.T) {
	h := newHarness(t, nil)
	input := `{"id":"i","method":"initialize","params":{}}` + "\n" +
		`{"id":"s1","method":"status"}` + "\n" +
		`{"id":"s2","method":"status"}` + "\n"

	out := runServer(t, input, h.router.Handle)
	if len(out) != 3 || out[0].ID != "i" {
		t.Fatalf("responses = %+v; want initialize answered first", out)
	}
	for _, r := range out[1:] {
		var status StatusResult
		data, _ := json.Marshal(r.Result)
		if err := json.Unmarshal(data, &status); err != nil {
			t.Fatalf("%s: %v", r.ID, err)
		}
		if !status.Initialized {
			t.Errorf("%s ran before initialize finished", r.ID)
		}
	}
}
