// ABOUTME: Tests for Session: lifecycle, caching, request coalescing, restart and status
// ABOUTME: A fake backend stands in for the rope server process

package refactor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/python"
	"github.com/mauromedda/pyrefactor-go/internal/rope"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

type fakeBackend struct {
	pid       int
	cfg       rope.ClientConfig
	proposals func(file string, offset int) []rope.Proposal
	release   chan struct{} // when set, GetRefactors blocks until closed
	startErr  error

	calls   atomic.Int32
	mu      sync.Mutex
	running bool
	stopped bool
}

func (b *fakeBackend) Start(context.Context) error {
	if b.startErr != nil {
		return b.startErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

func (b *fakeBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	b.stopped = true
	return nil
}

func (b *fakeBackend) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *fakeBackend) PID() int { return b.pid }

func (b *fakeBackend) GetRefactors(ctx context.Context, file string, offset int) ([]rope.Proposal, error) {
	b.calls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.proposals == nil {
		return []rope.Proposal{}, nil
	}
	return b.proposals(file, offset), nil
}

// backendFactory records every backend a session creates.
type backendFactory struct {
	mu       sync.Mutex
	backends []*fakeBackend
	template fakeBackend
}

func (f *backendFactory) New(cfg rope.ClientConfig) Backend {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &fakeBackend{
		pid:       100 + len(f.backends),
		cfg:       cfg,
		proposals: f.template.proposals,
		release:   f.template.release,
		startErr:  f.template.startErr,
	}
	f.backends = append(f.backends, b)
	return b
}

func (f *backendFactory) last() *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backends[len(f.backends)-1]
}

func inlineProposal(file string) []rope.Proposal {
	return []rope.Proposal{{
		Type:         rope.RefactorInline,
		ChangedFiles: []rope.ChangedFile{{Path: file, NewContents: "y = 2\n"}},
	}}
}

func newTestSession(t *testing.T, f *backendFactory, ttl time.Duration) *Session {
	t.Helper()
	s := NewSession(Options{
		ProjectDir:     t.TempDir(),
		Interpreter:    python.Interpreter{Argv: []string{"python3"}},
		Protocol:       rope.ProtocolPlain,
		RequestTimeout: 5 * time.Second,
		CacheTTL:       ttl,
		NewBackend:     f.New,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func tempPyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.py")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSession_NotStarted(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &backendFactory{}, time.Minute)
	if _, err := s.GetRefactors(context.Background(), "/x.py", 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("GetRefactors before Start = %v, want ErrNotStarted", err)
	}
}

func TestSession_StartTwice(t *testing.T) {
	t.Parallel()

	s := newTestSession(t, &backendFactory{}, 0)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, rope.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestSession_StartFailureLeavesSessionStopped(t *testing.T) {
	t.Parallel()

	f := &backendFactory{template: fakeBackend{startErr: rope.ErrNotReady}}
	s := newTestSession(t, f, 0)
	if err := s.Start(context.Background()); !errors.Is(err, rope.ErrNotReady) {
		t.Fatalf("Start = %v, want ErrNotReady", err)
	}
	if s.Status().Running {
		t.Error("session reports running after failed start")
	}
	if _, err := s.GetRefactors(context.Background(), "/x.py", 1); !errors.Is(err, ErrNotStarted) {
		t.Errorf("GetRefactors = %v, want ErrNotStarted", err)
	}
}

func TestSession_CachesUntilFileChanges(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	f := &backendFactory{template: fakeBackend{proposals: func(file string, _ int) []rope.Proposal {
		return inlineProposal(file)
	}}}
	s := newTestSession(t, f, time.Minute)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := s.GetRefactors(ctx, file, 0)
	if err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}
	second, err := s.GetRefactors(ctx, file, 0)
	if err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached answer differs (-first +second):\n%s", diff)
	}
	if n := f.last().calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1 with a warm cache", n)
	}
	if got := s.Status().Cached; got != 1 {
		t.Errorf("Status().Cached = %d, want 1", got)
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(file, later, later); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetRefactors(ctx, file, 0); err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}
	if n := f.last().calls.Load(); n != 2 {
		t.Errorf("backend calls = %d, want 2 after the file changed", n)
	}

	if _, err := s.GetRefactors(ctx, file, 3); err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}
	if n := f.last().calls.Load(); n != 3 {
		t.Errorf("backend calls = %d, want 3 for a new offset", n)
	}
}

func TestSession_NoCacheWhenDisabled(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	f := &backendFactory{}
	s := newTestSession(t, f, 0)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for range 3 {
		if _, err := s.GetRefactors(ctx, file, 0); err != nil {
			t.Fatalf("GetRefactors: %v", err)
		}
	}
	if n := f.last().calls.Load(); n != 3 {
		t.Errorf("backend calls = %d, want 3 without a cache", n)
	}
}

func TestSession_CoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	release := make(chan struct{})
	f := &backendFactory{template: fakeBackend{release: release}}
	s := newTestSession(t, f, 0)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.GetRefactors(ctx, file, 4)
			errs <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetRefactors: %v", err)
		}
	}
	if n := f.last().calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1 for identical concurrent requests", n)
	}
}

func TestSession_CancelledCallerDoesNotFailSharedRequest(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	release := make(chan struct{})
	f := &backendFactory{template: fakeBackend{
		release:   release,
		proposals: func(file string, _ int) []rope.Proposal { return inlineProposal(file) },
	}}
	s := newTestSession(t, f, 0)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.GetRefactors(firstCtx, file, 4)
		first <- err
	}()
	waitForCalls(t, f.last(), 1)

	type result struct {
		proposals []rope.Proposal
		err       error
	}
	second := make(chan result, 1)
	go func() {
		p, err := s.GetRefactors(context.Background(), file, 4)
		second <- result{p, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller err = %v, want context.Canceled", err)
	}
	select {
	case r := <-second:
		t.Fatalf("waiting caller returned before the server answered: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	r := <-second
	if r.err != nil {
		t.Fatalf("waiting caller err = %v", r.err)
	}
	if diff := cmp.Diff(inlineProposal(file), r.proposals); diff != "" {
		t.Errorf("proposals mismatch (-want +got):\n%s", diff)
	}
	if n := f.last().calls.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}
}

func TestSession_RequestsAfterRestartAreNotShared(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	release := make(chan struct{})
	f := &backendFactory{template: fakeBackend{release: release}}
	s := newTestSession(t, f, 0)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	old := f.last()

	oldDone := make(chan struct{})
	go func() {
		defer close(oldDone)
		_, _ = s.GetRefactors(ctx, file, 4)
	}()
	waitForCalls(t, old, 1)

	// Restart while the old request is still blocked in the old backend.
	if err := s.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	fresh := f.last()
	newDone := make(chan struct{})
	go func() {
		defer close(newDone)
		_, _ = s.GetRefactors(ctx, file, 4)
	}()
	waitForCalls(t, fresh, 1)

	close(release)
	<-oldDone
	<-newDone
}

func waitForCalls(t *testing.T, b *fakeBackend, n int32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for b.calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("backend saw %d calls, want %d", b.calls.Load(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_RestartReplacesBackend(t *testing.T) {
	t.Parallel()

	file := tempPyFile(t, "x = 2\n")
	f := &backendFactory{}
	s := newTestSession(t, f, time.Minute)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	old := f.last()
	if _, err := s.GetRefactors(ctx, file, 0); err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}

	if err := s.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	fresh := f.last()
	if fresh == old {
		t.Fatal("Restart reused the old backend")
	}
	if !old.stopped {
		t.Error("old backend was not stopped")
	}
	st := s.Status()
	if !st.Running || st.PID != fresh.pid || st.Cached != 0 {
		t.Errorf("Status after restart = %+v", st)
	}

	if _, err := s.GetRefactors(ctx, file, 0); err != nil {
		t.Fatalf("GetRefactors: %v", err)
	}
	if fresh.calls.Load() != 1 {
		t.Error("request after restart did not reach the new backend")
	}
}

func TestSession_ReconfigureAppliesNewOptions(t *testing.T) {
	t.Parallel()

	f := &backendFactory{}
	s := newTestSession(t, f, time.Minute)
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	opts := s.Options()
	opts.Protocol = rope.ProtocolTagged
	opts.CacheTTL = 0
	if err := s.Reconfigure(ctx, opts); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if got := f.last().cfg.Protocol; got != rope.ProtocolTagged {
		t.Errorf("new backend protocol = %q, want tagged", got)
	}
	if s.Status().Protocol != rope.ProtocolTagged {
		t.Error("status does not reflect the new protocol")
	}
}

func TestSession_CloseStopsBackend(t *testing.T) {
	t.Parallel()

	f := &backendFactory{}
	s := newTestSession(t, f, 0)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !f.last().stopped {
		t.Error("Close did not stop the backend")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Settings{
		Protocol:         "tagged",
		IgnoredResources: []string{"*.pyc"},
		SourceFolders:    []string{"src"},
		Env:              map[string]string{"A": "1"},
	}
	interp := python.Interpreter{Argv: []string{"/venv/bin/python", "-I"}, Source: python.SourceProject}
	opts, err := OptionsFromConfig(cfg, "/proj", interp, scripts.Paths{Dir: "/scripts"})
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}

	want := rope.ClientConfig{
		Command:      "/venv/bin/python",
		Args:         []string{"-I"},
		ServerScript: "/scripts/rope_server.py",
		ProjectDir:   "/proj",
		Settings: rope.Settings{
			IgnoredResources: []string{"*.pyc"},
			SourceFolders:    []string{"src"},
			ParameterName:    "new_parameter",
		},
		Protocol:         rope.ProtocolTagged,
		Dir:              "/proj",
		Env:              []string{"A=1"},
		HandshakeTimeout: config.DefaultHandshakeTimeout,
	}
	if diff := cmp.Diff(want, opts.ClientConfig()); diff != "" {
		t.Errorf("ClientConfig mismatch (-want +got):\n%s", diff)
	}

	if _, err := OptionsFromConfig(&config.Settings{Protocol: "grpc"}, "/proj", interp, scripts.Paths{}); err == nil {
		t.Error("unknown protocol accepted")
	}
}
