// ABOUTME: Session: the stable handle collaborators use instead of a global rope client
// ABOUTME: Owns the client lifecycle, per-request timeouts, a short-lived proposal cache and restarts

package refactor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/python"
	"github.com/mauromedda/pyrefactor-go/internal/rope"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

const cacheCapacity = 256

// ErrNotStarted is returned by requests on a session without a running server.
var ErrNotStarted = errors.New("refactor: session not started")

// Backend is the long-lived rope server a session talks to.
type Backend interface {
	Start(ctx context.Context) error
	Stop() error
	GetRefactors(ctx context.Context, file string, offset int) ([]rope.Proposal, error)
	Running() bool
	PID() int
}

// ScriptRunner runs one-shot refactoring scripts.
type ScriptRunner interface {
	RunScript(ctx context.Context, command string, args []string) <-chan []rope.ChangedFile
}

// Options configures a Session.
type Options struct {
	ProjectDir       string
	Interpreter      python.Interpreter
	Scripts          scripts.Paths
	Settings         rope.Settings
	Protocol         rope.Protocol
	Env              []string
	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
	CacheTTL         time.Duration // zero disables caching
	ParameterName    string
	Docs             edit.Documents

	// NewBackend and Runner default to the rope client and script invoker.
	NewBackend func(rope.ClientConfig) Backend
	Runner     ScriptRunner
}

// OptionsFromConfig builds session options from loaded settings.
func OptionsFromConfig(cfg *config.Settings, projectDir string, interp python.Interpreter, paths scripts.Paths) (Options, error) {
	protocol, ok := rope.ParseProtocol(cfg.ProtocolOrDefault())
	if !ok {
		return Options{}, fmt.Errorf("unknown protocol %q (want plain or tagged)", cfg.Protocol)
	}
	return Options{
		ProjectDir:  projectDir,
		Interpreter: interp,
		Scripts:     paths,
		Settings: rope.Settings{
			IgnoredResources: cfg.IgnoredResources,
			SourceFolders:    cfg.SourceFolders,
			ParameterName:    cfg.ParameterNameOrDefault(),
		},
		Protocol:         protocol,
		Env:              cfg.EnvList(),
		HandshakeTimeout: cfg.HandshakeTimeoutOrDefault(),
		RequestTimeout:   cfg.RequestTimeoutOrDefault(),
		CacheTTL:         cfg.CacheTTLOrDefault(),
		ParameterName:    cfg.ParameterNameOrDefault(),
	}, nil
}

// ClientConfig is the rope client configuration these options describe.
func (o Options) ClientConfig() rope.ClientConfig {
	return rope.ClientConfig{
		Command:          o.Interpreter.Command(),
		Args:             o.Interpreter.Args(),
		ServerScript:     o.Scripts.Script(scripts.Server),
		ProjectDir:       o.ProjectDir,
		Settings:         o.Settings,
		Protocol:         o.Protocol,
		Dir:              o.ProjectDir,
		Env:              o.Env,
		HandshakeTimeout: o.HandshakeTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.NewBackend == nil {
		o.NewBackend = func(cfg rope.ClientConfig) Backend { return rope.NewClient(cfg) }
	}
	if o.Runner == nil {
		o.Runner = &rope.ScriptInvoker{Dir: o.ProjectDir, Env: o.Env, Timeout: o.RequestTimeout}
	}
	if o.Docs == nil {
		o.Docs = edit.Disk{}
	}
	if o.ParameterName == "" {
		o.ParameterName = config.DefaultParameterName
	}
	return o
}

type cacheKey struct {
	file   string
	offset int
	mtime  int64
	size   int64
}

// Session is safe for concurrent use. Restart and Reconfigure replace the
// server underneath; callers keep using the same Session.
type Session struct {
	// lifecycle serializes Start, Restart, Reconfigure and Close.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	opts    Options
	backend Backend
	gen     uint64 // bumped for every backend started
	cache   *ttlcache.Cache[cacheKey, []rope.Proposal]

	flight singleflight.Group
}

// NewSession creates a session; call Start before requesting refactorings.
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{opts: opts, cache: newCache(opts.CacheTTL)}
}

func newCache(ttl time.Duration) *ttlcache.Cache[cacheKey, []rope.Proposal] {
	if ttl <= 0 {
		return nil
	}
	return ttlcache.New(
		ttlcache.WithTTL[cacheKey, []rope.Proposal](ttl),
		ttlcache.WithCapacity[cacheKey, []rope.Proposal](cacheCapacity),
		ttlcache.WithDisableTouchOnHit[cacheKey, []rope.Proposal](),
	)
}

// Options returns the current options.
func (s *Session) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Start launches the rope server.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	running := s.backend != nil
	s.mu.RUnlock()
	if running {
		return rope.ErrAlreadyStarted
	}
	return s.start(ctx)
}

func (s *Session) start(ctx context.Context) error {
	opts := s.Options()
	b := opts.NewBackend(opts.ClientConfig())
	if err := b.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.backend = b
	s.gen++
	s.mu.Unlock()
	log.Info("refactor: session started for %s (pid %d)", opts.ProjectDir, b.PID())
	return nil
}

// Restart stops the server, forgets cached proposals and starts a fresh server.
// Requests in flight on the old server fail with rope.ErrStopped.
func (s *Session) Restart(ctx context.Context) error {
	return s.Reconfigure(ctx, s.Options())
}

// Reconfigure restarts the session with new options.
func (s *Session) Reconfigure(ctx context.Context, opts Options) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	opts = opts.withDefaults()
	s.mu.Lock()
	old := s.backend
	s.backend = nil
	s.opts = opts
	s.cache = newCache(opts.CacheTTL)
	s.mu.Unlock()

	if old != nil {
		if err := old.Stop(); err != nil {
			log.Warn("refactor: stopping old server: %v", err)
		}
	}
	return s.start(ctx)
}

// Close stops the server. The session can be started again.
func (s *Session) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	b := s.backend
	s.backend = nil
	if s.cache != nil {
		s.cache.DeleteAll()
	}
	s.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Stop()
}

// Status describes the session for diagnostics.
type Status struct {
	Running     bool          `json:"running"`
	PID         int           `json:"pid,omitempty"`
	ProjectDir  string        `json:"projectDir"`
	Interpreter string        `json:"interpreter"`
	Protocol    rope.Protocol `json:"protocol"`
	Cached      int           `json:"cached"`
}

// Status reports the current state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		ProjectDir: s.opts.ProjectDir,
		Protocol:   s.opts.Protocol,
	}
	if len(s.opts.Interpreter.Argv) > 0 {
		st.Interpreter = s.opts.Interpreter.String()
	}
	if s.backend != nil && s.backend.Running() {
		st.Running = true
		st.PID = s.backend.PID()
	}
	if s.cache != nil {
		st.Cached = s.cache.Len()
	}
	return st
}

type snapshot struct {
	backend Backend
	gen     uint64
	cache   *ttlcache.Cache[cacheKey, []rope.Proposal]
	opts    Options
}

func (s *Session) current() (snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.backend == nil {
		return snapshot{opts: s.opts}, ErrNotStarted
	}
	return snapshot{backend: s.backend, gen: s.gen, cache: s.cache, opts: s.opts}, nil
}

// GetRefactors returns the proposals available at a code-point offset.
// Identical concurrent requests on the same server share one round trip,
// and answers are cached until the file changes on disk or the TTL expires.
// The shared round trip is bounded by RequestTimeout only; a caller whose
// ctx ends stops waiting without failing the others.
func (s *Session) GetRefactors(ctx context.Context, file string, offset int) ([]rope.Proposal, error) {
	cur, err := s.current()
	if err != nil {
		return nil, err
	}
	cache := cur.cache

	key, cacheable := keyFor(file, offset)
	if cacheable && cache != nil {
		if item := cache.Get(key); item != nil {
			log.Debug("refactor: cache hit for %s@%d", file, offset)
			return item.Value(), nil
		}
	}

	flightKey := strconv.FormatUint(cur.gen, 10) + "\x00" + file + "\x00" +
		strconv.Itoa(offset) + "\x00" + strconv.FormatInt(key.mtime, 10)
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(flightKey, func() (any, error) {
		rctx := shared
		if cur.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			rctx, cancel = context.WithTimeout(shared, cur.opts.RequestTimeout)
			defer cancel()
		}
		return cur.backend.GetRefactors(rctx, file, offset)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		log.Debug("refactor: shared in-flight request for %s@%d", file, offset)
	}
	proposals := res.Val.([]rope.Proposal)
	if cacheable && cache != nil {
		cache.Set(key, proposals, ttlcache.DefaultTTL)
	}
	return proposals, nil
}

// Invalidate drops cached proposals; call it after files were changed.
func (s *Session) Invalidate() {
	s.mu.RLock()
	cache := s.cache
	s.mu.RUnlock()
	if cache != nil {
		cache.DeleteAll()
	}
}

func keyFor(file string, offset int) (cacheKey, bool) {
	info, err := os.Stat(file)
	if err != nil {
		return cacheKey{file: file, offset: offset}, false
	}
	return cacheKey{file: file, offset: offset, mtime: info.ModTime().UnixNano(), size: info.Size()}, true
}
