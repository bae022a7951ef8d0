// ABOUTME: Request/response client over a long-lived rope server process
// ABOUTME: Readiness handshake, FIFO or id-tagged correlation, crash and stop propagation

package rope

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/mauromedda/pyrefactor-go/internal/eventbus"
	"github.com/mauromedda/pyrefactor-go/internal/log"
)

const defaultStopWait = 5 * time.Second

// ClientConfig describes how to launch and talk to a rope server.
//
// The process is launched as:
//
//	<Command> <Args...> <ServerScript> <ProjectDir> <json settings>
type ClientConfig struct {
	Command      string
	Args         []string
	ServerScript string
	ProjectDir   string
	Settings     Settings
	Protocol     Protocol
	Dir          string
	Env          []string

	// HandshakeTimeout bounds Start's wait for the readiness reply.
	// Zero means wait as long as the context allows.
	HandshakeTimeout time.Duration
	// StopWait bounds how long Stop waits for the killed process to exit.
	StopWait time.Duration
}

// processSpec builds the launch command for this configuration.
func (cfg ClientConfig) processSpec() (ProcessSpec, error) {
	launch, err := json.Marshal(launchConfig{Settings: cfg.Settings, Protocol: cfg.taggedProtocol()})
	if err != nil {
		return ProcessSpec{}, fmt.Errorf("encoding settings: %w", err)
	}
	args := make([]string, 0, len(cfg.Args)+3)
	args = append(args, cfg.Args...)
	if cfg.ServerScript != "" {
		args = append(args, cfg.ServerScript)
	}
	args = append(args, cfg.ProjectDir, string(launch))
	return ProcessSpec{Path: cfg.Command, Args: args, Dir: cfg.Dir, Env: cfg.Env}, nil
}

// taggedProtocol returns the protocol to advertise at launch; the plain
// protocol is not advertised so stock servers see the original argument.
func (cfg ClientConfig) taggedProtocol() Protocol {
	if cfg.Protocol == ProtocolTagged {
		return ProtocolTagged
	}
	return ""
}

type reply struct {
	result json.RawMessage
	err    error
}

type pendingRequest struct {
	id int64
	// ch is buffered so whoever settles the request never blocks,
	// even when the caller has already given up.
	ch chan reply
}

// Client turns a rope server process into a call/response API.
// A Client may be restarted; it owns at most one process at a time.
type Client struct {
	cfg    ClientConfig
	events *eventbus.Bus[Event]
	// queue admits one plain-protocol request onto the wire at a time.
	queue  *semaphore.Weighted
	nextID atomic.Int64

	mu        sync.Mutex
	transport *ProcessTransport
	gen       uint64
	fifo      []*pendingRequest
	tagged    map[int64]*pendingRequest
}

// NewClient creates a stopped client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Protocol == "" {
		cfg.Protocol = ProtocolPlain
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = defaultStopWait
	}
	return &Client{
		cfg:    cfg,
		events: eventbus.New[Event](),
		queue:  semaphore.NewWeighted(1),
		tagged: make(map[int64]*pendingRequest),
	}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Subscribe observes events from every process this client owns, across restarts.
func (c *Client) Subscribe(h func(Event)) func() {
	return c.events.Subscribe(h)
}

// Running reports whether a process is attached.
func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// PID returns the current process id, or 0 when stopped.
func (c *Client) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return 0
	}
	return c.transport.PID()
}

// Start launches the server and performs the readiness handshake: an empty
// object is written and the first reply must be {"message": "ready"}.
// On any failure the process is stopped and the client stays stopped.
func (c *Client) Start(ctx context.Context) error {
	spec, err := c.cfg.processSpec()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.transport != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	t := NewProcessTransport(spec)
	c.gen++
	gen := c.gen
	c.transport = t
	c.mu.Unlock()
	// Events of a replaced process keep reaching observers until it exits;
	// the generation check keeps them away from the pending table.
	t.Subscribe(func(ev Event) { c.handleEvent(gen, ev) })

	if err := t.Start(); err != nil {
		c.detach(gen)
		return err
	}

	hctx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	raw, err := c.call(hctx, handshake{}, false)
	if err != nil {
		_ = c.Stop()
		return fmt.Errorf("rope handshake: %w", err)
	}
	var ready readyMessage
	if err := json.Unmarshal(raw, &ready); err != nil || ready.Message != readyMarker {
		_ = c.Stop()
		return &NotReadyError{Got: string(raw)}
	}

	log.Info("rope: server ready (pid %d, %s protocol)", t.PID(), c.cfg.Protocol)
	return nil
}

// Request sends payload and waits for its reply.
//
// With the plain protocol, concurrent callers queue: a request is written
// only after the previous one settled, and the next line received is its
// reply. With the tagged protocol requests carry ids and run concurrently.
func (c *Client) Request(ctx context.Context, payload any) (json.RawMessage, error) {
	return c.call(ctx, payload, c.cfg.Protocol == ProtocolTagged)
}

// GetRefactors asks for the refactorings available at a code-point offset.
// An empty or falsy reply yields an empty slice, not an error.
func (c *Client) GetRefactors(ctx context.Context, fileName string, offset int) ([]Proposal, error) {
	raw, err := c.Request(ctx, []any{fileName, offset})
	if err != nil {
		return nil, err
	}
	if isFalsy(raw) {
		return []Proposal{}, nil
	}
	var proposals []Proposal
	if err := json.Unmarshal(raw, &proposals); err != nil {
		return nil, &ProtocolError{Line: string(raw), Err: err}
	}
	if proposals == nil {
		proposals = []Proposal{}
	}
	return proposals, nil
}

// Stop kills the process and rejects every pending request with ErrStopped.
// Stopping a stopped client is a no-op.
func (c *Client) Stop() error {
	c.mu.Lock()
	t := c.transport
	pending := c.detachLocked()
	c.mu.Unlock()

	for _, p := range pending {
		p.ch <- reply{err: ErrStopped}
	}
	if t == nil {
		return nil
	}

	err := t.Kill()
	select {
	case <-t.Done():
	case <-time.After(c.cfg.StopWait):
		log.Warn("rope: pid %d did not exit within %s", t.PID(), c.cfg.StopWait)
	}
	return err
}

// Restart stops the current process and starts a fresh one.
func (c *Client) Restart(ctx context.Context) error {
	if err := c.Stop(); err != nil {
		log.Warn("rope: stopping for restart: %v", err)
	}
	return c.Start(ctx)
}

func (c *Client) call(ctx context.Context, payload any, tagged bool) (json.RawMessage, error) {
	if !tagged {
		if err := c.queue.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.queue.Release(1)
	}

	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	p := &pendingRequest{id: c.nextID.Add(1), ch: make(chan reply, 1)}
	var msg any = payload
	if tagged {
		c.tagged[p.id] = p
		msg = requestEnvelope{ID: p.id, Params: payload}
	} else {
		c.fifo = append(c.fifo, p)
	}
	c.mu.Unlock()

	if err := t.Write(msg); err != nil {
		if c.remove(p) {
			return nil, err
		}
		// Already settled by an exit or stop racing with the write.
		r := <-p.ch
		return r.result, r.err
	}

	select {
	case r := <-p.ch:
		return r.result, r.err
	case <-ctx.Done():
		if tagged {
			c.remove(p)
		}
		// A plain request stays queued so its late reply is consumed by it
		// and not mistaken for the next request's reply. Its queue slot is
		// released now, so the next request may be written behind it.
		return nil, ctx.Err()
	}
}

// remove unregisters p; it reports false when p was already settled.
func (c *Client) remove(p *pendingRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tagged[p.id]; ok {
		delete(c.tagged, p.id)
		return true
	}
	for i, q := range c.fifo {
		if q == p {
			c.fifo = append(c.fifo[:i], c.fifo[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Client) handleEvent(gen uint64, ev Event) {
	c.events.Publish(ev)

	switch ev.Kind {
	case EventMessage:
		c.handleMessage(gen, ev.Message)
	case EventError:
		c.handleError(gen, ev.Err)
	case EventLog:
		// Diagnostics only; already logged by the transport.
	case EventExit:
		c.handleExit(gen, ev.Code)
	}
}

func (c *Client) handleMessage(gen uint64, raw json.RawMessage) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	var p *pendingRequest
	var r reply
	if c.cfg.Protocol == ProtocolTagged {
		if env, ok := decodeEnvelope(raw); ok {
			p = c.tagged[env.ID]
			delete(c.tagged, env.ID)
			r = reply{result: env.Result}
			if env.Error != "" {
				r = reply{err: &RemoteError{Message: env.Error}}
			}
			if p == nil {
				c.mu.Unlock()
				log.Warn("rope: reply for unknown request id %d", env.ID)
				return
			}
		}
	}
	if p == nil && len(c.fifo) > 0 {
		p = c.fifo[0]
		c.fifo = c.fifo[1:]
		r = reply{result: raw}
	}
	c.mu.Unlock()

	if p == nil {
		log.Warn("rope: unsolicited message: %s", truncate(string(raw), 200))
		return
	}
	p.ch <- r
}

// handleError settles the head of the FIFO with a protocol error. Tagged
// requests cannot be matched to a malformed line, so the line is only logged.
func (c *Client) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || len(c.fifo) == 0 {
		c.mu.Unlock()
		log.Warn("rope: %v", err)
		return
	}
	p := c.fifo[0]
	c.fifo = c.fifo[1:]
	c.mu.Unlock()
	p.ch <- reply{err: err}
}

func (c *Client) handleExit(gen uint64, code *int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	pending := c.detachLocked()
	c.mu.Unlock()

	if len(pending) > 0 || code == nil || *code != 0 {
		log.Warn("rope: server exited unexpectedly: %v", &ExitError{Code: code})
	}
	for _, p := range pending {
		p.ch <- reply{err: &ExitError{Code: code}}
	}
}

// detach forgets the transport of generation gen after a failed spawn.
func (c *Client) detach(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.detachLocked()
	}
}

// detachLocked drops the transport, bumps the generation so late events
// are ignored, and returns the requests that must still be settled.
func (c *Client) detachLocked() []*pendingRequest {
	c.transport = nil
	c.gen++

	pending := make([]*pendingRequest, 0, len(c.fifo)+len(c.tagged))
	pending = append(pending, c.fifo...)
	for _, p := range c.tagged {
		pending = append(pending, p)
	}
	c.fifo = nil
	c.tagged = make(map[int64]*pendingRequest)
	return pending
}
