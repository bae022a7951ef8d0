// ABOUTME: Process transport: spawns the rope server, reads line-delimited JSON from stdout
// ABOUTME: Publishes message/error/log/exit events; stderr is diagnostics only

package rope

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/mauromedda/pyrefactor-go/internal/eventbus"
	"github.com/mauromedda/pyrefactor-go/internal/log"
)

const maxScannerBuffer = 10 * 1024 * 1024 // 10MB

// EventKind discriminates transport events.
type EventKind int

const (
	// EventMessage carries one decoded stdout line.
	EventMessage EventKind = iota
	// EventError carries a stdout line that is not JSON, or a read failure.
	EventError
	// EventLog carries one stderr line.
	EventLog
	// EventExit is the last event of a process.
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventLog:
		return "log"
	case EventExit:
		return "exit"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is something observed on a subordinate process.
type Event struct {
	Kind    EventKind
	PID     int
	Message json.RawMessage // EventMessage
	Err     error           // EventError
	Line    string          // EventLog
	Code    *int            // EventExit; nil when killed by a signal
}

// ProcessSpec describes how to launch a process.
type ProcessSpec struct {
	Path string
	Args []string
	Dir  string
	Env  []string // appended to the current environment
}

// ProcessTransport owns one child process and its three standard streams.
type ProcessTransport struct {
	spec ProcessSpec
	bus  *eventbus.Bus[Event]

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pid     int
	started bool
	code    *int

	writeMu sync.Mutex
	done    chan struct{}
}

// NewProcessTransport prepares a transport; nothing runs until Start.
// Subscribe before Start to observe every event.
func NewProcessTransport(spec ProcessSpec) *ProcessTransport {
	return &ProcessTransport{
		spec: spec,
		bus:  eventbus.New[Event](),
		done: make(chan struct{}),
	}
}

// Subscribe registers an event handler and returns an unsubscribe function.
// Handlers run on the transport's reader goroutines and must not block.
func (t *ProcessTransport) Subscribe(h func(Event)) func() {
	return t.bus.Subscribe(h)
}

// Start spawns the process with all three streams piped.
func (t *ProcessTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return ErrAlreadyStarted
	}

	// Not CommandContext: the server outlives the caller's context and is
	// terminated explicitly through Kill.
	cmd := exec.Command(t.spec.Path, t.spec.Args...)
	cmd.Dir = t.spec.Dir
	if len(t.spec.Env) > 0 {
		cmd.Env = append(os.Environ(), t.spec.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Command: t.spec.Path, Err: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.pid = cmd.Process.Pid
	t.started = true
	log.Debug("rope: started %s (pid %d)", t.spec.Path, t.pid)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		t.readStdout(stdout)
	}()
	go func() {
		defer readers.Done()
		t.readStderr(stderr)
	}()
	go t.wait(&readers)

	return nil
}

// PID returns the process id, or 0 before Start.
func (t *ProcessTransport) PID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pid
}

// Done is closed after the exit event has been published.
func (t *ProcessTransport) Done() <-chan struct{} {
	return t.done
}

// ExitCode returns the exit code once the process has exited.
// The pointer is nil when the process died from a signal.
func (t *ProcessTransport) ExitCode() (code *int, exited bool) {
	select {
	case <-t.done:
	default:
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.code, true
}

// Write sends v as one JSON line on the process's stdin.
func (t *ProcessTransport) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}
	data = append(data, '\n')

	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return ErrTransportClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Kill terminates the process. Killing an exited or never-started process
// is a no-op.
func (t *ProcessTransport) Kill() error {
	t.mu.Lock()
	cmd, stdin := t.cmd, t.stdin
	t.mu.Unlock()
	if cmd == nil {
		return nil
	}
	select {
	case <-t.done:
		return nil
	default:
	}

	_ = stdin.Close()
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing pid %d: %w", cmd.Process.Pid, err)
	}
	return nil
}

func (t *ProcessTransport) readStdout(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			text := string(line)
			log.Debug("rope: non-JSON stdout line: %s", text)
			t.publish(Event{Kind: EventError, Err: &ProtocolError{Line: text}})
			continue
		}
		msg := make(json.RawMessage, len(line))
		copy(msg, line)
		t.publish(Event{Kind: EventMessage, Message: msg})
	}
	if err := scanner.Err(); err != nil {
		t.publish(Event{Kind: EventError, Err: fmt.Errorf("reading stdout: %w", err)})
		// Keep the pipe drained so the process can still exit.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (t *ProcessTransport) readStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScannerBuffer)
	for scanner.Scan() {
		line := scanner.Text()
		log.Debug("rope stderr: %s", line)
		t.publish(Event{Kind: EventLog, Line: line})
	}
	_, _ = io.Copy(io.Discard, r)
}

// wait reaps the process once both readers have hit EOF.
func (t *ProcessTransport) wait(readers *sync.WaitGroup) {
	readers.Wait()
	err := t.cmd.Wait()

	var code *int
	if state := t.cmd.ProcessState; state != nil {
		if c := state.ExitCode(); c >= 0 {
			code = &c
		}
	} else if err != nil {
		log.Warn("rope: wait pid %d: %v", t.pid, err)
	}

	t.mu.Lock()
	t.code = code
	t.mu.Unlock()

	if code != nil {
		log.Debug("rope: pid %d exited with code %d", t.pid, *code)
	} else {
		log.Debug("rope: pid %d killed by signal", t.pid)
	}
	// Exit is published before done closes so waiters on Done have seen it.
	t.publish(Event{Kind: EventExit, Code: code})
	close(t.done)
	t.bus.Close()
}

func (t *ProcessTransport) publish(ev Event) {
	ev.PID = t.pid
	t.bus.Publish(ev)
}
