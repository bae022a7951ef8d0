// ABOUTME: Error taxonomy for the rope process client: spawn, readiness, protocol, crash, stop
// ABOUTME: Typed errors unwrap to sentinels so callers can branch with errors.Is

package rope

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrSpawn marks failures to launch the subordinate executable.
	ErrSpawn = errors.New("rope: cannot spawn process")
	// ErrNotReady means the handshake reply was not the readiness marker.
	ErrNotReady = errors.New("rope: process is not ready")
	// ErrProcessTerminated means the process exited while a request was pending.
	ErrProcessTerminated = errors.New("rope: process terminated")
	// ErrStopped is returned for requests rejected by Stop or issued to a stopped client.
	ErrStopped = errors.New("rope: client stopped")
	// ErrTransportClosed is returned by writes after the process has exited.
	ErrTransportClosed = errors.New("rope: transport closed")
	// ErrAlreadyStarted is returned by Start on a running client.
	ErrAlreadyStarted = errors.New("rope: client already started")
)

// SpawnError reports which command could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("rope: cannot spawn %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() []error { return []error{ErrSpawn, e.Err} }

// NotReadyError carries the reply received instead of the readiness marker.
type NotReadyError struct {
	Got string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("rope: process is not ready (got %s)", e.Got)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// ProtocolError is a line or payload that does not follow the wire protocol.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rope: malformed message %q: %v", truncate(e.Line, 120), e.Err)
	}
	return fmt.Sprintf("rope: malformed message %q", truncate(e.Line, 120))
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ExitError reports a process exit observed while requests were pending.
// Code is nil when the process was terminated by a signal.
type ExitError struct {
	Code *int
}

func (e *ExitError) Error() string {
	if e.Code == nil {
		return "rope: process terminated by signal"
	}
	return "rope: process terminated with exit code " + strconv.Itoa(*e.Code)
}

func (e *ExitError) Is(target error) bool { return target == ErrProcessTerminated }

// RemoteError is an error string returned by a tagged reply.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "rope server: " + e.Message }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
