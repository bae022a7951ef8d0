// ABOUTME: One-shot script runner: spawn a rope script, collect stdout, parse changed files
// ABOUTME: Every failure collapses to "no edits" plus a warning; callers never see an error

package rope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mauromedda/pyrefactor-go/internal/log"
)

// ScriptInvoker runs short-lived refactoring scripts that print a JSON array
// of {path, new_contents} and exit 0.
type ScriptInvoker struct {
	Dir     string
	Env     []string
	Timeout time.Duration // zero means no limit beyond the caller's context
}

// RunScript runs the script asynchronously. The returned channel yields
// exactly one value and is then closed; nil means no edits.
func (s *ScriptInvoker) RunScript(ctx context.Context, command string, args []string) <-chan []ChangedFile {
	out := make(chan []ChangedFile, 1)
	go func() {
		defer close(out)
		out <- s.run(ctx, command, args)
	}()
	return out
}

// RunScriptSync runs the script and blocks until it exits.
func (s *ScriptInvoker) RunScriptSync(command string, args []string) []ChangedFile {
	return s.run(context.Background(), command, args)
}

func (s *ScriptInvoker) run(ctx context.Context, command string, args []string) []ChangedFile {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = s.Dir
	if len(s.Env) > 0 {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			log.Warn("script %s exited with status %d: %s", scriptName(args), exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		case ctx.Err() != nil:
			log.Warn("script %s: %v", scriptName(args), ctx.Err())
		default:
			log.Warn("script %s: %v", scriptName(args), &SpawnError{Command: command, Err: err})
		}
		log.Debug("script %s stdout: %s", scriptName(args), stdout.String())
		return nil
	}
	if stderr.Len() > 0 {
		log.Debug("script %s stderr: %s", scriptName(args), strings.TrimSpace(stderr.String()))
	}

	files, err := ParseChangedFiles(stdout.Bytes())
	if err != nil {
		log.Warn("script %s: %v", scriptName(args), err)
		return nil
	}
	return files
}

// ParseChangedFiles decodes script output. Empty or falsy output is no edits.
func ParseChangedFiles(data []byte) ([]ChangedFile, error) {
	if isFalsy(data) {
		return nil, nil
	}
	var files []ChangedFile
	if err := json.Unmarshal(bytes.TrimSpace(data), &files); err != nil {
		return nil, &ProtocolError{Line: string(data), Err: err}
	}
	return files, nil
}

// scriptName picks the script path out of the arguments to label log lines.
func scriptName(args []string) string {
	for _, a := range args {
		if strings.HasSuffix(a, ".py") {
			return a
		}
	}
	if len(args) == 0 {
		return "<none>"
	}
	return args[0]
}
