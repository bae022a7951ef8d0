// ABOUTME: Locates the Python interpreter that runs rope: setting, active venv, project venv, PATH
// ABOUTME: CheckRope probes the interpreter so a missing rope install surfaces as a clear error

package python

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/log"
)

var (
	// ErrNoInterpreter means no Python interpreter could be found.
	ErrNoInterpreter = errors.New("python: no interpreter found")
	// ErrRopeMissing means the interpreter cannot import rope.
	ErrRopeMissing = errors.New("python: rope is not installed")
)

// Source records where an interpreter was found.
type Source string

const (
	SourceSetting    Source = "setting"
	SourceVirtualEnv Source = "VIRTUAL_ENV"
	SourceProject    Source = "project venv"
	SourcePath       Source = "PATH"
)

// Interpreter is a resolved Python command line.
type Interpreter struct {
	Argv   []string
	Source Source
}

// Command is the executable to launch.
func (i Interpreter) Command() string {
	if len(i.Argv) == 0 {
		return ""
	}
	return i.Argv[0]
}

// Args are the arguments that precede the script path.
func (i Interpreter) Args() []string {
	if len(i.Argv) < 2 {
		return nil
	}
	return i.Argv[1:]
}

func (i Interpreter) String() string {
	return fmt.Sprintf("%s (from %s)", strings.Join(i.Argv, " "), i.Source)
}

// Finder resolves interpreters. The zero value uses the process environment.
type Finder struct {
	Getenv   func(string) string
	LookPath func(string) (string, error)
}

// Find resolves the interpreter in order: the explicit setting, the active
// virtual environment, a .venv or venv directory in the project, then
// python3 or python on PATH.
func (f Finder) Find(setting, projectDir string, env map[string]string) (Interpreter, error) {
	getenv := f.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	lookPath := f.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	if strings.TrimSpace(setting) != "" {
		argv, err := config.SplitCommand(setting, env)
		if err != nil {
			return Interpreter{}, err
		}
		return Interpreter{Argv: argv, Source: SourceSetting}, nil
	}

	if venv := getenv("VIRTUAL_ENV"); venv != "" {
		if exe := venvPython(venv); exe != "" {
			return Interpreter{Argv: []string{exe}, Source: SourceVirtualEnv}, nil
		}
		log.Debug("python: VIRTUAL_ENV=%s has no interpreter", venv)
	}

	if projectDir != "" {
		for _, name := range []string{".venv", "venv"} {
			if exe := venvPython(filepath.Join(projectDir, name)); exe != "" {
				return Interpreter{Argv: []string{exe}, Source: SourceProject}, nil
			}
		}
	}

	for _, name := range []string{"python3", "python"} {
		if exe, err := lookPath(name); err == nil {
			return Interpreter{Argv: []string{exe}, Source: SourcePath}, nil
		}
	}
	return Interpreter{}, ErrNoInterpreter
}

// Find resolves an interpreter using the process environment.
func Find(setting, projectDir string, env map[string]string) (Interpreter, error) {
	return Finder{}.Find(setting, projectDir, env)
}

// venvPython returns the interpreter inside a virtual environment directory.
func venvPython(dir string) string {
	candidates := []string{filepath.Join(dir, "bin", "python3"), filepath.Join(dir, "bin", "python")}
	if runtime.GOOS == "windows" {
		candidates = []string{filepath.Join(dir, "Scripts", "python.exe")}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

const ropeProbe = "import rope; print(rope.VERSION)"

// CheckRope runs the interpreter once and returns the installed rope version.
func CheckRope(ctx context.Context, interp Interpreter, env []string) (string, error) {
	args := append(append([]string{}, interp.Args()...), "-c", ropeProbe)
	cmd := exec.CommandContext(ctx, interp.Command(), args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w for %s: %s", ErrRopeMissing, interp.Command(), lastLine(stderr.String()))
		}
		return "", fmt.Errorf("running %s: %w", interp.Command(), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
