// ABOUTME: Resolves what a command runs against: project root, merged settings, interpreter, scripts
// ABOUTME: Starting the server failed? The interpreter is probed for rope to report why

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/python"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

// overrides are settings given on the command line or by an editor.
type overrides struct {
	python   string
	protocol string
	verbose  bool
}

// projectRoot picks the project for file among folders; no folders means
// the current directory.
func projectRoot(folders []string, file string) (string, error) {
	if len(folders) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		folders = []string{cwd}
	}
	abs := make([]string, len(folders))
	for i, f := range folders {
		a, err := filepath.Abs(f)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", f, err)
		}
		abs[i] = a
	}
	return python.ProjectDir(abs, file)
}

// loadOptions builds session options for projectDir from its settings and
// returns the merged settings too.
func loadOptions(projectDir string, o overrides, docs edit.Documents) (refactor.Options, *config.Settings, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return refactor.Options{}, nil, fmt.Errorf("loading config: %w", err)
	}
	if o.python != "" {
		cfg.Python = o.python
	}
	if o.protocol != "" {
		cfg.Protocol = o.protocol
	}
	if !o.verbose && cfg.LogLevel != "" {
		if lvl, ok := log.ParseLevel(cfg.LogLevel); ok {
			log.SetLevel(lvl)
		} else {
			log.Warn("config: unknown log_level %q", cfg.LogLevel)
		}
	}

	interp, err := python.Find(cfg.Python, projectDir, cfg.Env)
	if err != nil {
		return refactor.Options{}, nil, fmt.Errorf("resolving python: %w", err)
	}
	log.Debug("python: using %s", interp)

	paths, err := scripts.Install(config.ScriptsDir())
	if err != nil {
		return refactor.Options{}, nil, fmt.Errorf("installing scripts: %w", err)
	}

	opts, err := refactor.OptionsFromConfig(cfg, projectDir, interp, paths)
	if err != nil {
		return refactor.Options{}, nil, err
	}
	opts.Docs = docs
	return opts, cfg, nil
}

// startSession starts a session and explains a failed start when the
// interpreter turns out not to have rope.
func startSession(ctx context.Context, opts refactor.Options) (*refactor.Session, error) {
	s := refactor.NewSession(opts)
	err := s.Start(ctx)
	if err == nil {
		return s, nil
	}
	if _, probeErr := python.CheckRope(ctx, opts.Interpreter, opts.Env); errors.Is(probeErr, python.ErrRopeMissing) {
		return nil, probeErr
	}
	return nil, fmt.Errorf("starting rope server: %w", err)
}
