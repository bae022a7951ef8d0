// ABOUTME: CLI entry point for pyrefactor: rope-backed Python refactorings from the shell or an editor
// ABOUTME: Parses flags, sets up logging, dispatches to a subcommand

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	// termfix must be imported before any package that imports bubbletea.
	_ "github.com/mauromedda/pyrefactor-go/internal/termfix"

	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the parsed flags and the standard streams to every command.
type app struct {
	args   cliArgs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) error {
	args, err := parseFlags(argv, stderr)
	if err != nil {
		return err
	}
	if args.version {
		fmt.Fprintf(stdout, "pyrefactor %s (%s) built %s, scripts %s\n", version, commit, date, scripts.Version())
		return nil
	}

	restore, err := setupLogging(args)
	if err != nil {
		return err
	}
	defer restore()

	a := &app{args: args, stdin: stdin, stdout: stdout, stderr: stderr}
	switch args.command {
	case "actions":
		return a.cmdActions(ctx)
	case "apply":
		return a.cmdApply(ctx)
	case "pick":
		return a.cmdPick(ctx)
	case "inline":
		return a.cmdOneShot(ctx, args.command, nil, (*refactor.Session).Inline)
	case "extract-parameter":
		var name string
		define := func(fs *flag.FlagSet) {
			fs.StringVar(&name, "name", "", "Parameter name (default: parameter_name setting)")
		}
		return a.cmdOneShot(ctx, args.command, define,
			func(s *refactor.Session, ctx context.Context, file string, offset int) (*edit.WorkspaceEdit, error) {
				return s.IntroduceParameter(ctx, file, offset, name)
			})
	case "local-to-field":
		return a.cmdOneShot(ctx, args.command, nil, (*refactor.Session).LocalToField)
	case "serve":
		return a.cmdServe(ctx)
	case "scripts":
		return a.cmdScripts()
	}
	fmt.Fprintf(stderr, "unknown command %q\n", args.command)
	return errUsage
}

// setupLogging applies --verbose and --log-file and returns a function
// that undoes them.
func setupLogging(args cliArgs) (func(), error) {
	prevLevel := log.GetLevel()
	if args.verbose {
		log.SetLevel(log.LevelDebug)
	}
	if args.logFile == "" {
		return func() { log.SetLevel(prevLevel) }, nil
	}

	f, err := os.OpenFile(args.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.SetLevel(prevLevel)
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	prevOut := log.SetOutput(f)
	return func() {
		log.SetOutput(prevOut)
		log.SetLevel(prevLevel)
		_ = f.Close()
	}, nil
}
