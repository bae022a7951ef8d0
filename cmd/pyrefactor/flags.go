// ABOUTME: CLI flag parsing using stdlib flag package: global flags, then a subcommand and its flags
// ABOUTME: Supports --project, --python, --protocol, --verbose, --log-file, --version, --dry-run, --json

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// errUsage is returned after usage has been printed for bad arguments.
var errUsage = errors.New("invalid arguments")

type cliArgs struct {
	project  string
	python   string
	protocol string
	verbose  bool
	logFile  string
	version  bool
	dryRun   bool
	json     bool

	command string
	rest    []string
}

const usageText = `usage: pyrefactor [flags] <command> [args]

commands:
  actions FILE POS                   list the refactorings available at POS
  apply [-index N] FILE POS          apply the Nth refactoring available at POS
  pick FILE POS                      choose a refactoring interactively and apply it
  inline FILE POS                    inline the variable, method or parameter at POS
  extract-parameter [-name N] FILE POS
                                     turn the expression at POS into a parameter
  local-to-field FILE POS            turn the local variable at POS into an attribute
  serve                              answer editor requests on stdin/stdout
  scripts [-install]                 show or install the bundled rope scripts

POS is a code-point offset (42) or a 1-based LINE:COL (3:7).

flags:
`

func parseFlags(argv []string, stderr io.Writer) (cliArgs, error) {
	var args cliArgs
	fs := flag.NewFlagSet("pyrefactor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}

	fs.StringVar(&args.project, "project", "", "Project root (default: current directory)")
	fs.StringVar(&args.python, "python", "", "Python command to run rope with (overrides config)")
	fs.StringVar(&args.protocol, "protocol", "", "Server protocol: plain or tagged (overrides config)")
	fs.BoolVar(&args.verbose, "verbose", false, "Log debug output")
	fs.StringVar(&args.logFile, "log-file", "", "Write logs to this file instead of stderr")
	fs.BoolVar(&args.version, "version", false, "Show version and exit")
	fs.BoolVar(&args.dryRun, "dry-run", false, "Print the diff instead of changing files")
	fs.BoolVar(&args.json, "json", false, "Print results as JSON")

	if err := fs.Parse(argv); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return args, err
		}
		return args, errUsage
	}
	if args.version {
		return args, nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return args, errUsage
	}
	args.command = fs.Arg(0)
	args.rest = fs.Args()[1:]
	return args, nil
}

// commandFlags parses a subcommand's own flags and checks its positional
// argument count.
func commandFlags(name string, argv []string, positional int, stderr io.Writer, define func(*flag.FlagSet)) ([]string, error) {
	fs := flag.NewFlagSet("pyrefactor "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	if define != nil {
		define(fs)
	}
	if err := fs.Parse(argv); err != nil {
		return nil, errUsage
	}
	if fs.NArg() != positional {
		names := strings.TrimSpace(strings.Repeat("ARG ", positional))
		if positional == 2 {
			names = "FILE POS"
		}
		fmt.Fprintf(stderr, "usage: pyrefactor %s %s\n", name, names)
		return nil, errUsage
	}
	return fs.Args(), nil
}
