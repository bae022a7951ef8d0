// ABOUTME: Splits the configured python command with shell quoting rules
// ABOUTME: Variables expand from the given environment; nothing is run through a shell

package config

import (
	"errors"
	"fmt"
	"os"

	"mvdan.cc/sh/v3/shell"
)

// ErrEmptyCommand is returned when a command setting has no words.
var ErrEmptyCommand = errors.New("config: empty command")

// SplitCommand splits a command line such as `uv run --python 3.12 python`
// into argv. Variables are looked up in env first, then the process
// environment.
func SplitCommand(command string, env map[string]string) ([]string, error) {
	fields, err := shell.Fields(command, func(name string) string {
		if v, ok := env[name]; ok {
			return v
		}
		return os.Getenv(name)
	})
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", command, err)
	}
	if len(fields) == 0 {
		return nil, ErrEmptyCommand
	}
	return fields, nil
}
