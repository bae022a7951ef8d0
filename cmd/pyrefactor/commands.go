// ABOUTME: Subcommands working on one position: list, apply, pick, and the one-shot refactorings
// ABOUTME: Edits are written atomically, or printed as a diff with --dry-run

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/keybindings"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/mode/pick"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
	"github.com/mauromedda/pyrefactor-go/internal/scripts"
)

// target is a file and position resolved against a project.
type target struct {
	file     string
	pos      position
	offset   int
	opts     refactor.Options
	settings *config.Settings
}

func (t target) String() string {
	return relPath(t.opts.ProjectDir, t.file) + ":" + t.pos.String()
}

// resolveTarget parses FILE POS and loads the project's options.
func (a *app) resolveTarget(ctx context.Context, fileArg, posArg string) (target, error) {
	pos, err := parsePosition(posArg)
	if err != nil {
		return target{}, err
	}
	file, err := filepath.Abs(fileArg)
	if err != nil {
		return target{}, fmt.Errorf("resolving %s: %w", fileArg, err)
	}

	var folders []string
	if a.args.project != "" {
		folders = []string{a.args.project}
	}
	root, err := projectRoot(folders, file)
	if err != nil {
		return target{}, err
	}
	opts, settings, err := loadOptions(root, overrides{python: a.args.python, protocol: a.args.protocol, verbose: a.args.verbose}, edit.Disk{})
	if err != nil {
		return target{}, err
	}

	t := target{file: file, pos: pos, offset: pos.offset, opts: opts, settings: settings}
	if pos.line > 0 {
		content, err := opts.Docs.Read(ctx, file)
		if err != nil {
			return target{}, fmt.Errorf("reading %s: %w", fileArg, err)
		}
		t.offset = pos.resolve(content)
	}
	return t, nil
}

// codeActions starts a server, asks it for the actions at the target and
// returns the session for applying one of them.
func (a *app) codeActions(ctx context.Context, name string, define func(*flag.FlagSet)) (target, *refactor.Session, []refactor.Action, error) {
	rest, err := commandFlags(name, a.args.rest, 2, a.stderr, define)
	if err != nil {
		return target{}, nil, nil, err
	}
	t, err := a.resolveTarget(ctx, rest[0], rest[1])
	if err != nil {
		return target{}, nil, nil, err
	}
	s, err := startSession(ctx, t.opts)
	if err != nil {
		return target{}, nil, nil, err
	}
	actions, err := s.CodeActions(ctx, t.file, t.offset)
	if err != nil {
		_ = s.Close()
		return target{}, nil, nil, err
	}
	return t, s, actions, nil
}

func (a *app) cmdActions(ctx context.Context) error {
	t, s, actions, err := a.codeActions(ctx, "actions", nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if a.args.json {
		return a.printJSON(actions)
	}
	if len(actions) == 0 {
		fmt.Fprintf(a.stdout, "no refactorings at %s\n", t)
		return nil
	}
	for i, item := range pick.Items(ctx, t.opts.Docs, t.opts.ProjectDir, actions) {
		fmt.Fprintf(a.stdout, "%d. %s  %s\n", i+1, item.Label, item.Detail)
	}
	return nil
}

func (a *app) cmdApply(ctx context.Context) error {
	index := 1
	t, s, actions, err := a.codeActions(ctx, "apply", func(fs *flag.FlagSet) {
		fs.IntVar(&index, "index", 1, "Which refactoring to apply, as numbered by actions")
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if index < 1 || index > len(actions) {
		return fmt.Errorf("no refactoring #%d at %s (%d available)", index, t, len(actions))
	}
	chosen := actions[index-1]
	return a.finish(ctx, s, t, chosen.Title, chosen.Edit)
}

func (a *app) cmdPick(ctx context.Context) error {
	if !pick.Interactive(a.stdin, a.stderr) {
		return errors.New("pick needs a terminal; use actions and apply instead")
	}
	t, s, actions, err := a.codeActions(ctx, "pick", nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(actions) == 0 {
		fmt.Fprintf(a.stdout, "no refactorings at %s\n", t)
		return nil
	}
	keys, err := keybindings.New(t.settings.Keybindings)
	if err != nil {
		log.Warn("config: %v", err)
	}
	for _, c := range keys.Conflicts() {
		log.Warn("config: key %q is bound to %v; using %s", c.Key, c.Actions, c.Actions[0])
	}

	items := pick.Items(ctx, t.opts.Docs, t.opts.ProjectDir, actions)
	i, err := pick.Run(ctx, "Refactorings at "+t.String(), items, keys)
	if errors.Is(err, pick.ErrCancelled) {
		fmt.Fprintln(a.stderr, "cancelled")
		return nil
	}
	if err != nil {
		return err
	}
	return a.finish(ctx, s, t, actions[i].Title, actions[i].Edit)
}

type oneShot func(s *refactor.Session, ctx context.Context, file string, offset int) (*edit.WorkspaceEdit, error)

func (a *app) cmdOneShot(ctx context.Context, name string, define func(*flag.FlagSet), run oneShot) error {
	rest, err := commandFlags(name, a.args.rest, 2, a.stderr, define)
	if err != nil {
		return err
	}
	t, err := a.resolveTarget(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}

	// Scripts run on their own; no server is started.
	s := refactor.NewSession(t.opts)
	defer s.Close()

	ws, err := run(s, ctx, t.file, t.offset)
	if errors.Is(err, refactor.ErrNoChanges) {
		fmt.Fprintf(a.stderr, "%s: nothing to change at %s\n", name, t)
		return nil
	}
	if err != nil {
		return err
	}
	return a.finish(ctx, s, t, name, ws)
}

// finish applies ws, or prints it with --dry-run.
func (a *app) finish(ctx context.Context, s *refactor.Session, t target, title string, ws *edit.WorkspaceEdit) error {
	if a.args.dryRun {
		if a.args.json {
			return a.printJSON(ws)
		}
		diff, err := edit.Preview(ctx, t.opts.Docs, ws, t.opts.ProjectDir)
		if err != nil {
			return err
		}
		if pick.IsTerminal(a.stdout) {
			diff = pick.RenderDiff(diff)
		}
		fmt.Fprintln(a.stdout, strings.TrimRight(diff, "\n"))
		return nil
	}

	if err := s.Apply(ctx, ws); err != nil {
		return err
	}
	paths := ws.Paths()
	for i, p := range paths {
		paths[i] = relPath(t.opts.ProjectDir, p)
	}
	fmt.Fprintf(a.stdout, "%s: changed %s\n", title, strings.Join(paths, ", "))
	return nil
}

func (a *app) cmdScripts() error {
	install := false
	if _, err := commandFlags("scripts", a.args.rest, 0, a.stderr, func(fs *flag.FlagSet) {
		fs.BoolVar(&install, "install", false, "Write the bundled scripts to the scripts directory")
	}); err != nil {
		return err
	}

	dir := filepath.Join(config.ScriptsDir(), scripts.Version())
	if install {
		paths, err := scripts.Install(config.ScriptsDir())
		if err != nil {
			return err
		}
		dir = paths.Dir
	}
	if a.args.json {
		return a.printJSON(struct {
			Version string   `json:"version"`
			Dir     string   `json:"dir"`
			Scripts []string `json:"scripts"`
		}{scripts.Version(), dir, scripts.Names()})
	}
	fmt.Fprintf(a.stdout, "version %s\n%s\n", scripts.Version(), dir)
	for _, name := range scripts.Names() {
		fmt.Fprintf(a.stdout, "  %s\n", name)
	}
	return nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
