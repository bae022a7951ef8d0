// ABOUTME: serve subcommand: the RPC mode editors talk to over stdin/stdout
// ABOUTME: Settings files are watched and a change reconfigures the open session

package main

import (
	"context"
	"sync"

	"github.com/mauromedda/pyrefactor-go/internal/config"
	"github.com/mauromedda/pyrefactor-go/internal/edit"
	"github.com/mauromedda/pyrefactor-go/internal/log"
	"github.com/mauromedda/pyrefactor-go/internal/mode/rpc"
	"github.com/mauromedda/pyrefactor-go/internal/refactor"
)

// settingsWatch restarts a session when its settings files change.
type settingsWatch struct {
	mu      sync.Mutex
	watcher *config.Watcher
}

// watch replaces any previous watcher with one for projectDir.
func (w *settingsWatch) watch(projectDir string, reload func()) {
	w.stop()
	watcher := config.NewWatcher(config.WatchedFiles(projectDir), reload)
	if err := watcher.Start(); err != nil {
		log.Warn("config: not watching settings: %v", err)
		return
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()
}

func (w *settingsWatch) stop() {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}
}

func (a *app) cmdServe(ctx context.Context) error {
	if _, err := commandFlags("serve", a.args.rest, 0, a.stderr, nil); err != nil {
		return err
	}

	overlay := edit.NewOverlay(nil)
	var watch settingsWatch
	defer watch.stop()

	open := func(ctx context.Context, p rpc.InitializeParams) (*refactor.Session, error) {
		folders := p.Folders
		if len(folders) == 0 && a.args.project != "" {
			folders = []string{a.args.project}
		}
		root, err := projectRoot(folders, p.File)
		if err != nil {
			return nil, err
		}
		o := overrides{python: a.args.python, protocol: a.args.protocol, verbose: a.args.verbose}
		if p.Python != "" {
			o.python = p.Python
		}
		if p.Protocol != "" {
			o.protocol = p.Protocol
		}

		opts, _, err := loadOptions(root, o, overlay)
		if err != nil {
			return nil, err
		}
		s, err := startSession(ctx, opts)
		if err != nil {
			return nil, err
		}

		watch.watch(root, func() {
			opts, _, err := loadOptions(root, o, overlay)
			if err != nil {
				log.Warn("config: reload: %v", err)
				return
			}
			log.Info("config: settings changed, restarting rope for %s", root)
			if err := s.Reconfigure(context.Background(), opts); err != nil {
				log.Error("config: restart: %v", err)
			}
		})
		return s, nil
	}

	router := rpc.NewRouter()
	closeSession := rpc.RegisterHandlers(router, &rpc.Deps{
		Version: version,
		Overlay: overlay,
		Open:    open,
	})
	defer func() {
		if err := closeSession(); err != nil {
			log.Warn("rpc: closing session: %v", err)
		}
	}()

	log.Info("rpc: serving on stdin/stdout")
	return rpc.NewServer(a.stdin, a.stdout, router.Handle).Run(ctx)
}
