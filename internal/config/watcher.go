package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.internal.example/releng/pkgrelease/internal/task"
)

// Watcher hot-reloads the seed file's proxy and CRP fields into the
// GlobalConfig singleton without a restart: it watches the containing
// directory, debounces rapid writes, and reloads on a timer.
type Watcher struct {
	path         string
	store        task.Store
	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// NewWatcher builds a Watcher for the seed file at path.
func NewWatcher(path string, store task.Store) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &Watcher{
		path:         abs,
		store:        store,
		watcher:      fw,
		debounceTime: 2 * time.Second,
		stop:         make(chan struct{}),
	}, nil
}

// Start watches the seed file's directory and reloads hot-reloadable fields
// on change: proxy and CRP defaults apply live, while clone root and
// credential changes require a restart and are only logged as a warning.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", dir, err)
	}
	go w.loop(ctx)
	return nil
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
	}
	_ = w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	trigger := func() {
		select {
		case reload <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watcher error", "error", err)
		case <-reload:
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounceTime, func() {
				if err := w.applyReload(ctx); err != nil {
					slog.Error("config hot-reload failed", "error", err)
				}
			})
		}
	}
}

func (w *Watcher) applyReload(ctx context.Context) error {
	rc, err := LoadReleaseConfig(w.path)
	if err != nil {
		return fmt.Errorf("reload seed file: %w", err)
	}

	cfg, err := w.store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}

	if rc.Global.LocalCloneRoot != "" && rc.Global.LocalCloneRoot != cfg.LocalCloneRoot {
		slog.Warn("local_clone_root changed on disk; restart required to take effect",
			"old", cfg.LocalCloneRoot, "new", rc.Global.LocalCloneRoot)
	}
	if rc.Global.LDAPPassword != "" && rc.Global.LDAPPassword != cfg.LDAPPassword {
		slog.Warn("ldap_password changed on disk; restart required to take effect")
	}

	changed := false
	if rc.Global.ProxyURL != "" && rc.Global.ProxyURL != cfg.ProxyURL {
		cfg.ProxyURL = rc.Global.ProxyURL
		changed = true
	}
	if rc.Global.CRPBaseURL != "" && rc.Global.CRPBaseURL != cfg.CRPBaseURL {
		cfg.CRPBaseURL = rc.Global.CRPBaseURL
		changed = true
	}
	if rc.Global.CRPPublicKeyPEM != "" && rc.Global.CRPPublicKeyPEM != cfg.CRPPublicKeyPEM {
		cfg.CRPPublicKeyPEM = rc.Global.CRPPublicKeyPEM
		changed = true
	}
	if !changed {
		return nil
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := w.store.SaveGlobalConfig(ctx, cfg); err != nil {
		return fmt.Errorf("save reloaded global config: %w", err)
	}
	slog.Info("config hot-reload applied", "proxy_url", cfg.ProxyURL, "crp_base_url", cfg.CRPBaseURL)
	return nil
}
