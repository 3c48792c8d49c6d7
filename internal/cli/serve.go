package cli

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"git.internal.example/releng/pkgrelease/internal/changelog"
	"git.internal.example/releng/pkgrelease/internal/config"
	"git.internal.example/releng/pkgrelease/internal/crp"
	"git.internal.example/releng/pkgrelease/internal/engine"
	"git.internal.example/releng/pkgrelease/internal/git"
	"git.internal.example/releng/pkgrelease/internal/metrics"
	"git.internal.example/releng/pkgrelease/internal/scheduler"
	"git.internal.example/releng/pkgrelease/internal/steps"
	"git.internal.example/releng/pkgrelease/internal/toolchain"

	prom "github.com/prometheus/client_golang/prometheus"
)

// ServeCmd runs the scheduler daemon: it starts the worker pool, recovers
// any task left `running` from a prior process, watches the seed file for
// hot-reloadable changes, and serves a minimal admin/metrics HTTP endpoint.
type ServeCmd struct{}

func (c *ServeCmd) Run(_ *Global, root *CLI) error {
	rc, store, err := bootstrap(root)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	cfg, err := store.GetGlobalConfig(ctx)
	if err != nil {
		return fmt.Errorf("load global config: %w", err)
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	cloneRoot := cfg.LocalCloneRoot
	if cloneRoot == "" {
		cloneRoot = rc.Database + ".clones"
	}
	repos := git.NewRepositoryService(cloneRoot, cfg.ProxyURL, "")
	changelogs := changelog.NewService()
	runner := toolchain.NewRunner()

	var pkgService crp.PackageService
	if cfg.CRPBaseURL != "" && cfg.CRPPublicKeyPEM != "" {
		client, err := crp.NewClient(cfg.CRPBaseURL, cfg.LDAPUsername, cfg.LDAPPassword, cfg.CRPPublicKeyPEM, http.DefaultClient)
		if err != nil {
			return fmt.Errorf("build package-service client: %w", err)
		}
		pkgService = client
	}

	deps := &steps.Deps{
		Repos:      repos,
		Changelogs: changelogs,
		Runner:     runner,
		Dch:        toolchain.NewChangelog(runner),
		ForgeCLI:   toolchain.NewForgeCLI(runner),
		// ReviewForge/InternalForge are wire contracts only (out of scope);
		// an operator wiring a concrete implementation injects it here.
		PackageService: pkgService,
	}

	eng := engine.New(store, steps.BuildCatalog(deps), recorder)
	sched := scheduler.New(store, eng, rc.Workers)

	sigCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sched.Start(sigCtx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	watcher, err := config.NewWatcher(root.Config, store)
	if err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	if err := watcher.Start(sigCtx); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	if h := metrics.OptionalHTTPHandler(reg); h != nil {
		mux.Handle("/metrics", h)
	}
	srv := &http.Server{Addr: rc.ListenAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Println("admin http server error:", err)
		}
	}()
	defer srv.Close()

	fmt.Printf("relengctl serving on %s (workers=%d)\n", rc.ListenAddr, rc.Workers)
	<-sigCtx.Done()
	fmt.Println("shutdown signal received, draining tasks...")
	return nil
}

