package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriongate/dicomdispatch/internal/archive"
	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/dicom"
	"github.com/oriongate/dicomdispatch/internal/dispatch"
	"github.com/oriongate/dicomdispatch/internal/filter"
	"github.com/oriongate/dicomdispatch/internal/metrics"
	"github.com/oriongate/dicomdispatch/internal/module"
	"github.com/oriongate/dicomdispatch/internal/resilience"
	"github.com/oriongate/dicomdispatch/internal/server"
	"github.com/oriongate/dicomdispatch/pkg/logger"
)

var filterCacheSize int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher and its admin server until interrupted",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&filterCacheSize, "filter-cache-size", 256, "compiled regex cache size for the filter engine")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCfg, err := config.LoadAppConfig(appConfigPath)
	if err != nil {
		return fmt.Errorf("loading app config: %w", err)
	}
	log := logger.New(appCfg.Log)

	mets := metrics.Default()

	client := archive.NewHTTPClient(archive.Config{
		BaseURL:        appCfg.Archive.BaseURL,
		Timeout:        appCfg.Archive.Timeout,
		RateLimitPerS:  appCfg.Archive.RateLimitPerS,
		RateLimitBurst: appCfg.Archive.RateLimitBurst,
		Retry:          resilience.DefaultPolicy(),
		Logger:         log,
	}).WithMetrics(mets)

	mainCfg := config.NewLoader(appCfg.MainConfigPath)
	if err := mainCfg.Refresh(); err != nil {
		log.Warn("initial main configuration load failed, starting unconfigured", "error", err)
	}

	registry := module.NewRegistry(module.NewProcessLoader(log), log).WithMetrics(mets)
	filterEngine := filter.New(filterCacheSize, log)

	disp := dispatch.New(client, registry, filterEngine, dicom.TagMapParser{}, mainCfg, log).WithMetrics(mets)
	actor := dispatch.NewActor(disp, registry, mainCfg, mainCfg.Dir(), log)

	hub := server.NewHub(log)
	actor.WithObserver(hub.Observer())

	var g errGroup
	g.Go(func() error { hub.Run(ctx); return nil })
	g.Go(func() error { actor.Run(ctx); return nil })

	if err := actor.NotifyLifecycleStarted(ctx); err != nil {
		log.Warn("lifecycle start notification failed", "error", err)
	}

	var srv *http.Server
	if appCfg.Admin.Enabled {
		admin := server.New(registry, mainCfg, hub, log)
		srv = &http.Server{Addr: appCfg.Admin.Addr, Handler: admin.Router()}
		g.Go(func() error {
			log.Info("admin server starting", "addr", appCfg.Admin.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	<-ctx.Done()
	log.Info("shutting down")
	_ = actor.NotifyLifecycleStopped(context.Background())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	return g.Wait()
}

// errGroup is a minimal golang.org/x/sync/errgroup substitute: the pack
// doesn't carry x/sync, and this command only needs "launch N goroutines
// immediately, collect the first error" without the cancellation
// propagation errgroup adds on top. Go starts fn right away, not on Wait,
// since serve's own control flow depends on the launched goroutines (the
// hub and the actor) already running before it sends them anything.
type errGroup struct {
	n    int
	errs chan error
}

func (g *errGroup) Go(fn func() error) {
	if g.errs == nil {
		g.errs = make(chan error, 8)
	}
	g.n++
	go func() { g.errs <- fn() }()
}

func (g *errGroup) Wait() error {
	var first error
	for i := 0; i < g.n; i++ {
		if err := <-g.errs; err != nil && first == nil {
			first = err
		}
	}
	return first
}
