package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/younwookim/sceneflow/internal/application/game"
	"github.com/younwookim/sceneflow/internal/application/loader"
	"github.com/younwookim/sceneflow/internal/application/loading"
	"github.com/younwookim/sceneflow/internal/application/manager"
	"github.com/younwookim/sceneflow/internal/domain/scene"
	"github.com/younwookim/sceneflow/internal/infrastructure/config"
	"github.com/younwookim/sceneflow/internal/infrastructure/engine/simengine"
	"github.com/younwookim/sceneflow/internal/log"
)

type runOptions struct {
	metricsAddr string
	watch       bool
}

func newRunCmd(configDir *string) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Open the demo window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *configDir, opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (overrides config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload scene timings when the config file changes (needs --config-dir)")
	return cmd
}

func run(parent context.Context, configDir string, opts *runOptions) error {
	if opts.watch && configDir == "" {
		return errors.New("--watch needs --config-dir")
	}
	loaderCfg, err := newConfigLoader(configDir)
	if err != nil {
		return err
	}
	cfg, err := loaderCfg.LoadSceneflow()
	if err != nil {
		return err
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, Service: "sceneflow"})
	logger := log.WithComponent("main")

	current := &atomic.Pointer[config.SceneflowConfig]{}
	current.Store(cfg)

	eng := simengine.New(cfg.Catalog())
	mgr, err := manager.New(eng,
		manager.WithLogger(log.WithComponent("manager")),
		manager.WithPollInterval(cfg.Engine.PollInterval))
	if err != nil {
		return err
	}
	drivers := loading.NewRegistry()
	unbind := drivers.Bind(mgr, faderFactory(current))
	defer unbind()

	ld, err := loader.New(mgr, eng, drivers, loader.WithLogger(log.WithComponent("loader")))
	if err != nil {
		return err
	}
	defer ld.Close()

	g := game.New(eng, drivers, cfg.Display.Width, cfg.Display.Height)
	g.Push(newDemo(ld, current))

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	metricsAddr := cfg.Metrics.Addr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		group.Go(func() error { return serveMetrics(ctx, metricsAddr) })
		logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint enabled")
	}
	if opts.watch {
		group.Go(func() error { return watchConfig(ctx, configDir, eng, current) })
	}

	ebiten.SetWindowSize(cfg.Display.Width*cfg.Display.Scale, cfg.Display.Height*cfg.Display.Scale)
	ebiten.SetWindowTitle(cfg.Display.Title)

	// RunGame must stay on the main goroutine.
	runErr := ebiten.RunGame(g)
	cancel()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("background task failed")
	}
	if runErr != nil && !errors.Is(runErr, ebiten.Termination) {
		return runErr
	}
	return nil
}

// faderFactory creates a Fader for every scene configured as a loading
// screen.
func faderFactory(current *atomic.Pointer[config.SceneflowConfig]) loading.Factory {
	return func(s scene.Scene) (loading.Driver, bool) {
		sc, ok := current.Load().Scene(s.Name)
		if !ok || sc.LoadingScreen == nil {
			return nil, false
		}
		return loading.NewFader(sc.LoadingScreen.FadeTime, sc.LoadingScreen.MinDisplay), true
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// watchConfig applies changed scene timings to the running engine.
// Operations already in flight keep their timings.
func watchConfig(ctx context.Context, dir string, eng *simengine.Engine, current *atomic.Pointer[config.SceneflowConfig]) error {
	logger := log.WithComponent("config")
	w, err := config.NewWatcher(dir, 0)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Close()

	for {
		select {
		case cfg, ok := <-w.Configs:
			if !ok {
				return nil
			}
			eng.SetCatalog(cfg.Catalog())
			current.Store(cfg)
			logger.Info().Int("scenes", len(cfg.Scenes)).Msg("config reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config reload failed; keeping previous config")
		case <-ctx.Done():
			return nil
		}
	}
}
