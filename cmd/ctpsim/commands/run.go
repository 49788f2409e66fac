package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ctpnet/ctpsim/internal/config"
	"github.com/ctpnet/ctpsim/internal/ctp"
	"github.com/ctpnet/ctpsim/internal/engine"
	ctpmetrics "github.com/ctpnet/ctpsim/internal/metrics"
	"github.com/ctpnet/ctpsim/internal/topology"
	appversion "github.com/ctpnet/ctpsim/internal/version"
)

// shutdownTimeout bounds how long the metrics HTTP server is given to drain
// once the simulation run completes.
const shutdownTimeout = 5 * time.Second

// errGoalNotReached indicates the run exhausted its virtual-time budget
// before the root collected its goal ("disconnected topology").
var errGoalNotReached = errors.New("simulation did not reach its collection goal before max virtual time")

// seedFlag and runsFlag back the run subcommand's seed-sweep flags.
var (
	seedFlag uint64
	runsFlag int
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation to termination",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSimulation()
		},
	}
	cmd.Flags().Uint64Var(&seedFlag, "seed", 1, "base RNG seed")
	cmd.Flags().IntVar(&runsFlag, "runs", 1, "number of independent runs to execute concurrently, sweeping seeds from --seed")
	return cmd
}

func runSimulation() error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return err
	}

	logger := newLogger(cfg.Log)
	logger.Info("ctpsim starting",
		slog.String("version", appversion.Version),
		slog.String("coordinates", cfg.Simulation.CoordinatesPath),
		slog.String("links", cfg.Simulation.LinksPath),
		slog.Int("goal", cfg.Simulation.CollectedDataPacketsGoal),
		slog.Int("runs", runsFlag),
	)

	coords, channel, err := topology.Load(cfg.Simulation.CoordinatesPath, cfg.Simulation.LinksPath, toPhysicalConfig(cfg.Physical))
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := ctpmetrics.NewCollector(reg)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, metricsSrv, cfg.Metrics.Addr)
	})

	runDone := make(chan struct{})
	var runErr error
	var results []engine.Result

	g.Go(func() error {
		defer close(runDone)
		csma := toCSMAConfig(cfg.CSMA)
		if runsFlag <= 1 {
			e := engine.New(engine.Config{
				Coordinates: coords,
				Channel:     channel,
				RootID:      ctp.NodeID(cfg.Simulation.RootID),
				CSMA:        csma,
				Goal:        cfg.Simulation.CollectedDataPacketsGoal,
				MaxTime:     cfg.Simulation.MaxVirtualTime,
				Seed:        seedFlag,
				Metrics:     collector,
				Logger:      logger,
			})
			reached := e.Run()
			results = []engine.Result{{Seed: seedFlag, Collected: e.CollectedCount(), Goal: reached}}
			if !reached {
				runErr = errGoalNotReached
			}
			return nil
		}

		batch, err := engine.RunBatch(gCtx, coords, channel, ctp.NodeID(cfg.Simulation.RootID), csma,
			cfg.Simulation.CollectedDataPacketsGoal, cfg.Simulation.MaxVirtualTime, seedFlag, runsFlag)
		if err != nil {
			runErr = err
			return nil
		}
		results = batch
		return nil
	})

	g.Go(func() error {
		<-runDone
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run simulation: %w", err)
	}

	for _, r := range results {
		logger.Info("run complete",
			slog.Uint64("seed", r.Seed),
			slog.Int("collected", r.Collected),
			slog.Bool("goal_reached", r.Goal),
		)
	}

	return runErr
}

func toCSMAConfig(c config.CSMAConfig) ctp.CSMAConfig {
	return ctp.CSMAConfig{
		SymbolsPerSec:  c.SymbolsPerSec,
		BitsPerSymbol:  c.BitsPerSymbol,
		MinFreeSamples: c.MinFreeSamples,
		MaxFreeSamples: c.MaxFreeSamples,
		High:           c.High,
		Low:            c.Low,
		InitHigh:       c.InitHigh,
		InitLow:        c.InitLow,
		RxTxDelay:      c.RxTxDelay,
		ExponentBase:   c.ExponentBase,
		PreambleLength: c.PreambleLength,
		AckTime:        c.AckTime,
	}
}

func toPhysicalConfig(p config.PhysicalConfig) ctp.PhysicalConfig {
	return ctp.PhysicalConfig{
		ChannelFreeThresholdDBm: p.ChannelFreeThresholdDBm,
		WhiteNoiseMean:          p.WhiteNoiseMean,
		SensitivityDBm:          p.SensitivityDBm,
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func listenAndServe(ctx context.Context, srv *http.Server, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
