// Command cropbatch runs a manifest of crop jobs through the load, transform
// and persist pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	"github.com/jzx17/cropflow/internal/config"
	"github.com/jzx17/cropflow/internal/logging"
	"github.com/jzx17/cropflow/pkg/metrics"
	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/worker"
)

const (
	exitOK = iota
	exitSetup
	exitPartial
)

var (
	bold = color.New(color.Bold)
	red  = color.New(color.FgRed)
)

func main() {
	configPath := flag.String("config", "cropflow.yaml", "path to the YAML configuration and job manifest")
	quiet := flag.Bool("quiet", false, "disable the progress bar")
	linger := flag.Duration("linger", 0, "keep /metrics up after the batch; negative waits for a signal, 0 uses metrics.linger")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, *configPath, *quiet, *linger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, configPath string, quiet bool, linger time.Duration) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		red.Fprintf(os.Stderr, "config: %v\n", err)
		return exitSetup
	}
	logger := logging.Init(cfg.LoggingOptions())

	jobs := cfg.AllJobs()
	if len(jobs) == 0 {
		logger.Warn("manifest has no jobs", "config", configPath)
		return exitOK
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	poolMetrics, err := metrics.NewPoolMetrics(reg, cfg.Metrics.Namespace)
	if err != nil {
		logger.Error("register pool metrics", "error", err)
		return exitSetup
	}
	pipelineMetrics, err := metrics.NewPipelineMetrics(reg, cfg.Metrics.Namespace)
	if err != nil {
		logger.Error("register pipeline metrics", "error", err)
		return exitSetup
	}
	server := serveMetrics(cfg.Metrics.Addr, reg, logger)

	poolConfig := cfg.WorkerConfig(logger)
	poolConfig.Hooks = poolMetrics.Hooks(worker.Hooks{})
	pool, err := worker.NewPool(poolConfig)
	if err != nil {
		logger.Error("create pool", "error", err)
		return exitSetup
	}
	defer pool.Terminate()

	loader, err := buildLoader(ctx, cfg)
	if err != nil {
		logger.Error("create loader", "error", err)
		return exitSetup
	}
	persister, err := buildPersister(ctx, cfg)
	if err != nil {
		logger.Error("create persister", "error", err)
		return exitSetup
	}

	pipelineConfig := cfg.PipelineConfig(logger)
	var bar *progressbar.ProgressBar
	if !quiet {
		bar = progressbar.NewOptions(len(jobs),
			progressbar.OptionSetDescription("Cropping"),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionEnableColorCodes(true),
		)
		pipelineConfig.OnJobDone = func(string, bool) {
			_ = bar.Add(1)
		}
	}

	p, err := pipeline.New(pool, loader, persister, pipelineConfig)
	if err != nil {
		logger.Error("create pipeline", "error", err)
		return exitSetup
	}

	report := p.Run(ctx, jobs)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	pipelineMetrics.Observe(report)

	printReport(os.Stdout, report, pool.Stats())

	if server != nil {
		if linger == 0 {
			linger = cfg.Metrics.Linger
		}
		if linger != 0 {
			logger.Info("batch finished, metrics still served", "addr", cfg.Metrics.Addr, "linger", linger)
		}
		waitLinger(ctx, linger)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}

	if len(report.Failures) > 0 {
		return exitPartial
	}
	return exitOK
}

// waitLinger blocks for d or until ctx is done. A negative d waits for ctx only.
func waitLinger(ctx context.Context, d time.Duration) {
	if d == 0 {
		return
	}
	if d < 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// serveMetrics exposes reg on addr; an empty addr disables the endpoint
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	return server
}
