package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/fusioncloud/internal/application"
	appanalysis "github.com/bryanwahyu/fusioncloud/internal/application/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/config"
	domain "github.com/bryanwahyu/fusioncloud/internal/domain/analysis"
	"github.com/bryanwahyu/fusioncloud/internal/infra/executor/process"
	"github.com/bryanwahyu/fusioncloud/internal/infra/httpserver"
	"github.com/bryanwahyu/fusioncloud/internal/infra/notify/webhook"
	"github.com/bryanwahyu/fusioncloud/internal/logging"
	"github.com/bryanwahyu/fusioncloud/internal/middleware"
)

func main() {
	// path config.yaml, boleh tidak ada
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log, os.Stderr)

	probe := cfg.Probe()
	if !probe.Complete {
		log.Warn().Strs("missing", probe.Missing).Msg("credentials not configured")
	}

	// init runner
	runner, err := process.NewRunner(process.Config{
		Command:           cfg.Analyzer.Command,
		Args:              cfg.Analyzer.Args,
		TempDir:           cfg.Analyzer.TempDir,
		Timeout:           cfg.Analyzer.Timeout,
		Env:               cfg.AnalyzerEnv(),
		InheritEnv:        cfg.Analyzer.InheritEnv,
		BenignDiagnostics: cfg.Analyzer.BenignDiagnostics,
		MaxConcurrent:     cfg.Analyzer.MaxConcurrent,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("analyzer init error")
	}

	// init service
	svc := &appanalysis.Service{
		Invoker:         runner,
		Selector:        domain.NewRandomSelector(time.Now().UnixNano()),
		Clock:           application.SystemClock{},
		Log:             log,
		DisableFallback: !cfg.Analyzer.Fallback,
	}
	if cfg.Credentials.SlackWebhookURL != "" {
		svc.Notifier = webhook.New(cfg.Credentials.SlackWebhookURL, nil, log)
	}

	// init router
	mux := chi.NewRouter()
	mux.Mount("/", httpserver.NewRouter(svc, cfg, log, httpserver.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		RateLimit:       cfg.Server.RateLimit.Capacity,
		RateLimitRefill: cfg.Server.RateLimit.RefillPerSecond,
		Checkers: map[string]middleware.HealthChecker{
			"analyzer": middleware.CheckerFunc(runner.Check),
		},
	}))

	// the analyzer may run for the whole timeout, notification comes after it
	writeTimeout := 30 * time.Second
	if cfg.Analyzer.Timeout > 0 {
		writeTimeout += cfg.Analyzer.Timeout
	} else {
		writeTimeout = 0
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// run server
	go func() {
		log.Info().Str("addr", addr).Str("analyzer", cfg.Analyzer.Command).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
