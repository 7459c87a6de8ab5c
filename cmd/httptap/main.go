package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/obtrace/httptap/internal/config"
	"github.com/obtrace/httptap/internal/intercept"
	"github.com/obtrace/httptap/internal/observability"
	"github.com/obtrace/httptap/internal/policy"
	"github.com/obtrace/httptap/internal/tracing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		portFlag        = flag.Int("port", 0, "Override listen port (e.g., 8081)")
		configFlag      = flag.String("config", "", "Path to config file")
		metricsPortFlag = flag.Int("metrics-port", 0, "Override metrics port")
		logLevelFlag    = flag.String("log-level", "", "Log level (debug, info, warn, error). Can also be set via HTTPTAP_LOG_LEVEL env var.")
	)
	flag.Parse()

	level := observability.GetLogLevel(*logLevelFlag)
	logger := observability.NewLogger("httptap", level)
	slog.SetDefault(logger)

	configPath := *configFlag
	if configPath == "" {
		configPath = os.Getenv("HTTPTAP_CONFIG")
	}
	if configPath == "" {
		configPath = "/etc/httptap/config.yaml"
	}

	loader := config.NewLoader(configPath, logger)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if *portFlag > 0 {
		cfg.ListenAddr = fmt.Sprintf(":%d", *portFlag)
	}
	if *metricsPortFlag > 0 {
		cfg.MetricsAddr = fmt.Sprintf(":%d", *metricsPortFlag)
	}
	if cfg.LogLevel != "" && *logLevelFlag == "" {
		slog.SetDefault(observability.NewLogger("httptap", observability.ParseLogLevel(cfg.LogLevel)))
	}

	logger.Info("loaded config",
		"listenAddr", cfg.ListenAddr, "upstream", cfg.Upstream, "rules", len(cfg.Policy.Rules))

	// Tracing: environment values first, file config on top.
	traceCfg := tracing.GetConfig(cfg.Tracing.ServiceName)
	traceCfg.Enabled = traceCfg.Enabled || cfg.Tracing.Enabled
	if cfg.Tracing.Endpoint != "" {
		traceCfg.Endpoint = cfg.Tracing.Endpoint
	}
	_, traceShutdown, err := tracing.Initialize(traceCfg, logger)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := traceShutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown error", "error", err)
		}
	}()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(reg)

	// Policy + controller
	evaluator, err := buildEvaluator(cfg, logger)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}
	controller := intercept.NewController(interceptConfig(cfg), evaluator, logger, metrics)

	loader.OnChange(func(next *config.Config) {
		eval, err := buildEvaluator(next, logger)
		if err != nil {
			logger.Error("rejected reloaded policy", "error", err)
			return
		}
		controller.SetConfig(interceptConfig(next))
		controller.SetEvaluator(eval)
		logger.Info("applied reloaded config", "rules", len(next.Policy.Rules))
	})

	// Upstream reverse proxy wrapped by the capture middleware.
	if cfg.Upstream == "" {
		return fmt.Errorf("upstream is required")
	}
	upstreamURL, err := url.Parse(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid upstream %q: %w", cfg.Upstream, err)
	}
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstreamURL)
			pr.SetXForwarded()
		},
	}
	handler := otelhttp.NewHandler(controller.Middleware(proxy), "httptap")

	// Health + metrics server
	health := observability.NewHealthServer()
	if err := health.Listen(cfg.MetricsAddr, reg); err != nil {
		return fmt.Errorf("bind metrics addr: %w", err)
	}

	tapServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := loader.Watch(ctx.Done()); err != nil {
			logger.Error("config watch stopped", "error", err)
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		logger.Info("metrics server starting", "addr", health.Addr())
		if err := health.Serve(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		logger.Info("tap server starting", "addr", cfg.ListenAddr)
		if err := tapServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("tap server: %w", err)
		}
	}()

	health.SetReady(true)
	logger.Info("httptap started")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tapServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("tap server shutdown error", "error", err)
	}
	if err := health.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func interceptConfig(cfg *config.Config) intercept.Config {
	return intercept.Config{
		Enabled:                cfg.Enabled,
		CaptureRequestHeaders:  cfg.Capture.RequestHeaders,
		CaptureResponseHeaders: cfg.Capture.ResponseHeaders,
		CaptureRequestBody:     cfg.Capture.RequestBody,
		CaptureResponseBody:    cfg.Capture.ResponseBody,
		MaxBodyBytes:           cfg.Capture.MaxBodyBytes,
		SessionCookie:          cfg.Capture.SessionCookie,
	}
}

func buildEvaluator(cfg *config.Config, logger *slog.Logger) (policy.Evaluator, error) {
	var evaluators []policy.Evaluator

	if len(cfg.Policy.Rules) > 0 {
		rules := make([]policy.Rule, 0, len(cfg.Policy.Rules))
		for _, r := range cfg.Policy.Rules {
			rules = append(rules, policy.Rule{
				Name:       r.Name,
				Expression: r.CEL,
				StatusCode: r.StatusCode,
			})
		}
		cel, err := policy.NewCELEvaluator(rules, logger)
		if err != nil {
			return nil, err
		}
		evaluators = append(evaluators, cel)
	}

	if rl := cfg.Policy.RateLimit; rl.RequestsPerSecond > 0 {
		evaluators = append(evaluators,
			policy.NewRateLimitEvaluator(rl.RequestsPerSecond, rl.Burst, rl.HeaderKey))
	}

	if len(evaluators) == 0 {
		return policy.Noop{}, nil
	}
	return policy.NewChain(evaluators...), nil
}
