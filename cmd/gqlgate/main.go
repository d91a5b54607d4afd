package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/classhub/gqlgate/internal/admission"
	"github.com/classhub/gqlgate/internal/cachecontrol"
	"github.com/classhub/gqlgate/internal/config"
	"github.com/classhub/gqlgate/internal/eventbus"
	"github.com/classhub/gqlgate/internal/language"
	"github.com/classhub/gqlgate/internal/metrics"
	"github.com/classhub/gqlgate/internal/otel"
	"github.com/classhub/gqlgate/internal/server"
)

const rootUsage = `gqlgate — GraphQL query-admission gateway

USAGE:
  gqlgate <command> [flags]

COMMANDS:
  serve            Run the admission proxy in front of a GraphQL executor
  check            Statically analyze a query against the admission policy
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -config <file>            YAML configuration file
  -server.addr <addr>       HTTP listen address (overrides config)
  -server.upstream <url>    Upstream GraphQL endpoint (overrides config)
  -server.pretty            Pretty-print JSON responses
  -otel.endpoint <addr>     OTLP collector endpoint (overrides config)
  -metrics.addr <addr>      Prometheus listen address (overrides config)
  -log.level <level>        debug|info|warn|error (overrides config)
`

const checkUsage = `check FLAGS:
  -config <file>        YAML configuration file
  -query <file>         Query file to analyze ("-" or empty reads stdin)
  -operation <name>     Operation to select in a multi-operation document

Prints the operation's complexity, depth and admission decision.
Exits 1 when the query would be rejected.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}
	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "check":
		return cmdCheck(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "check":
		fmt.Print(checkUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newEngine(cfg *config.Config, logger *slog.Logger) *admission.Engine {
	return admission.NewEngine(admission.EngineOptions{
		Costs:        cfg.Admission.FieldCosts,
		DefaultCost:  cfg.Admission.DefaultCost,
		MaxRecursion: cfg.Admission.ScorerCutoff,
		DepthCeiling: cfg.Admission.DepthCeiling,
		Policy: admission.Policy{
			MaxComplexity: cfg.Admission.MaxComplexity,
			MaxDepth:      cfg.Admission.MaxDepth,
		},
		Logger: logger,
	})
}

func cmdServe(args []string) error {
	configPath := ""
	addr := ""
	upstream := ""
	pretty := false
	otelEndpoint := ""
	metricsAddr := ""
	level := ""

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.StringVar(&upstream, "server.upstream", upstream, "Upstream GraphQL endpoint")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&metricsAddr, "metrics.addr", metricsAddr, "Prometheus listen address")
	fs.StringVar(&level, "log.level", level, "Log level")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if upstream != "" {
		cfg.Server.Upstream = upstream
	}
	if pretty {
		cfg.Server.Pretty = true
	}
	if otelEndpoint != "" {
		cfg.Telemetry.OTELEndpoint = otelEndpoint
	}
	if metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = metricsAddr
	}
	if level != "" {
		cfg.Telemetry.LogLevel = level
	}
	if cfg.Server.Upstream == "" {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("-server.upstream is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))

	eventbus.Use(eventbus.New())

	shutdownTracing, err := otel.Setup(cfg.Telemetry.OTELEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.MetricsAddr != "" {
		m := metrics.New()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		m.Subscribe()
		go func() {
			if err := metrics.Serve(ctx, cfg.Telemetry.MetricsAddr, reg); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server", "err", err)
			}
		}()
	}

	engine := newEngine(cfg, logger)
	cache := cachecontrol.NewSelector(cfg.Cache.PublicQueries)

	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout()),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	handler, err := server.New(engine, cache, cfg.Server.Upstream, opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.Path, handler)
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("gateway listening",
		"addr", cfg.Server.Addr,
		"path", cfg.Server.Path,
		"upstream", cfg.Server.Upstream)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func cmdCheck(args []string) error {
	configPath := ""
	queryPath := ""
	operation := ""

	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "YAML configuration file")
	fs.StringVar(&queryPath, "query", queryPath, "Query file")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, checkUsage)
		return err
	}

	var source []byte
	var err error
	if queryPath == "" || queryPath == "-" {
		source, err = io.ReadAll(os.Stdin)
	} else {
		source, err = os.ReadFile(queryPath)
	}
	if err != nil {
		return fmt.Errorf("read query: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	doc, err := language.ParseQuery(string(source))
	if err != nil {
		return fmt.Errorf("parse query: %w", err)
	}

	engine := newEngine(cfg, nil)
	report, decision := engine.Check(doc, operation)

	fmt.Printf("operation:  %s %s\n", report.OperationType, report.OperationName)
	fmt.Printf("complexity: %g (max %g)\n", report.Complexity, cfg.Admission.MaxComplexity)
	fmt.Printf("depth:      %d (max %d)\n", report.Depth, cfg.Admission.MaxDepth)
	if decision.Allowed {
		fmt.Println("decision:   allowed")
		return nil
	}
	fmt.Printf("decision:   rejected (%s)\n", decision.Rejection.Code)
	return fmt.Errorf("query would be rejected")
}
