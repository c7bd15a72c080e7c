package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/logging"
	"github.com/kodewright/miller/internal/mcp"
	"github.com/kodewright/miller/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var transport string
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server exposing fast_search, fast_lookup, fast_refs,
get_symbols, fast_explore, trace_call_path, rename_symbol and
manage_workspace.

The MCP protocol reserves stdout exclusively for JSON-RPC: all logging
goes to the state directory's log file, never to stdout or stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, offline)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "transport to serve over (stdio)")
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	return cmd
}

// runServe starts MCP-safe logging before touching stdout/stderr, then
// builds the engine and blocks serving until ctx is canceled.
func runServe(ctx context.Context, transport string, offline bool) error {
	if transport == "stdio" {
		if err := verifyStdinForMCP(); err != nil {
			return err
		}
	}

	level := "info"
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPModeWithLevel(level)
	if err != nil {
		return fmt.Errorf("setup MCP logging: %w", err)
	}
	defer cleanup()

	eng, err := bootstrap(ctx, "", offline)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	primaryStores, err := eng.orch.Resolve(ctx, eng.primary.ID)
	if err != nil {
		return fmt.Errorf("resolve primary workspace stores: %w", err)
	}

	server, err := mcp.NewServer(eng.primary.ID, primaryStores, eng.embed, eng.orch, eng.orch, eng.cfg)
	if err != nil {
		return fmt.Errorf("build MCP server: %w", err)
	}

	if eng.cfg.Metrics.Enabled {
		queryMetrics := telemetry.NewQueryMetrics(nil)
		server.SetMetrics(queryMetrics)
		stopMetrics := serveMetrics(eng.cfg.Metrics.Addr, queryMetrics)
		defer stopMetrics()
	}

	return server.Serve(ctx, transport)
}

// serveMetrics starts a /metrics Prometheus endpoint on addr in the
// background and returns a func to shut it down. Failures are logged
// (to the MCP log file, never stdout/stderr) rather than returned:
// metrics are diagnostic, not required for the server to serve requests.
func serveMetrics(addr string, queryMetrics *telemetry.QueryMetrics) func() {
	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.NewPrometheusCollector(queryMetrics))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()

	return func() { _ = httpServer.Close() }
}

// verifyStdinForMCP rejects an interactive terminal: the MCP protocol
// expects a pipe from the client process, and a developer running 'miller
// serve' directly in a shell is almost always a mistake.
func verifyStdinForMCP() error {
	if isatty.IsTerminal(0) || isatty.IsCygwinTerminal(0) {
		return errors.New("stdin is a terminal, not a pipe: miller serve expects to be launched by an MCP client")
	}
	return nil
}
