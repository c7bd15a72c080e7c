package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/config"
	"github.com/kodewright/miller/internal/embed"
	"github.com/kodewright/miller/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var jsonOutput bool
	var verbose bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and embedder health",
		Long: `Run diagnostics covering disk space, memory, write permissions, file
descriptor limits and the configured embedding provider's reachability.

The embedder check is a warning, not a failure: an unreachable remote
provider just means semantic search degrades to zero vectors until it
comes back.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if offline {
		cfg.Embeddings.OfflineOnly = true
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	embedderResult := preflight.EmbedderResult{Provider: cfg.Embeddings.Provider, ModelName: cfg.Embeddings.Model}
	emb, err := embed.NewAdapter(ctx, cfg.Embeddings)
	if err != nil {
		embedderResult.ModelName = fmt.Sprintf("build failed: %v", err)
	} else {
		embedderResult.Available = emb.Available(ctx)
		embedderResult.ModelName = emb.ModelName()
		_ = emb.Close()
	}
	results = append(results, checker.CheckEmbedder(embedderResult))

	if jsonOutput {
		return outputDoctorJSON(cmd, checker, results)
	}

	checker.PrintResults(results)

	dataDir := filepath.Join(root, cfg.Workspace.StateDir)
	if !preflight.NeedsCheck(dataDir) {
		if age := preflight.MarkerAge(dataDir); age > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "\nlast successful check: %s ago\n", age.Round(time.Second))
		}
	} else if err := preflight.MarkPassed(dataDir); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\nwarning: could not record check marker: %v\n", err)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

type doctorJSONCheck struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

type doctorJSON struct {
	Status string            `json:"status"`
	Checks []doctorJSONCheck `json:"checks"`
}

func outputDoctorJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult) error {
	out := doctorJSON{Status: checker.SummaryStatus(results), Checks: make([]doctorJSONCheck, len(results))}
	for i, r := range results {
		out.Checks[i] = doctorJSONCheck{
			Name:     r.Name,
			Status:   r.Status.String(),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
