package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/output"
)

var (
	statusOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	statusWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	statusBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	statusDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func newStatusCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace and index health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	return cmd
}

func runStatus(cmd *cobra.Command, offline bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	eng, err := bootstrap(ctx, "", offline)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	report := eng.orch.Health(ctx)

	health := statusOK.Render("healthy")
	if !report.Healthy {
		health = statusBad.Render("degraded")
	}
	out.Status("", fmt.Sprintf("engine:    %s", health))
	out.Status("", fmt.Sprintf("workspace: %s (%s)", eng.primary.Name, eng.primary.RootPath))

	files, symbols, err := eng.orch.WorkspaceStats(ctx, eng.primary.ID)
	if err != nil {
		return fmt.Errorf("workspace stats: %w", err)
	}
	out.Status("", fmt.Sprintf("indexed:   %d files, %d symbols", files, symbols))

	embedderState := statusOK.Render("available")
	if !eng.embed.Available(ctx) {
		embedderState = statusWarn.Render("unavailable (falling back to static)")
	}
	out.Status("", fmt.Sprintf("embedder:  %s (%s, %d dims, %s)", eng.embed.ModelName(), eng.cfg.Embeddings.Provider, eng.embed.Dimensions(), embedderState))

	if eng.primary.LastIndexed != nil {
		out.Status("", fmt.Sprintf("last run:  %s", eng.primary.LastIndexed.Format("2006-01-02 15:04:05")))
	} else {
		out.Status("", statusDim.Render("last run:  never"))
	}

	for _, feature := range report.DegradedFeatures {
		out.Status("", statusWarn.Render(fmt.Sprintf("degraded:  %s", feature)))
	}
	for _, issue := range report.Issues {
		out.Status("", statusBad.Render(fmt.Sprintf("issue:     %s", issue)))
	}
	return nil
}
