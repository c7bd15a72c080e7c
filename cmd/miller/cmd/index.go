package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/output"
)

func newIndexCmd() *cobra.Command {
	var offline bool
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a workspace into the relational and vector stores",
		Long: `Walk the workspace, extract symbols and call relationships with
tree-sitter, embed them, and write the result to the relational and vector
stores. Running index again on an already-indexed workspace reconciles
incrementally; pass --force to discard the existing index and rebuild.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := ""
			if len(args) == 1 {
				root = args[0]
			}
			return runIndex(cmd, root, offline, force)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	cmd.Flags().BoolVar(&force, "force", false, "clear the existing index before reindexing")
	return cmd
}

func runIndex(cmd *cobra.Command, root string, offline, force bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	eng, err := bootstrap(ctx, root, offline)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	if force {
		out.Status("", fmt.Sprintf("clearing existing index for %s", eng.primary.RootPath))
		if err := eng.orch.CleanWorkspace(ctx, eng.primary.ID); err != nil {
			return fmt.Errorf("clear workspace: %w", err)
		}
	}

	out.Status("", fmt.Sprintf("indexing %s", eng.primary.RootPath))
	result, err := eng.orch.IndexWorkspace(ctx, eng.primary.ID)
	if err != nil {
		return fmt.Errorf("index workspace: %w", err)
	}

	out.Success(fmt.Sprintf(
		"indexed %d files (%d updated, %d skipped, %d deleted), %d symbols added in %s",
		result.FilesIndexed, result.FilesUpdated, result.FilesSkipped, result.FilesDeleted,
		result.Counts.SymbolsAdded, result.Duration,
	))
	return nil
}
