package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kodewright/miller/internal/output"
	"github.com/kodewright/miller/internal/search"
	"github.com/kodewright/miller/internal/store"
)

func newSearchCmd() *cobra.Command {
	var method string
	var limit int
	var language string
	var filePattern string
	var offline bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search over an indexed workspace",
		Long: `Search combines BM25 text search, structural pattern search and
semantic vector search, fused with reciprocal-rank fusion. --method pins one
search path; the default auto-detects from the query shape and falls back
to semantic when lexical results score poorly.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], method, limit, language, filePattern, offline)
		},
	}

	cmd.Flags().StringVar(&method, "method", "auto", "search method: auto, text, pattern, semantic, hybrid")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of hits")
	cmd.Flags().StringVar(&language, "language", "", "restrict results to one language")
	cmd.Flags().StringVar(&filePattern, "file", "", "restrict results to files matching this glob")
	cmd.Flags().BoolVar(&offline, "offline", false, "use static embeddings, skip remote provider")
	return cmd
}

func runSearch(cmd *cobra.Command, query, method string, limit int, language, filePattern string, offline bool) error {
	out := output.New(cmd.OutOrStdout())
	ctx := cmd.Context()

	eng, err := bootstrap(ctx, "", offline)
	if err != nil {
		return fmt.Errorf("bootstrap engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	primaryStores, err := eng.orch.Resolve(ctx, eng.primary.ID)
	if err != nil {
		return fmt.Errorf("resolve primary workspace stores: %w", err)
	}

	pipeline := search.NewWithConfig(eng.primary.ID, primaryStores, eng.embed, nil, eng.orch, search.Config{
		SemanticFallbackThreshold: eng.cfg.Search.SemanticFallbackThreshold,
		TabularAutoThreshold:      eng.cfg.Search.TabularAutoThreshold,
		DefaultLimit:              eng.cfg.Search.DefaultLimit,
		MaxLimit:                  eng.cfg.Search.MaxLimit,
	})
	result, err := pipeline.Search(ctx, search.Options{
		Query:       query,
		Method:      store.SearchMethod(method),
		Limit:       limit,
		Language:    language,
		FilePattern: filePattern,
		Format:      "text",
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	for _, notice := range result.Notices {
		out.Warning(notice)
	}

	if result.Text != "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		return err
	}

	if len(result.Hits) == 0 {
		out.Status("", "no results")
		return nil
	}
	for _, hit := range result.Hits {
		sig := strings.TrimSpace(hit.Signature)
		if sig == "" {
			sig = hit.Name
		}
		out.Status("", fmt.Sprintf("%.3f  %s:%d  %s", hit.Score, hit.FilePath, hit.StartLine, sig))
	}
	return nil
}
