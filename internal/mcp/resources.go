package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kodewright/miller/internal/store"
)

// MaxResourceSize bounds how much of a resource body is ever returned.
const MaxResourceSize = 1024 * 1024

// RegisterResources registers one workspace:// resource per known
// workspace, each exposing JSON metadata and index stats rather than raw
// file content (there is no per-file content store to read from; get_symbols
// reads files live off disk instead). Safe to call again after
// manage_workspace add/remove to pick up the change; re-registering an
// existing URI simply replaces its handler.
func (s *Server) RegisterResources(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.workspaces == nil {
		return nil
	}

	workspaces := s.workspaces.ListWorkspaces()
	for _, ws := range workspaces {
		s.registerWorkspaceResource(ws)
	}

	s.logger.Info("registered resources", "count", len(workspaces))
	return nil
}

// registerWorkspaceResource registers one workspace as an MCP resource.
func (s *Server) registerWorkspaceResource(ws *store.Workspace) {
	uri := fmt.Sprintf("workspace://%s", ws.ID)
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        ws.Name,
			URI:         uri,
			Description: fmt.Sprintf("%s (%s, %s)", ws.RootPath, ws.Type, humanCount(ws.SymbolCount)),
			MIMEType:    "application/json",
		},
		s.makeWorkspaceHandler(ws.ID),
	)
}

// makeWorkspaceHandler creates a read handler for a specific workspace id.
func (s *Server) makeWorkspaceHandler(workspaceID string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.handleReadWorkspaceResource(ctx, workspaceID)
	}
}

// WorkspaceResourceOutput is the JSON body of a workspace:// resource.
type WorkspaceResourceOutput struct {
	WorkspaceOutput
	Stats WorkspaceStats `json:"stats"`
}

func (s *Server) handleReadWorkspaceResource(ctx context.Context, workspaceID string) (*mcp.ReadResourceResult, error) {
	if s.workspaces == nil {
		return nil, NewInvalidParamsError("no workspace manager is configured")
	}

	ws, ok := s.workspaces.GetWorkspace(workspaceID)
	if !ok {
		return nil, MapError(ErrWorkspaceNotFound)
	}

	files, symbols, err := s.workspaces.WorkspaceStats(ctx, workspaceID)
	if err != nil {
		return nil, MapError(err)
	}

	out := WorkspaceResourceOutput{
		WorkspaceOutput: toWorkspaceOutput(ws),
		Stats:           WorkspaceStats{FileCount: files, SymbolCount: symbols},
	}

	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	uri := fmt.Sprintf("workspace://%s", workspaceID)
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

// isValidPath validates that a path is safe to access: relative, and
// without any ".." traversal component. Used by tools that take a
// caller-supplied file path (get_symbols, rename_symbol's scope_file).
func isValidPath(path string) bool {
	if path == "" {
		return false
	}
	if filepath.IsAbs(path) {
		return false
	}
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return false
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// humanCount formats a symbol/file count for a resource description.
func humanCount(n int) string {
	if n == 1 {
		return "1 symbol"
	}
	return fmt.Sprintf("%d symbols", n)
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	QueryTypeCounts     map[string]int64    `json:"query_type_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	TimePeriod    string  `json:"time_period"`
	ZeroResultPct float64 `json:"zero_result_pct"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         "miller://query_metrics",
			Description: "Query pattern telemetry for search optimization",
			MIMEType:    "application/json",
		},
		s.makeQueryMetricsHandler(),
	)
}

// makeQueryMetricsHandler creates a handler for the query_metrics resource.
func (s *Server) makeQueryMetricsHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("query metrics not available")
		}

		snapshot := metrics.Snapshot()

		output := QueryMetricsOutput{
			Summary: QueryMetricsSummary{
				TotalQueries:  snapshot.TotalQueries,
				TimePeriod:    "session",
				ZeroResultPct: snapshot.ZeroResultPercentage(),
			},
			QueryTypeCounts:     make(map[string]int64),
			TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
			ZeroResultQueries:   snapshot.ZeroResultQueries,
			LatencyDistribution: make(map[string]int64),
		}

		for qt, count := range snapshot.QueryTypeCounts {
			output.QueryTypeCounts[string(qt)] = count
		}

		for _, tc := range snapshot.TopTerms {
			output.TopTerms = append(output.TopTerms, QueryTermCount{
				Term:  tc.Term,
				Count: tc.Count,
			})
		}

		for bucket, count := range snapshot.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      "miller://query_metrics",
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
