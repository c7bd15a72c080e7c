package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kodewright/miller/internal/scan"
	"github.com/kodewright/miller/internal/search"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/telemetry"
	"github.com/kodewright/miller/internal/tools"
	"github.com/kodewright/miller/internal/trace"
)

// registerTools wires the 8-tool code-intelligence surface into the
// underlying MCP server, one typed mcp.AddTool registration per tool.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_search",
		Description: "Hybrid text/semantic/pattern search over indexed symbols with optional caller/callee expansion.",
	}, s.handleFastSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_lookup",
		Description: "Resolve one or more symbol names to their definitions via an exact/fuzzy/semantic cascade.",
	}, s.handleFastLookup)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_refs",
		Description: "Find every reference to a symbol, grouped by file.",
	}, s.handleFastRefs)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_symbols",
		Description: "List a file's symbols, read live from disk and enriched with usage/doc/importance signals.",
	}, s.handleGetSymbols)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fast_explore",
		Description: "Explore a type's relationship graph (implementations/parents/children) or find cross-language semantic neighbors.",
	}, s.handleFastExplore)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "trace_call_path",
		Description: "Trace a symbol's upstream/downstream call tree across languages.",
	}, s.handleTraceCallPath)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "rename_symbol",
		Description: "Rename a symbol across all its references, previewing changes by default.",
	}, s.handleRenameSymbol)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "manage_workspace",
		Description: "List, add, remove, index, refresh, clean or check the health of indexed workspaces.",
	}, s.handleManageWorkspace)
}

func (s *Server) handleFastSearch(ctx context.Context, req *mcp.CallToolRequest, input FastSearchInput) (*mcp.CallToolResult, FastSearchOutput, error) {
	started := time.Now()
	format := resolveFormat(input.OutputFormat)

	opts := search.Options{
		Query:       input.Query,
		Method:      store.SearchMethod(input.Method),
		Limit:       clampLimit(input.Limit, 20, 1, 200),
		Workspace:   input.Workspace,
		Rerank:      input.Rerank,
		Expand:      input.Expand,
		ExpandLimit: input.ExpandLimit,
		Language:    input.Language,
		FilePattern: input.FilePattern,
	}
	if format != FormatAuto {
		opts.Format = string(format)
	}

	result, err := s.pipeline.Search(ctx, opts)
	if err != nil {
		return nil, FastSearchOutput{}, MapError(err)
	}

	s.recordQuery(input.Query, queryTypeForMethod(result.Method), len(result.Hits), started)
	return nil, toFastSearchOutput(result, format), nil
}

// queryTypeForMethod maps a resolved search method to the telemetry
// query-type taxonomy, which only distinguishes lexical/semantic/mixed.
func queryTypeForMethod(method store.SearchMethod) telemetry.QueryType {
	switch method {
	case store.MethodSemantic:
		return telemetry.QueryTypeSemantic
	case store.MethodText, store.MethodPattern:
		return telemetry.QueryTypeLexical
	default:
		return telemetry.QueryTypeMixed
	}
}

func (s *Server) handleFastLookup(ctx context.Context, req *mcp.CallToolRequest, input FastLookupInput) (*mcp.CallToolResult, FastLookupOutput, error) {
	started := time.Now()
	format := resolveFormat(input.OutputFormat)

	if len(input.Names) == 0 {
		return nil, FastLookupOutput{}, NewInvalidParamsError("names must contain at least one symbol name")
	}

	stores, err := s.resolveStores(ctx, input.Workspace)
	if err != nil {
		return nil, FastLookupOutput{}, MapError(err)
	}

	results, err := s.toolsFor(stores).FastLookup(ctx, s.workspaceOrPrimary(input.Workspace), input.Names, input.ContextFile, input.IncludeBody, input.MaxDepth)
	if err != nil {
		return nil, FastLookupOutput{}, MapError(err)
	}

	s.recordQuery(fmt.Sprintf("%v", input.Names), telemetry.QueryTypeMixed, len(results), started)
	return nil, toFastLookupOutput(results, format), nil
}

func (s *Server) handleFastRefs(ctx context.Context, req *mcp.CallToolRequest, input FastRefsInput) (*mcp.CallToolResult, FastRefsOutput, error) {
	started := time.Now()
	format := resolveFormat(input.OutputFormat)

	if input.SymbolName == "" {
		return nil, FastRefsOutput{}, NewInvalidParamsError("symbol_name is required")
	}

	stores, err := s.resolveStores(ctx, input.Workspace)
	if err != nil {
		return nil, FastRefsOutput{}, MapError(err)
	}

	limit := clampLimit(input.Limit, 100, 1, 2000)
	result, err := s.toolsFor(stores).FastRefs(ctx, s.workspaceOrPrimary(input.Workspace), input.SymbolName, input.KindFilter, input.IncludeContext, input.ContextFile, limit)
	if err != nil {
		return nil, FastRefsOutput{}, MapError(err)
	}

	s.recordQuery(input.SymbolName, telemetry.QueryTypeMixed, result.TotalReferences, started)
	return nil, toFastRefsOutput(result, format), nil
}

func (s *Server) handleGetSymbols(ctx context.Context, req *mcp.CallToolRequest, input GetSymbolsInput) (*mcp.CallToolResult, GetSymbolsOutput, error) {
	format := resolveFormat(input.OutputFormat)

	if input.FilePath == "" {
		return nil, GetSymbolsOutput{}, NewInvalidParamsError("file_path is required")
	}

	mode := tools.BodyMode(input.Mode)
	if mode == "" {
		mode = tools.BodyTopLevel
	}

	stores, err := s.resolveStores(ctx, input.Workspace)
	if err != nil {
		return nil, GetSymbolsOutput{}, MapError(err)
	}

	infos, err := s.toolsFor(stores).GetSymbols(ctx, s.workspaceOrPrimary(input.Workspace), input.FilePath, mode, input.MaxDepth, input.Target, input.Limit)
	if err != nil {
		return nil, GetSymbolsOutput{}, MapError(err)
	}

	return nil, toGetSymbolsOutput(infos, format), nil
}

func (s *Server) handleFastExplore(ctx context.Context, req *mcp.CallToolRequest, input FastExploreInput) (*mcp.CallToolResult, FastExploreOutput, error) {
	format := resolveFormat(input.OutputFormat)

	mode := tools.ExploreMode(input.Mode)
	switch mode {
	case tools.ExploreTypes:
		if input.TypeName == "" {
			return nil, FastExploreOutput{}, NewInvalidParamsError("type_name is required when mode is types")
		}
	case tools.ExploreSimilar:
		if input.SymbolName == "" {
			return nil, FastExploreOutput{}, NewInvalidParamsError("symbol_name is required when mode is similar")
		}
	default:
		return nil, FastExploreOutput{}, NewInvalidParamsError("mode must be types or similar")
	}

	stores, err := s.resolveStores(ctx, input.Workspace)
	if err != nil {
		return nil, FastExploreOutput{}, MapError(err)
	}

	rel, similar, err := s.toolsFor(stores).FastExplore(ctx, s.workspaceOrPrimary(input.Workspace), mode, input.TypeName, input.SymbolName)
	if err != nil {
		return nil, FastExploreOutput{}, MapError(err)
	}

	return nil, toFastExploreOutput(rel, similar, format), nil
}

func (s *Server) handleTraceCallPath(ctx context.Context, req *mcp.CallToolRequest, input TraceCallPathInput) (*mcp.CallToolResult, TraceCallPathOutput, error) {
	format := resolveFormat(input.OutputFormat)

	if input.SymbolName == "" {
		return nil, TraceCallPathOutput{}, NewInvalidParamsError("symbol_name is required")
	}

	stores, err := s.resolveStores(ctx, input.Workspace)
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}

	tp, err := s.tracerFor(stores).Trace(ctx, s.workspaceOrPrimary(input.Workspace), trace.Options{
		SymbolName:     input.SymbolName,
		Direction:      trace.Direction(input.Direction),
		MaxDepth:       input.MaxDepth,
		ContextFile:    input.ContextFile,
		EnableSemantic: input.EnableSemantic,
	})
	if err != nil {
		return nil, TraceCallPathOutput{}, MapError(err)
	}

	return nil, toTraceCallPathOutput(tp, format), nil
}

func (s *Server) handleRenameSymbol(ctx context.Context, req *mcp.CallToolRequest, input RenameSymbolInput) (*mcp.CallToolResult, RenameSymbolOutput, error) {
	format := resolveFormat(input.OutputFormat)

	if input.OldName == "" || input.NewName == "" {
		return nil, RenameSymbolOutput{}, NewInvalidParamsError("old_name and new_name are required")
	}

	workspaceID := s.workspaceOrPrimary(input.Workspace)
	stores, err := s.resolveStores(ctx, workspaceID)
	if err != nil {
		return nil, RenameSymbolOutput{}, MapError(err)
	}

	// dry_run defaults to true; a caller must set it explicitly false to
	// apply the rename.
	dryRun := true
	if input.DryRun != nil {
		dryRun = *input.DryRun
	}

	result, err := s.toolsFor(stores).RenameSymbol(ctx, workspaceID, input.OldName, input.NewName, input.ScopeFile, dryRun, input.UpdateImports, workspaceReindexer{mgr: s.workspaces, workspaceID: workspaceID})
	if err != nil {
		return nil, RenameSymbolOutput{}, MapError(err)
	}

	return nil, toRenameSymbolOutput(result, format), nil
}

func (s *Server) handleManageWorkspace(ctx context.Context, req *mcp.CallToolRequest, input ManageWorkspaceInput) (*mcp.CallToolResult, ManageWorkspaceOutput, error) {
	format := resolveFormat(input.OutputFormat)
	out := ManageWorkspaceOutput{Operation: input.Operation}

	if s.workspaces == nil && input.Operation != "health" {
		return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("no workspace manager is configured")
	}

	switch input.Operation {
	case "list":
		for _, ws := range s.workspaces.ListWorkspaces() {
			out.Workspaces = append(out.Workspaces, toWorkspaceOutput(ws))
		}

	case "stats":
		if input.WorkspaceID == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace_id is required for stats")
		}
		ws, ok := s.workspaces.GetWorkspace(input.WorkspaceID)
		if !ok {
			return nil, ManageWorkspaceOutput{}, MapError(ErrWorkspaceNotFound)
		}
		files, symbols, err := s.workspaces.WorkspaceStats(ctx, input.WorkspaceID)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		wo := toWorkspaceOutput(ws)
		out.Workspace = &wo
		out.Stats = &WorkspaceStats{FileCount: files, SymbolCount: symbols}

	case "add":
		if input.Path == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("path is required for add")
		}
		wtype := store.WorkspaceTypeReference
		if input.Type == string(store.WorkspaceTypePrimary) {
			wtype = store.WorkspaceTypePrimary
		}
		ws, err := s.workspaces.AddWorkspace(ctx, input.Path, input.Name, wtype)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		wo := toWorkspaceOutput(ws)
		out.Workspace = &wo

	case "remove":
		if input.WorkspaceID == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace_id is required for remove")
		}
		out.Intent = &WriteIntentOutput{Operation: "remove", WorkspaceID: input.WorkspaceID, Description: "unregister the workspace and drop its indexed data"}
		if err := s.workspaces.RemoveWorkspace(ctx, input.WorkspaceID); err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		out.Result = &WriteResultOutput{}

	case "index":
		if input.WorkspaceID == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace_id is required for index")
		}
		out.Intent = &WriteIntentOutput{Operation: "index", WorkspaceID: input.WorkspaceID, Description: "discover, extract, embed and commit every file not yet indexed"}
		result, err := s.workspaces.IndexWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		out.Result = toWriteResultOutput(result)

	case "refresh":
		if input.WorkspaceID == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace_id is required for refresh")
		}
		out.Intent = &WriteIntentOutput{Operation: "refresh", WorkspaceID: input.WorkspaceID, Description: "re-scan for changed/new/deleted files since the last index"}
		result, err := s.workspaces.RefreshWorkspace(ctx, input.WorkspaceID)
		if err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		out.Result = toWriteResultOutput(result)

	case "clean":
		if input.WorkspaceID == "" {
			return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("workspace_id is required for clean")
		}
		out.Intent = &WriteIntentOutput{Operation: "clean", WorkspaceID: input.WorkspaceID, Description: "drop all indexed data for the workspace without unregistering it"}
		if err := s.workspaces.CleanWorkspace(ctx, input.WorkspaceID); err != nil {
			return nil, ManageWorkspaceOutput{}, MapError(err)
		}
		out.Result = &WriteResultOutput{}

	case "health":
		var report HealthReport
		if s.workspaces != nil {
			report = s.workspaces.Health(ctx)
		} else {
			report = HealthReport{Healthy: true}
		}
		out.Health = &HealthReportOutput{
			Healthy:          report.Healthy,
			WorkspaceCount:   report.WorkspaceCount,
			DegradedFeatures: report.DegradedFeatures,
			Issues:           report.Issues,
		}

	default:
		return nil, ManageWorkspaceOutput{}, NewInvalidParamsError("operation must be one of list, stats, index, add, remove, refresh, clean, health")
	}

	if format != FormatJSON {
		out.Text = toJSONText(out)
	}
	return nil, out, nil
}

func toWorkspaceOutput(ws *store.Workspace) WorkspaceOutput {
	wo := WorkspaceOutput{
		ID:       ws.ID,
		Name:     ws.Name,
		RootPath: ws.RootPath,
		Type:     string(ws.Type),
	}
	if ws.LastIndexed != nil {
		wo.LastIndexed = ws.LastIndexed.Format(time.RFC3339)
	}
	return wo
}

func toWriteResultOutput(r *scan.Result) *WriteResultOutput {
	if r == nil {
		return &WriteResultOutput{}
	}
	return &WriteResultOutput{
		FilesIndexed: r.FilesIndexed,
		FilesUpdated: r.FilesUpdated,
		FilesSkipped: r.FilesSkipped,
		FilesDeleted: r.FilesDeleted,
		SymbolsAdded: r.Counts.SymbolsAdded,
	}
}

// workspaceOrPrimary resolves an empty workspace id to the server's
// primary workspace.
func (s *Server) workspaceOrPrimary(workspaceID string) string {
	if workspaceID == "" {
		return s.primaryID
	}
	return workspaceID
}
