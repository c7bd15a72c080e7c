package mcp

// OutputFormat selects how a tool renders its result. "auto" picks text
// below a size threshold and tabular above it; tools without a tabular
// rendering treat "tabular" the same as "text".
type OutputFormat string

const (
	FormatAuto    OutputFormat = "auto"
	FormatText    OutputFormat = "text"
	FormatJSON    OutputFormat = "json"
	FormatTabular OutputFormat = "tabular"
)

// FastSearchInput defines the input schema for the fast_search tool.
type FastSearchInput struct {
	Query        string   `json:"query" jsonschema:"the search query; auto-detects code patterns vs prose"`
	Method       string   `json:"method,omitempty" jsonschema:"auto, text, pattern, semantic, or hybrid; default auto"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 20"`
	Workspace    string   `json:"workspace,omitempty" jsonschema:"workspace id to search; defaults to the primary workspace"`
	Rerank       bool     `json:"rerank,omitempty" jsonschema:"apply cross-encoder reranking to the candidate set"`
	Expand       bool     `json:"expand,omitempty" jsonschema:"attach one hop of caller/callee context to each hit"`
	ExpandLimit  int      `json:"expand_limit,omitempty" jsonschema:"max callers/callees attached per hit when expand is set"`
	Language     string   `json:"language,omitempty" jsonschema:"filter results to this language"`
	FilePattern  string   `json:"file_pattern,omitempty" jsonschema:"filter results to file paths matching this glob"`
	OutputFormat string   `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// FastLookupInput defines the input schema for the fast_lookup tool.
type FastLookupInput struct {
	Names        []string `json:"names" jsonschema:"one or more symbol names to resolve, e.g. 'UserService.findById'"`
	ContextFile  string   `json:"context_file,omitempty" jsonschema:"file path to disambiguate same-named symbols"`
	IncludeBody  bool     `json:"include_body,omitempty" jsonschema:"attach the resolved symbol's source body"`
	MaxDepth     int      `json:"max_depth,omitempty" jsonschema:"0 resolves only the symbol itself; >=1 also attaches its structure"`
	Workspace    string   `json:"workspace,omitempty" jsonschema:"workspace id to resolve within; defaults to the primary workspace"`
	OutputFormat string   `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// FastRefsInput defines the input schema for the fast_refs tool.
type FastRefsInput struct {
	SymbolName     string `json:"symbol_name" jsonschema:"the symbol name to find references to"`
	KindFilter     string `json:"kind_filter,omitempty" jsonschema:"restrict matching definitions to this symbol kind"`
	IncludeContext bool   `json:"include_context,omitempty" jsonschema:"attach a code_context window per reference"`
	ContextFile    string `json:"context_file,omitempty" jsonschema:"file path to disambiguate same-named symbols"`
	Limit          int    `json:"limit,omitempty" jsonschema:"maximum number of references returned, default 100"`
	Workspace      string `json:"workspace,omitempty" jsonschema:"workspace id to search within; defaults to the primary workspace"`
	OutputFormat   string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// GetSymbolsInput defines the input schema for the get_symbols tool.
type GetSymbolsInput struct {
	FilePath     string `json:"file_path" jsonschema:"path to the file to list symbols for, read live from disk"`
	Mode         string `json:"mode,omitempty" jsonschema:"minimal, structure, or full; controls how much body text is attached"`
	MaxDepth     int    `json:"max_depth,omitempty" jsonschema:"maximum nesting depth of symbols to include"`
	Target       string `json:"target,omitempty" jsonschema:"restrict output to the symbol with this name and its descendants"`
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of symbols returned"`
	Workspace    string `json:"workspace,omitempty" jsonschema:"workspace id the file belongs to; defaults to the primary workspace"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// FastExploreInput defines the input schema for the fast_explore tool.
type FastExploreInput struct {
	Mode         string `json:"mode" jsonschema:"types or similar"`
	TypeName     string `json:"type_name,omitempty" jsonschema:"type name to explore, required when mode is types"`
	SymbolName   string `json:"symbol_name,omitempty" jsonschema:"symbol name to find neighbors for, required when mode is similar"`
	Workspace    string `json:"workspace,omitempty" jsonschema:"workspace id to explore within; defaults to the primary workspace"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// TraceCallPathInput defines the input schema for the trace_call_path tool.
type TraceCallPathInput struct {
	SymbolName     string `json:"symbol_name" jsonschema:"the symbol to root the trace at"`
	Direction      string `json:"direction,omitempty" jsonschema:"upstream, downstream, or both; default both"`
	MaxDepth       int    `json:"max_depth,omitempty" jsonschema:"maximum tree depth, capped at 10; default 10"`
	ContextFile    string `json:"context_file,omitempty" jsonschema:"file path to disambiguate same-named symbols"`
	EnableSemantic bool   `json:"enable_semantic,omitempty" jsonschema:"allow vector-assisted cross-language edge discovery"`
	Workspace      string `json:"workspace,omitempty" jsonschema:"workspace id to trace within; defaults to the primary workspace"`
	OutputFormat   string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// RenameSymbolInput defines the input schema for the rename_symbol tool.
type RenameSymbolInput struct {
	OldName       string `json:"old_name" jsonschema:"the symbol name to rename"`
	NewName       string `json:"new_name" jsonschema:"the replacement identifier"`
	ScopeFile     string `json:"scope_file,omitempty" jsonschema:"restrict the rename to references reachable from this file"`
	DryRun        *bool  `json:"dry_run,omitempty" jsonschema:"preview the change set without writing; defaults to true"`
	UpdateImports bool   `json:"update_imports,omitempty" jsonschema:"also rewrite import statements naming old_name"`
	Workspace     string `json:"workspace,omitempty" jsonschema:"workspace id to rename within; defaults to the primary workspace"`
	OutputFormat  string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// ManageWorkspaceInput defines the input schema for the manage_workspace tool.
type ManageWorkspaceInput struct {
	Operation    string `json:"operation" jsonschema:"list, stats, index, add, remove, refresh, clean, or health"`
	WorkspaceID  string `json:"workspace_id,omitempty" jsonschema:"target workspace id, required by stats/remove/refresh/clean"`
	Path         string `json:"path,omitempty" jsonschema:"root path to register, required by add"`
	Name         string `json:"name,omitempty" jsonschema:"display name for add; detected from project files when omitted"`
	Type         string `json:"type,omitempty" jsonschema:"primary or reference; default reference for add"`
	OutputFormat string `json:"output_format,omitempty" jsonschema:"text, json, tabular, or auto; default auto"`
}

// SymbolOutput is the wire representation of a store.Symbol.
type SymbolOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Language   string `json:"language"`
	FilePath   string `json:"file_path"`
	Signature  string `json:"signature,omitempty"`
	DocComment string `json:"doc_comment,omitempty"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// FastSearchOutput defines the output schema for the fast_search tool.
type FastSearchOutput struct {
	Hits    []SearchHitOutput `json:"hits"`
	Method  string            `json:"method"`
	Notices []string          `json:"notices,omitempty"`
	Text    string            `json:"text,omitempty"`
}

// SearchHitOutput is one fast_search result.
type SearchHitOutput struct {
	SymbolOutput
	Score       float64  `json:"score"`
	CodeContext string   `json:"code_context,omitempty"`
	Callers     []string `json:"callers,omitempty"`
	Callees     []string `json:"callees,omitempty"`
}

// FastLookupOutput defines the output schema for the fast_lookup tool.
type FastLookupOutput struct {
	Results []LookupResultOutput `json:"results"`
	Text    string                `json:"text,omitempty"`
}

// LookupResultOutput is one resolved (or unresolved) name.
type LookupResultOutput struct {
	Query      string         `json:"query"`
	MatchType  string         `json:"match_type"`
	Symbol     *SymbolOutput  `json:"symbol,omitempty"`
	Structure  []SymbolOutput `json:"structure,omitempty"`
	ImportStmt string         `json:"import_stmt,omitempty"`
}

// FastRefsOutput defines the output schema for the fast_refs tool.
type FastRefsOutput struct {
	Symbol          *SymbolOutput          `json:"symbol,omitempty"`
	TotalReferences int                    `json:"total_references"`
	Truncated       bool                   `json:"truncated"`
	Files           []FileReferencesOutput `json:"files"`
	Text            string                 `json:"text,omitempty"`
}

// FileReferencesOutput groups references by file.
type FileReferencesOutput struct {
	Path       string              `json:"path"`
	References []ReferenceOutput   `json:"references"`
}

// ReferenceOutput is one use-site of a symbol.
type ReferenceOutput struct {
	Line        int    `json:"line"`
	Kind        string `json:"kind"`
	CodeContext string `json:"code_context,omitempty"`
}

// GetSymbolsOutput defines the output schema for the get_symbols tool.
type GetSymbolsOutput struct {
	Symbols []SymbolInfoOutput `json:"symbols"`
	Text    string             `json:"text,omitempty"`
}

// SymbolInfoOutput is one enriched get_symbols entry.
type SymbolInfoOutput struct {
	SymbolOutput
	Body               string   `json:"body,omitempty"`
	ReferenceCount     int      `json:"reference_count"`
	UsageFrequency     string   `json:"usage_frequency"`
	DocQuality         string   `json:"doc_quality"`
	RelatedSymbols     []string `json:"related_symbols,omitempty"`
	CrossLanguageHints []string `json:"cross_language_hints,omitempty"`
	ImportanceScore    float64  `json:"importance_score"`
	Importance         string   `json:"importance"`
	EntryPoint         bool     `json:"entry_point"`
}

// FastExploreOutput defines the output schema for the fast_explore tool.
type FastExploreOutput struct {
	Implementations []SymbolOutput `json:"implementations,omitempty"`
	Parents         []SymbolOutput `json:"parents,omitempty"`
	Children        []SymbolOutput `json:"children,omitempty"`
	Returns         []SymbolOutput `json:"returns,omitempty"`
	Parameters      []SymbolOutput `json:"parameters,omitempty"`
	Similar         []SymbolOutput `json:"similar,omitempty"`
	Text            string         `json:"text,omitempty"`
}

// TraceCallPathOutput defines the output schema for the trace_call_path tool.
type TraceCallPathOutput struct {
	Root              *TraceNodeOutput `json:"root,omitempty"`
	TotalMatches      int              `json:"total_matches"`
	TotalNodes        int              `json:"total_nodes"`
	MaxDepthReached   int              `json:"max_depth_reached"`
	Truncated         bool             `json:"truncated"`
	LanguagesFound    []string         `json:"languages_found"`
	MatchTypeCounts   map[string]int   `json:"match_type_counts"`
	RelationshipKinds map[string]int   `json:"relationship_kinds"`
	CyclesDetected    int              `json:"cycles_detected"`
	Text              string           `json:"text,omitempty"`
}

// TraceNodeOutput is one node in the trace tree.
type TraceNodeOutput struct {
	SymbolOutput
	RelationshipKind string            `json:"relationship_kind,omitempty"`
	MatchType        string            `json:"match_type"`
	Confidence       float64           `json:"confidence"`
	Children         []TraceNodeOutput `json:"children,omitempty"`
}

// RenameSymbolOutput defines the output schema for the rename_symbol tool.
type RenameSymbolOutput struct {
	DryRun  bool                 `json:"dry_run"`
	Changes []RenameChangeOutput `json:"changes"`
	Text    string               `json:"text,omitempty"`
}

// RenameChangeOutput is one file touched by a rename.
type RenameChangeOutput struct {
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
}

// ManageWorkspaceOutput defines the output schema for the manage_workspace tool.
type ManageWorkspaceOutput struct {
	Operation  string              `json:"operation"`
	Workspaces []WorkspaceOutput   `json:"workspaces,omitempty"`
	Workspace  *WorkspaceOutput    `json:"workspace,omitempty"`
	Stats      *WorkspaceStats     `json:"stats,omitempty"`
	Intent     *WriteIntentOutput  `json:"intent,omitempty"`
	Result     *WriteResultOutput  `json:"result,omitempty"`
	Health     *HealthReportOutput `json:"health,omitempty"`
	Text       string              `json:"text,omitempty"`
}

// WorkspaceOutput is the wire representation of a store.Workspace.
type WorkspaceOutput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RootPath    string `json:"root_path"`
	Type        string `json:"type"`
	LastIndexed string `json:"last_indexed,omitempty"`
}

// WorkspaceStats reports file/symbol counts for one workspace.
type WorkspaceStats struct {
	FileCount   int `json:"file_count"`
	SymbolCount int `json:"symbol_count"`
}

// WriteIntentOutput previews a pending index/refresh/clean/remove before it
// runs, so a caller can confirm scope before the write happens.
type WriteIntentOutput struct {
	Operation   string `json:"operation"`
	WorkspaceID string `json:"workspace_id"`
	Description string `json:"description"`
}

// WriteResultOutput reports what an index/refresh/clean/remove actually did.
type WriteResultOutput struct {
	FilesIndexed int `json:"files_indexed,omitempty"`
	FilesUpdated int `json:"files_updated,omitempty"`
	FilesSkipped int `json:"files_skipped,omitempty"`
	FilesDeleted int `json:"files_deleted,omitempty"`
	SymbolsAdded int `json:"symbols_added,omitempty"`
}

// HealthReportOutput summarizes engine health for the health operation.
type HealthReportOutput struct {
	Healthy          bool     `json:"healthy"`
	WorkspaceCount   int      `json:"workspace_count"`
	DegradedFeatures []string `json:"degraded_features,omitempty"`
	Issues           []string `json:"issues,omitempty"`
}
