package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kodewright/miller/internal/config"
	"github.com/kodewright/miller/internal/scan"
	"github.com/kodewright/miller/internal/search"
	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/telemetry"
	"github.com/kodewright/miller/internal/tools"
	"github.com/kodewright/miller/internal/trace"
	"github.com/kodewright/miller/pkg/version"
)

// Embedder turns text into vectors and reports its own readiness. It is
// declared locally so this package never needs to import internal/embed
// directly; any embedding adapter satisfies it structurally.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
}

// HealthReport summarizes engine health for manage_workspace's health
// operation.
type HealthReport struct {
	Healthy          bool
	WorkspaceCount   int
	DegradedFeatures []string
	Issues           []string
}

// WorkspaceManager owns workspace lifecycle: registration and the
// discover/extract/embed/commit cycle that fills the Relational and
// Vector Stores. The server calls into it for every manage_workspace
// write operation and for rename_symbol's touched-file reindex; it does
// not open or close stores itself.
type WorkspaceManager interface {
	ListWorkspaces() []*store.Workspace
	GetWorkspace(workspaceID string) (*store.Workspace, bool)
	WorkspaceStats(ctx context.Context, workspaceID string) (fileCount, symbolCount int, err error)
	AddWorkspace(ctx context.Context, rootPath, name string, wtype store.WorkspaceType) (*store.Workspace, error)
	RemoveWorkspace(ctx context.Context, workspaceID string) error
	IndexWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error)
	RefreshWorkspace(ctx context.Context, workspaceID string) (*scan.Result, error)
	CleanWorkspace(ctx context.Context, workspaceID string) error
	ReindexFile(ctx context.Context, workspaceID, absPath string) error
	Health(ctx context.Context) HealthReport
}

// workspaceReindexer adapts WorkspaceManager.ReindexFile to tools.Reindexer,
// which rename_symbol calls without a workspace id of its own.
type workspaceReindexer struct {
	mgr         WorkspaceManager
	workspaceID string
}

func (r workspaceReindexer) ReindexFile(ctx context.Context, absPath string) error {
	if r.mgr == nil {
		return nil
	}
	return r.mgr.ReindexFile(ctx, r.workspaceID, absPath)
}

// Server is the MCP server exposing the code-intelligence tool surface:
// fast_search, fast_lookup, fast_refs, get_symbols, fast_explore,
// trace_call_path, rename_symbol and manage_workspace.
type Server struct {
	mcp *mcp.Server

	pipeline *search.Pipeline

	primaryID string
	primary   search.Stores
	resolver  search.StoreResolver

	embedder   Embedder
	workspaces WorkspaceManager
	config     *config.Config
	logger     *slog.Logger

	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// NewServer builds the MCP server rooted at the primary workspace's
// stores. embedder, resolver and workspaces may be nil: a nil embedder
// disables semantic search and fast_explore's similar mode; a nil
// resolver means only the primary workspace id may ever be queried; a
// nil workspaces manager makes manage_workspace's write operations fail
// with a contract error rather than panic.
func NewServer(primaryID string, primary search.Stores, embedder Embedder, resolver search.StoreResolver, workspaces WorkspaceManager, cfg *config.Config) (*Server, error) {
	if primaryID == "" {
		return nil, errors.New("primary workspace id is required")
	}
	if primary.Relational == nil || primary.Vector == nil {
		return nil, errors.New("primary relational and vector stores are required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	var embAdapter search.Embedder
	if embedder != nil {
		embAdapter = embedder
	}

	s := &Server{
		pipeline: search.NewWithConfig(primaryID, primary, embAdapter, nil, resolver, search.Config{
			SemanticFallbackThreshold: cfg.Search.SemanticFallbackThreshold,
			TabularAutoThreshold:      cfg.Search.TabularAutoThreshold,
			DefaultLimit:              cfg.Search.DefaultLimit,
			MaxLimit:                  cfg.Search.MaxLimit,
		}),
		primaryID:  primaryID,
		primary:    primary,
		resolver:   resolver,
		embedder:   embedder,
		workspaces: workspaces,
		config:     cfg,
		logger:     slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "miller",
			Version: version.Version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// SetMetrics sets the query metrics collector for telemetry. When set, a
// query_metrics resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "miller", version.Version
}

// resolveStores resolves the Relational/Vector/Reachability collaborators
// for workspaceID, falling back to the primary workspace when empty. This
// mirrors search.Pipeline's own primary/resolver branching so tools and
// trace get the same routing fast_search does.
func (s *Server) resolveStores(ctx context.Context, workspaceID string) (search.Stores, error) {
	if workspaceID == "" || workspaceID == s.primaryID {
		return s.primary, nil
	}
	if s.resolver == nil {
		return search.Stores{}, fmt.Errorf("%w: %q", ErrWorkspaceNotFound, workspaceID)
	}
	stores, err := s.resolver.Resolve(ctx, workspaceID)
	if err != nil {
		return search.Stores{}, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, err)
	}
	return stores, nil
}

func (s *Server) toolsFor(stores search.Stores) *tools.Tools {
	t := &tools.Tools{Rel: stores.Relational, Vec: stores.Vector}
	if s.embedder != nil {
		t.Embedder = s.embedder
	}
	return t
}

func (s *Server) tracerFor(stores search.Stores) *trace.Engine {
	var emb trace.Embedder
	if s.embedder != nil {
		emb = s.embedder
	}
	return trace.New(stores.Relational, stores.Vector, emb)
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources. The MCP server itself stops when its
// context is canceled; this exists for symmetry with other components
// that hold closable handles.
func (s *Server) Close() error {
	return nil
}

func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// recordQuery logs telemetry for one query if a metrics collector is set.
func (s *Server) recordQuery(query string, qt telemetry.QueryType, resultCount int, started time.Time) {
	s.mu.RLock()
	m := s.metrics
	s.mu.RUnlock()
	if m == nil {
		return
	}
	m.Record(telemetry.QueryEvent{
		Query:       query,
		QueryType:   qt,
		ResultCount: resultCount,
		Latency:     time.Since(started),
		Timestamp:   started,
	})
}
