// Package store provides the dual-store persistence layer: a relational
// store (SQLite, WAL mode) for files/symbols/identifiers/relationships and
// their transitive-closure reachability table, and a vector store (HNSW +
// FTS) for semantic, textual and pattern search over the same symbols.
package store

import (
	"context"
	"fmt"
	"time"
)

// WorkspaceType distinguishes the project a developer is actively editing
// from a read-only reference workspace indexed alongside it.
type WorkspaceType string

const (
	WorkspaceTypePrimary   WorkspaceType = "primary"
	WorkspaceTypeReference WorkspaceType = "reference"
)

// Workspace identifies a rooted directory tree indexed as a unit.
type Workspace struct {
	ID          string // slug(basename) + content-derived suffix, stable across re-index
	Name        string
	RootPath    string // absolute
	Type        WorkspaceType
	CreatedAt   time.Time
	LastIndexed *time.Time
	SymbolCount int
	FileCount   int
}

// File is a tracked source file, primary key = qualified path
// ("{workspace_id}:{relative_unix_path}").
type File struct {
	QualifiedPath string
	WorkspaceID   string
	RelativePath  string // unix-separated, relative to workspace root
	Language      string
	Content       string // stored verbatim for context extraction
	ContentHash   string // blake3 preferred, sha256 acceptable
	Size          int64
	ModTime       time.Time
	LastIndexed   time.Time
}

// SymbolKind enumerates the kinds of named entities the extraction adapter
// can report. The set is intentionally open-ended at the storage layer
// (stored as TEXT) so new parser-reported kinds never require a migration.
type SymbolKind string

const (
	KindFunction  SymbolKind = "function"
	KindMethod    SymbolKind = "method"
	KindClass     SymbolKind = "class"
	KindInterface SymbolKind = "interface"
	KindStruct    SymbolKind = "struct"
	KindEnum      SymbolKind = "enum"
	KindTrait     SymbolKind = "trait"
	KindModule    SymbolKind = "module"
	KindConstant  SymbolKind = "constant"
	KindVariable  SymbolKind = "variable"
	KindField     SymbolKind = "field"
	KindParameter SymbolKind = "parameter"
	KindImport    SymbolKind = "import"
	KindReference SymbolKind = "reference"
	KindFile      SymbolKind = "file" // synthetic, whole-file indexing for unparseable content
)

// Symbol is a named, positioned entity in source.
type Symbol struct {
	ID              string // parser-assigned, globally unique
	Name            string
	Kind            SymbolKind
	Language        string
	FilePath        string // qualified path
	Signature       string
	StartByte       int
	EndByte         int
	StartLine       int
	EndLine         int
	StartColumn     int
	EndColumn       int
	DocComment      string
	Visibility      string
	CodeContext     string // grep-style window around definition
	ParentID        string // self-referential, supports nested scopes; "" = none
	SemanticGroup   string
	Confidence      float64 // [0,1]
	ContentType     string
	ReferenceCount  int // materialized from inbound relationships
	WorkspaceID     string
}

// Identifier is a use-site of some symbol; it may or may not resolve.
type Identifier struct {
	ID                  string
	Name                string
	Kind                SymbolKind
	Language            string
	FilePath            string
	StartLine           int
	StartColumn         int
	ContainingSymbolID  string // scope the identifier appears in; "" = file scope
	TargetSymbolID      string // resolved definition; "" = unresolved
	Confidence          float64
	CodeContext         string
	WorkspaceID         string
}

// RelationshipKind enumerates directed edge kinds between symbols.
type RelationshipKind string

const (
	RelCall       RelationshipKind = "Call"
	RelImport     RelationshipKind = "Import"
	RelReference  RelationshipKind = "Reference"
	RelExtends    RelationshipKind = "Extends"
	RelImplements RelationshipKind = "Implements"
	RelReturns    RelationshipKind = "Returns"
	RelParameter  RelationshipKind = "Parameter"
)

// Relationship is a directed, kinded edge between two symbols.
type Relationship struct {
	ID            string
	FromSymbolID  string
	ToSymbolID    string
	Kind          RelationshipKind
	FilePath      string
	Line          int
	Confidence    float64
	WorkspaceID   string
	CreatedAt     time.Time
}

// ReachabilityRow is one row of the materialized transitive closure:
// source can reach target in MinDistance hops (shortest path).
type ReachabilityRow struct {
	SourceID    string
	TargetID    string
	MinDistance int
}

// ExtractionResult is the shape the Extraction Adapter (wrapping the
// tree-sitter parser library) returns for one file's content.
type ExtractionResult struct {
	Symbols       []*Symbol
	Identifiers   []*Identifier
	Relationships []*Relationship
}

// IncrementalUpdateCounts reports the effect of an atomic batch update.
type IncrementalUpdateCounts struct {
	FilesCleaned         int
	FilesAdded           int
	SymbolsAdded         int
	SymbolsSkipped       int
	IdentifiersAdded     int
	IdentifiersSkipped   int
	RelationshipsAdded   int
	RelationshipsSkipped int
}

// FileDataTuple is the minimal metadata needed to upsert a file row inside
// an atomic batch (content is carried separately to avoid copying large
// strings through the buffer's bookkeeping structures).
type FileDataTuple struct {
	RelativePath string
	Language     string
	Content      string
	ContentHash  string
	Size         int64
	ModTime      time.Time
}

// RelationalStore persists files/symbols/identifiers/relationships and the
// materialized reachability table for one or more workspaces sharing a
// single embedded database.
type RelationalStore interface {
	AddFile(ctx context.Context, workspaceID string, f FileDataTuple) error
	DeleteFile(ctx context.Context, qualifiedPath string) error
	DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) (int, error)

	AddSymbolsBatch(ctx context.Context, symbols []*Symbol, codeContext map[string]string) (int, error)
	AddIdentifiersBatch(ctx context.Context, identifiers []*Identifier) (int, error)
	AddRelationshipsBatch(ctx context.Context, relationships []*Relationship) (int, error)

	GetSymbolByID(ctx context.Context, id string) (*Symbol, error)
	GetSymbolsByIDs(ctx context.Context, ids []string) ([]*Symbol, error)
	GetSymbolByName(ctx context.Context, workspaceID, name string) ([]*Symbol, error)
	GetSymbolByNameFold(ctx context.Context, workspaceID, name string) ([]*Symbol, error)
	GetSymbolsByNames(ctx context.Context, workspaceID string, names []string) ([]*Symbol, error)
	GetSymbolsByFile(ctx context.Context, qualifiedPath string) ([]*Symbol, error)

	GetIdentifiersByTarget(ctx context.Context, targetSymbolID string) ([]*Identifier, error)
	GetIdentifiersByName(ctx context.Context, workspaceID, name string) ([]*Identifier, error)

	GetRelationshipsFrom(ctx context.Context, symbolID string) ([]*Relationship, error)
	GetRelationshipsTo(ctx context.Context, symbolID string) ([]*Relationship, error)
	GetRelationshipsByKind(ctx context.Context, workspaceID string, kind RelationshipKind) ([]*Relationship, error)

	AddReachabilityBatch(ctx context.Context, rows []*ReachabilityRow) error
	ClearReachability(ctx context.Context) error
	GetReachabilityFromSource(ctx context.Context, sourceID string, maxDistance int) ([]*ReachabilityRow, error)
	GetReachabilityForTarget(ctx context.Context, targetID string, maxDistance int) ([]*ReachabilityRow, error)
	ReachabilityStats(ctx context.Context) (rows int, maxCreatedRelationship time.Time, err error)
	MaxReachabilityTimestamp(ctx context.Context) (time.Time, error)

	// IncrementalUpdateAtomic performs the delete-cleanup-then-insert sequence
	// inside a single immediate transaction with deferred FK
	// checking. Never commits a partial batch.
	IncrementalUpdateAtomic(ctx context.Context, filesToClean []string, files []FileDataTuple, workspaceID string,
		symbols []*Symbol, identifiers []*Identifier, relationships []*Relationship,
		codeContext map[string]string) (*IncrementalUpdateCounts, error)

	UpdateReferenceCounts(ctx context.Context, workspaceID string) error

	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	ClearWorkspace(ctx context.Context, workspaceID string) error

	CountFiles(ctx context.Context, workspaceID string) (int, error)
	CountSymbols(ctx context.Context, workspaceID string) (int, error)
	GetFileHashes(ctx context.Context, workspaceID string) (map[string]string, error)
	GetFileLastIndexed(ctx context.Context, workspaceID string) (map[string]time.Time, error)

	Optimize(ctx context.Context) error
	Close() error
}

// ErrDimensionMismatch indicates a query/stored embedding dimension clash.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'miller index --force')", e.Expected, e.Got)
}

// SearchMethod selects which index executes a Vector Store query.
type SearchMethod string

const (
	MethodAuto     SearchMethod = "auto"
	MethodText     SearchMethod = "text"
	MethodPattern  SearchMethod = "pattern"
	MethodSemantic SearchMethod = "semantic"
	MethodHybrid   SearchMethod = "hybrid"
)

// VectorRow is the row shape persisted per symbol in the Vector Store
//: one table per workspace root, non-null unless noted.
type VectorRow struct {
	ID          string
	WorkspaceID string
	Name        string
	Kind        string
	Language    string
	FilePath    string
	Signature   string
	DocComment  string
	CodeContext string
	CodePattern string // "{kind} {name} {signature}", punctuation preserved
	StartLine   int
	EndLine     int
	Vector      []float32
}

// SearchResult is a single ranked hit from the Vector Store, normalized to
// [0,1]. Only a lean subset of fields is guaranteed before hydration.
type SearchResult struct {
	ID       string
	Name     string
	Kind     string
	Score    float64
	Distance float64
}

// VectorStore provides semantic, textual, pattern and hybrid search over
// the symbols of a workspace.
type VectorStore interface {
	AddSymbols(ctx context.Context, rows []VectorRow) error
	DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) error
	UpdateFileSymbols(ctx context.Context, qualifiedPath string, rows []VectorRow) error
	Search(ctx context.Context, query string, queryVector []float32, method SearchMethod, limit int) ([]SearchResult, error)
	ClearWorkspace(ctx context.Context, workspaceID string) error
	RebuildFTSIndex(ctx context.Context) error
	Count() int
	Close() error
}

// DefaultVectorStoreConfig returns sensible defaults.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" | "l2"
	M              int
	EfConstruction int
	EfSearch       int
	RRFConstant    int // k in reciprocal-rank fusion: score = 1/(k+rank); 0 defaults to 60
}

func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              32,
		EfConstruction: 128,
		EfSearch:       64,
		RRFConstant:    60,
	}
}
