package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)
)

// SQLiteStore implements RelationalStore backed by an embedded single-writer
// SQLite database in WAL mode with deferred foreign-key checking.
// A single *sql.DB with MaxOpenConns=1 gives us the "single
// writer, concurrent readers" semantics WAL mode promises without a
// separate locking layer.
type SQLiteStore struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// validateSQLiteIntegrity runs a pre-open corruption probe: a prior crash
// mid-write can leave a WAL-mode database in a state SQLite itself can
// detect cheaply before the engine starts relying on it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// NewSQLiteStore opens (creating if necessary) the relational store at path.
// An empty path opens an in-memory database, used by tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		if err := validateSQLiteIntegrity(path); err != nil {
			slog.Warn("relational_store_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("store corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("relational_store_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL still allows concurrent readers on other handles
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA wal_autocheckpoint = 10000", // roughly 40MB of WAL given 4KB pages
		"PRAGMA mmap_size = 536870912",      // 512MB
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA defer_foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return s, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	root_path TEXT NOT NULL,
	type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	last_indexed TEXT
);

CREATE TABLE IF NOT EXISTS files (
	qualified_path TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	relative_path TEXT NOT NULL,
	language TEXT NOT NULL,
	content TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	size INTEGER NOT NULL,
	mod_time TEXT NOT NULL,
	last_indexed TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_workspace ON files(workspace_id);

CREATE TABLE IF NOT EXISTS symbols (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	language TEXT NOT NULL,
	file_path TEXT NOT NULL REFERENCES files(qualified_path) ON DELETE CASCADE,
	signature TEXT,
	start_byte INTEGER,
	end_byte INTEGER,
	start_line INTEGER,
	end_line INTEGER,
	start_column INTEGER,
	end_column INTEGER,
	doc_comment TEXT,
	visibility TEXT,
	code_context TEXT,
	parent_id TEXT REFERENCES symbols(id) ON DELETE SET NULL,
	semantic_group TEXT,
	confidence REAL NOT NULL DEFAULT 1.0,
	content_type TEXT,
	reference_count INTEGER NOT NULL DEFAULT 0,
	workspace_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_kind ON symbols(kind);
CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_id);
CREATE INDEX IF NOT EXISTS idx_symbols_refcount ON symbols(reference_count DESC);
CREATE INDEX IF NOT EXISTS idx_symbols_workspace ON symbols(workspace_id);

CREATE TABLE IF NOT EXISTS identifiers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	language TEXT NOT NULL,
	file_path TEXT NOT NULL REFERENCES files(qualified_path) ON DELETE CASCADE,
	start_line INTEGER,
	start_column INTEGER,
	containing_symbol_id TEXT REFERENCES symbols(id) ON DELETE CASCADE,
	target_symbol_id TEXT REFERENCES symbols(id) ON DELETE SET NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	code_context TEXT,
	workspace_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_identifiers_name ON identifiers(name);
CREATE INDEX IF NOT EXISTS idx_identifiers_file ON identifiers(file_path);
CREATE INDEX IF NOT EXISTS idx_identifiers_containing ON identifiers(containing_symbol_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_target ON identifiers(target_symbol_id);
CREATE INDEX IF NOT EXISTS idx_identifiers_workspace ON identifiers(workspace_id);

CREATE TABLE IF NOT EXISTS relationships (
	id TEXT PRIMARY KEY,
	from_symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	to_symbol_id TEXT NOT NULL REFERENCES symbols(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	file_path TEXT,
	line INTEGER,
	confidence REAL NOT NULL DEFAULT 1.0,
	workspace_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rel_from ON relationships(from_symbol_id);
CREATE INDEX IF NOT EXISTS idx_rel_to ON relationships(to_symbol_id);
CREATE INDEX IF NOT EXISTS idx_rel_kind ON relationships(kind);
CREATE INDEX IF NOT EXISTS idx_rel_workspace ON relationships(workspace_id);

CREATE TABLE IF NOT EXISTS reachability (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	min_distance INTEGER NOT NULL,
	PRIMARY KEY (source_id, target_id)
);
CREATE INDEX IF NOT EXISTS idx_reach_source_dist ON reachability(source_id, min_distance);
CREATE INDEX IF NOT EXISTS idx_reach_target_dist ON reachability(target_id, min_distance);

CREATE TABLE IF NOT EXISTS kv_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);
`

// CurrentSchemaVersion gates additive migrations.
const CurrentSchemaVersion = 1

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return err
	}
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, CurrentSchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

func (s *SQLiteStore) Optimize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(PASSIVE)")
	return err
}

// ---- file operations ----

func (s *SQLiteStore) AddFile(ctx context.Context, workspaceID string, f FileDataTuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	qualified := QualifyPath(workspaceID, f.RelativePath)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files(qualified_path, workspace_id, relative_path, language, content, content_hash, size, mod_time, last_indexed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(qualified_path) DO UPDATE SET
			language=excluded.language, content=excluded.content, content_hash=excluded.content_hash,
			size=excluded.size, mod_time=excluded.mod_time, last_indexed=excluded.last_indexed`,
		qualified, workspaceID, f.RelativePath, f.Language, f.Content, f.ContentHash, f.Size,
		f.ModTime.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteStore) DeleteFile(ctx context.Context, qualifiedPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE qualified_path = ?`, qualifiedPath)
	return err
}

func (s *SQLiteStore) DeleteFilesBatch(ctx context.Context, qualifiedPaths []string) (int, error) {
	if len(qualifiedPaths) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	placeholders, args := inClause(qualifiedPaths)
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM files WHERE qualified_path IN (%s)`, placeholders), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func inClause(values []string) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ","), args
}

// QualifyPath builds the "{workspace_id}:{relative_unix_path}" key used
// throughout the store.
func QualifyPath(workspaceID, relativePath string) string {
	return workspaceID + ":" + filepath.ToSlash(relativePath)
}

// ---- symbols ----

func (s *SQLiteStore) AddSymbolsBatch(ctx context.Context, symbols []*Symbol, codeContext map[string]string) (int, error) {
	if len(symbols) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n, _, err := insertSymbols(ctx, tx, symbols, codeContext, nil)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// insertSymbols inserts symbols assuming validIDs (if non-nil) constrains
// which parent_id values are permitted; invalid parents are NULL-ed rather
// than rejecting the row.
func insertSymbols(ctx context.Context, tx *sql.Tx, symbols []*Symbol, codeContext map[string]string, validIDs map[string]bool) (inserted, skipped int, err error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols(id, name, kind, language, file_path, signature, start_byte, end_byte,
			start_line, end_line, start_column, end_column, doc_comment, visibility, code_context,
			parent_id, semantic_group, confidence, content_type, reference_count, workspace_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, kind=excluded.kind, language=excluded.language, file_path=excluded.file_path,
			signature=excluded.signature, start_byte=excluded.start_byte, end_byte=excluded.end_byte,
			start_line=excluded.start_line, end_line=excluded.end_line, start_column=excluded.start_column,
			end_column=excluded.end_column, doc_comment=excluded.doc_comment, visibility=excluded.visibility,
			code_context=excluded.code_context, parent_id=excluded.parent_id, semantic_group=excluded.semantic_group,
			confidence=excluded.confidence, content_type=excluded.content_type, workspace_id=excluded.workspace_id`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, sym := range topoSortSymbols(symbols) {
		if sym.StartByte > sym.EndByte {
			skipped++
			continue
		}
		parentID := sym.ParentID
		if parentID != "" && validIDs != nil && !validIDs[parentID] {
			parentID = ""
		}
		snippet := sym.CodeContext
		if codeContext != nil {
			if v, ok := codeContext[sym.ID]; ok {
				snippet = v
			}
		}
		var parentArg any
		if parentID != "" {
			parentArg = parentID
		}
		if _, err := stmt.ExecContext(ctx, sym.ID, sym.Name, string(sym.Kind), sym.Language, sym.FilePath,
			sym.Signature, sym.StartByte, sym.EndByte, sym.StartLine, sym.EndLine, sym.StartColumn, sym.EndColumn,
			sym.DocComment, sym.Visibility, snippet, parentArg, sym.SemanticGroup, sym.Confidence,
			sym.ContentType, sym.WorkspaceID); err != nil {
			return inserted, skipped, fmt.Errorf("insert symbol %s: %w", sym.ID, err)
		}
		inserted++
	}
	return inserted, skipped, nil
}

// topoSortSymbols orders symbols so parents precede children via BFS from
// roots (symbols whose parent is absent from the batch or empty).
// Symbols outside the batch are treated as external
// roots — their children still sort after them within the batch because
// the BFS visits parent-absent nodes first.
func topoSortSymbols(symbols []*Symbol) []*Symbol {
	byID := make(map[string]*Symbol, len(symbols))
	children := make(map[string][]*Symbol)
	var roots []*Symbol
	for _, sym := range symbols {
		byID[sym.ID] = sym
	}
	for _, sym := range symbols {
		if sym.ParentID != "" {
			if _, ok := byID[sym.ParentID]; ok {
				children[sym.ParentID] = append(children[sym.ParentID], sym)
				continue
			}
		}
		roots = append(roots, sym)
	}
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	ordered := make([]*Symbol, 0, len(symbols))
	visited := make(map[string]bool, len(symbols))
	queue := append([]*Symbol{}, roots...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.ID] {
			continue
		}
		visited[cur.ID] = true
		ordered = append(ordered, cur)
		kids := children[cur.ID]
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].ID < kids[j].ID })
		queue = append(queue, kids...)
	}
	// any symbol not reached (cyclic parent chain entirely inside the
	// batch — shouldn't happen, but never drop data) is appended as-is.
	for _, sym := range symbols {
		if !visited[sym.ID] {
			ordered = append(ordered, sym)
		}
	}
	return ordered
}

func (s *SQLiteStore) GetSymbolByID(ctx context.Context, id string) (*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, symbolSelectSQL+` WHERE s.id = ?`, id)
	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sym, err
}

const symbolSelectSQL = `
SELECT s.id, s.name, s.kind, s.language, s.file_path, s.signature, s.start_byte, s.end_byte,
	s.start_line, s.end_line, s.start_column, s.end_column, s.doc_comment, s.visibility, s.code_context,
	COALESCE(s.parent_id, ''), s.semantic_group, s.confidence, s.content_type, s.reference_count, s.workspace_id
FROM symbols s`

func scanSymbol(row *sql.Row) (*Symbol, error) {
	var sym Symbol
	var kind string
	if err := row.Scan(&sym.ID, &sym.Name, &kind, &sym.Language, &sym.FilePath, &sym.Signature,
		&sym.StartByte, &sym.EndByte, &sym.StartLine, &sym.EndLine, &sym.StartColumn, &sym.EndColumn,
		&sym.DocComment, &sym.Visibility, &sym.CodeContext, &sym.ParentID, &sym.SemanticGroup,
		&sym.Confidence, &sym.ContentType, &sym.ReferenceCount, &sym.WorkspaceID); err != nil {
		return nil, err
	}
	sym.Kind = SymbolKind(kind)
	return &sym, nil
}

func scanSymbolRows(rows *sql.Rows) (*Symbol, error) {
	var sym Symbol
	var kind string
	if err := rows.Scan(&sym.ID, &sym.Name, &kind, &sym.Language, &sym.FilePath, &sym.Signature,
		&sym.StartByte, &sym.EndByte, &sym.StartLine, &sym.EndLine, &sym.StartColumn, &sym.EndColumn,
		&sym.DocComment, &sym.Visibility, &sym.CodeContext, &sym.ParentID, &sym.SemanticGroup,
		&sym.Confidence, &sym.ContentType, &sym.ReferenceCount, &sym.WorkspaceID); err != nil {
		return nil, err
	}
	sym.Kind = SymbolKind(kind)
	return &sym, nil
}

// GetSymbolsByIDs fetches rows for many ids in a single parameterized
// query rather than one round trip per id.
func (s *SQLiteStore) GetSymbolsByIDs(ctx context.Context, ids []string) ([]*Symbol, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, symbolSelectSQL+fmt.Sprintf(` WHERE s.id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetSymbolsByNames resolves many names in one batched "WHERE name IN (...)"
// query, optionally scoped to one workspace. It does not filter by
// language; get_symbols' cross_language_hints enrichment drops same-language
// matches itself.
func (s *SQLiteStore) GetSymbolsByNames(ctx context.Context, workspaceID string, names []string) ([]*Symbol, error) {
	if len(names) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	placeholders, args := inClause(names)
	query := symbolSelectSQL + fmt.Sprintf(` WHERE s.name IN (%s) AND (? = '' OR s.workspace_id = ?)`, placeholders)
	args = append(args, workspaceID, workspaceID)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetSymbolByNameFold is GetSymbolByName's case-insensitive sibling,
// used by fast_lookup's fuzzy cascade once an exact match
// fails.
func (s *SQLiteStore) GetSymbolByNameFold(ctx context.Context, workspaceID, name string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, symbolSelectSQL+`
		WHERE LOWER(s.name) = LOWER(?) AND (? = '' OR s.workspace_id = ?)
		ORDER BY CASE s.kind WHEN 'import' THEN 2 WHEN 'reference' THEN 2 ELSE 1 END, s.id`,
		name, workspaceID, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// GetSymbolByName ties broken: definitions before imports/references.
func (s *SQLiteStore) GetSymbolByName(ctx context.Context, workspaceID, name string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, symbolSelectSQL+`
		WHERE s.name = ? AND (? = '' OR s.workspace_id = ?)
		ORDER BY CASE s.kind WHEN 'import' THEN 2 WHEN 'reference' THEN 2 ELSE 1 END, s.id`,
		name, workspaceID, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetSymbolsByFile(ctx context.Context, qualifiedPath string) ([]*Symbol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, symbolSelectSQL+` WHERE s.file_path = ? ORDER BY s.start_line`, qualifiedPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Symbol
	for rows.Next() {
		sym, err := scanSymbolRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// ---- identifiers ----

func (s *SQLiteStore) AddIdentifiersBatch(ctx context.Context, identifiers []*Identifier) (int, error) {
	if len(identifiers) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n, _, err := insertIdentifiers(ctx, tx, identifiers, nil)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func insertIdentifiers(ctx context.Context, tx *sql.Tx, identifiers []*Identifier, validIDs map[string]bool) (inserted, skipped int, err error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO identifiers(id, name, kind, language, file_path, start_line, start_column,
			containing_symbol_id, target_symbol_id, confidence, code_context, workspace_id)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, kind=excluded.kind, language=excluded.language, file_path=excluded.file_path,
			start_line=excluded.start_line, start_column=excluded.start_column,
			containing_symbol_id=excluded.containing_symbol_id, target_symbol_id=excluded.target_symbol_id,
			confidence=excluded.confidence, code_context=excluded.code_context, workspace_id=excluded.workspace_id`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, id := range identifiers {
		if id.ID == "" {
			id.ID = uuid.NewString()
		}
		// containing_symbol must exist; drop the row if not.
		if validIDs != nil && id.ContainingSymbolID != "" && !validIDs[id.ContainingSymbolID] {
			skipped++
			continue
		}
		target := id.TargetSymbolID
		if validIDs != nil && target != "" && !validIDs[target] {
			target = "" // NULL-out optional target rather than drop the row
		}
		var containingArg, targetArg any
		if id.ContainingSymbolID != "" {
			containingArg = id.ContainingSymbolID
		}
		if target != "" {
			targetArg = target
		}
		if _, err := stmt.ExecContext(ctx, id.ID, id.Name, string(id.Kind), id.Language, id.FilePath,
			id.StartLine, id.StartColumn, containingArg, targetArg, id.Confidence, id.CodeContext, id.WorkspaceID); err != nil {
			return inserted, skipped, fmt.Errorf("insert identifier %s: %w", id.ID, err)
		}
		inserted++
	}
	return inserted, skipped, nil
}

func (s *SQLiteStore) GetIdentifiersByTarget(ctx context.Context, targetSymbolID string) ([]*Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryIdentifiers(ctx, s.db, `WHERE target_symbol_id = ?`, targetSymbolID)
}

func (s *SQLiteStore) GetIdentifiersByName(ctx context.Context, workspaceID, name string) ([]*Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryIdentifiers(ctx, s.db, `WHERE name = ? AND (? = '' OR workspace_id = ?)`, name, workspaceID, workspaceID)
}

func queryIdentifiers(ctx context.Context, db *sql.DB, where string, args ...any) ([]*Identifier, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, kind, language, file_path, start_line, start_column,
			COALESCE(containing_symbol_id, ''), COALESCE(target_symbol_id, ''), confidence, code_context, workspace_id
		FROM identifiers `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Identifier
	for rows.Next() {
		var id Identifier
		var kind string
		if err := rows.Scan(&id.ID, &id.Name, &kind, &id.Language, &id.FilePath, &id.StartLine, &id.StartColumn,
			&id.ContainingSymbolID, &id.TargetSymbolID, &id.Confidence, &id.CodeContext, &id.WorkspaceID); err != nil {
			return nil, err
		}
		id.Kind = SymbolKind(kind)
		out = append(out, &id)
	}
	return out, rows.Err()
}

// ---- relationships ----

func (s *SQLiteStore) AddRelationshipsBatch(ctx context.Context, relationships []*Relationship) (int, error) {
	if len(relationships) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	n, _, err := insertRelationships(ctx, tx, relationships, nil)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

func insertRelationships(ctx context.Context, tx *sql.Tx, relationships []*Relationship, validIDs map[string]bool) (inserted, skipped int, err error) {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationships(id, from_symbol_id, to_symbol_id, kind, file_path, line, confidence, workspace_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			from_symbol_id=excluded.from_symbol_id, to_symbol_id=excluded.to_symbol_id, kind=excluded.kind,
			file_path=excluded.file_path, line=excluded.line, confidence=excluded.confidence,
			workspace_id=excluded.workspace_id`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range relationships {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if validIDs != nil && (!validIDs[r.FromSymbolID] || !validIDs[r.ToSymbolID]) {
			skipped++
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.FromSymbolID, r.ToSymbolID, string(r.Kind), r.FilePath,
			r.Line, r.Confidence, r.WorkspaceID, now); err != nil {
			return inserted, skipped, fmt.Errorf("insert relationship %s: %w", r.ID, err)
		}
		inserted++
	}
	return inserted, skipped, nil
}

func (s *SQLiteStore) GetRelationshipsFrom(ctx context.Context, symbolID string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelationships(ctx, s.db, `WHERE from_symbol_id = ?`, symbolID)
}

func (s *SQLiteStore) GetRelationshipsTo(ctx context.Context, symbolID string) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelationships(ctx, s.db, `WHERE to_symbol_id = ?`, symbolID)
}

func (s *SQLiteStore) GetRelationshipsByKind(ctx context.Context, workspaceID string, kind RelationshipKind) ([]*Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRelationships(ctx, s.db, `WHERE kind = ? AND (? = '' OR workspace_id = ?)`, string(kind), workspaceID, workspaceID)
}

func queryRelationships(ctx context.Context, db *sql.DB, where string, args ...any) ([]*Relationship, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, from_symbol_id, to_symbol_id, kind, COALESCE(file_path,''), COALESCE(line,0), confidence, workspace_id, created_at
		FROM relationships `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Relationship
	for rows.Next() {
		var r Relationship
		var kind, createdAt string
		if err := rows.Scan(&r.ID, &r.FromSymbolID, &r.ToSymbolID, &kind, &r.FilePath, &r.Line, &r.Confidence, &r.WorkspaceID, &createdAt); err != nil {
			return nil, err
		}
		r.Kind = RelationshipKind(kind)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ---- reachability ----

func (s *SQLiteStore) AddReachabilityBatch(ctx context.Context, rowsIn []*ReachabilityRow) error {
	if len(rowsIn) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reachability(source_id, target_id, min_distance) VALUES (?,?,?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET min_distance=excluded.min_distance
		WHERE excluded.min_distance < reachability.min_distance`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rowsIn {
		if _, err := stmt.ExecContext(ctx, r.SourceID, r.TargetID, r.MinDistance); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ClearReachability(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM reachability`)
	return err
}

func (s *SQLiteStore) GetReachabilityFromSource(ctx context.Context, sourceID string, maxDistance int) ([]*ReachabilityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT source_id, target_id, min_distance FROM reachability WHERE source_id = ?`
	args := []any{sourceID}
	if maxDistance > 0 {
		q += ` AND min_distance <= ?`
		args = append(args, maxDistance)
	}
	q += ` ORDER BY min_distance`
	return scanReachability(s.db.QueryContext(ctx, q, args...))
}

func (s *SQLiteStore) GetReachabilityForTarget(ctx context.Context, targetID string, maxDistance int) ([]*ReachabilityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := `SELECT source_id, target_id, min_distance FROM reachability WHERE target_id = ?`
	args := []any{targetID}
	if maxDistance > 0 {
		q += ` AND min_distance <= ?`
		args = append(args, maxDistance)
	}
	q += ` ORDER BY min_distance`
	return scanReachability(s.db.QueryContext(ctx, q, args...))
}

func scanReachability(rows *sql.Rows, err error) ([]*ReachabilityRow, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ReachabilityRow
	for rows.Next() {
		var r ReachabilityRow
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.MinDistance); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ReachabilityStats(ctx context.Context) (int, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reachability`).Scan(&rows); err != nil {
		return 0, time.Time{}, err
	}
	var maxRel sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(created_at) FROM relationships`).Scan(&maxRel); err != nil {
		return rows, time.Time{}, err
	}
	if !maxRel.Valid {
		return rows, time.Time{}, nil
	}
	t, _ := time.Parse(time.RFC3339Nano, maxRel.String)
	return rows, t, nil
}

// MaxReachabilityTimestamp is approximated: reachability rows carry no
// timestamp of their own (they are pure function-of-relationships state),
// so staleness is judged against when the table was last fully rebuilt,
// tracked via kv_state by the caller (reachability engine).
func (s *SQLiteStore) MaxReachabilityTimestamp(ctx context.Context) (time.Time, error) {
	v, err := s.GetState(ctx, "reachability_refreshed_at")
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, _ := time.Parse(time.RFC3339Nano, v)
	return t, nil
}

// ---- incremental atomic update ----

func (s *SQLiteStore) IncrementalUpdateAtomic(ctx context.Context, filesToClean []string, files []FileDataTuple,
	workspaceID string, symbols []*Symbol, identifiers []*Identifier, relationships []*Relationship,
	codeContext map[string]string) (*IncrementalUpdateCounts, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	counts := &IncrementalUpdateCounts{}

	// 1. Compute the valid-symbol-id set: existing rows not about to be
	// cascade-deleted, union the incoming batch.
	cleanSet := make(map[string]bool, len(filesToClean))
	for _, p := range filesToClean {
		cleanSet[QualifyPath(workspaceID, p)] = true
	}
	validIDs := make(map[string]bool, len(symbols))
	if len(cleanSet) > 0 {
		rows, err := tx.QueryContext(ctx, `SELECT id, file_path FROM symbols`)
		if err != nil {
			return nil, fmt.Errorf("scan existing symbols: %w", err)
		}
		for rows.Next() {
			var id, fp string
			if err := rows.Scan(&id, &fp); err != nil {
				rows.Close()
				return nil, err
			}
			if !cleanSet[fp] {
				validIDs[id] = true
			}
		}
		rows.Close()
	} else {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM symbols`)
		if err != nil {
			return nil, fmt.Errorf("scan existing symbols: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			validIDs[id] = true
		}
		rows.Close()
	}
	for _, sym := range symbols {
		validIDs[sym.ID] = true
	}

	// 2. Delete cleanup files (cascades to their symbols/identifiers/relationships).
	for _, p := range filesToClean {
		qp := QualifyPath(workspaceID, p)
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE qualified_path = ?`, qp)
		if err != nil {
			return nil, fmt.Errorf("delete file %s: %w", qp, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			counts.FilesCleaned++
		}
	}

	// 3. Insert files.
	now := time.Now().UTC().Format(time.RFC3339Nano)
	fileStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO files(qualified_path, workspace_id, relative_path, language, content, content_hash, size, mod_time, last_indexed)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(qualified_path) DO UPDATE SET
			language=excluded.language, content=excluded.content, content_hash=excluded.content_hash,
			size=excluded.size, mod_time=excluded.mod_time, last_indexed=excluded.last_indexed`)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		qp := QualifyPath(workspaceID, f.RelativePath)
		if _, err := fileStmt.ExecContext(ctx, qp, workspaceID, f.RelativePath, f.Language, f.Content, f.ContentHash,
			f.Size, f.ModTime.UTC().Format(time.RFC3339Nano), now); err != nil {
			fileStmt.Close()
			return nil, fmt.Errorf("insert file %s: %w", qp, err)
		}
		counts.FilesAdded++
	}
	fileStmt.Close()

	// 4. Insert symbols (parents first), identifiers, relationships.
	symAdded, symSkipped, err := insertSymbols(ctx, tx, symbols, codeContext, validIDs)
	if err != nil {
		return nil, fmt.Errorf("insert symbols: %w", err)
	}
	counts.SymbolsAdded, counts.SymbolsSkipped = symAdded, symSkipped

	idAdded, idSkipped, err := insertIdentifiers(ctx, tx, identifiers, validIDs)
	if err != nil {
		return nil, fmt.Errorf("insert identifiers: %w", err)
	}
	counts.IdentifiersAdded, counts.IdentifiersSkipped = idAdded, idSkipped

	relAdded, relSkipped, err := insertRelationships(ctx, tx, relationships, validIDs)
	if err != nil {
		return nil, fmt.Errorf("insert relationships: %w", err)
	}
	counts.RelationshipsAdded, counts.RelationshipsSkipped = relAdded, relSkipped

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return counts, nil
}

func (s *SQLiteStore) UpdateReferenceCounts(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `UPDATE symbols SET reference_count = 0 WHERE workspace_id = ? OR ? = ''`, workspaceID, workspaceID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE symbols SET reference_count = (
			SELECT COUNT(*) FROM relationships WHERE relationships.to_symbol_id = symbols.id
		) WHERE workspace_id = ? OR ? = ''`, workspaceID, workspaceID); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- state / registry ----

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return v, err
}

func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_state(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (s *SQLiteStore) ClearWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE workspace_id = ?`, workspaceID); err != nil {
		return err
	}
	// Orphan-clean reachability rows whose endpoints no longer exist.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM reachability WHERE source_id NOT IN (SELECT id FROM symbols) OR target_id NOT IN (SELECT id FROM symbols)`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountFiles(ctx context.Context, workspaceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE workspace_id = ? OR ? = ''`, workspaceID, workspaceID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountSymbols(ctx context.Context, workspaceID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols WHERE workspace_id = ? OR ? = ''`, workspaceID, workspaceID).Scan(&n)
	return n, err
}

func (s *SQLiteStore) GetFileHashes(ctx context.Context, workspaceID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT qualified_path, content_hash FROM files WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, err
		}
		out[p] = h
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetFileLastIndexed(ctx context.Context, workspaceID string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `SELECT qualified_path, last_indexed FROM files WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var p, ts string
		if err := rows.Scan(&p, &ts); err != nil {
			return nil, err
		}
		t, _ := time.Parse(time.RFC3339Nano, ts)
		out[p] = t
	}
	return out, rows.Err()
}

var _ RelationalStore = (*SQLiteStore)(nil)
