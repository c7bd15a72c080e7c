package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ftsIndex is the textual-search component of the Vector Store's "text"
// method: SQLite FTS5 over code-tokenized content, scored with BM25,
// giving concurrent multi-process access via WAL mode.
type ftsIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

func newFTSIndex(path string) (*ftsIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create fts dir: %w", err)
		}
		if err := validateFTSIntegrity(path); err != nil {
			slog.Warn("fts_index_corrupted", slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("fts index corrupted at %s and cannot remove: %w (original: %v)", path, rmErr, err)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")
			slog.Info("fts_index_cleared", slog.String("path", path), slog.String("reason", "corruption detected, reindex required"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open fts database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	idx := &ftsIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init fts schema: %w", err)
	}
	return idx, nil
}

func validateFTSIntegrity(path string) error {
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
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='fts_content'`).Scan(&count); err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}
	return nil
}

func (f *ftsIndex) initSchema() error {
	_, err := f.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
			doc_id UNINDEXED,
			content,
			tokenize='unicode61'
		);
		CREATE TABLE IF NOT EXISTS doc_ids (doc_id TEXT PRIMARY KEY);
	`)
	return err
}

// index upserts the textual content of a batch of symbols: the name,
// signature, doc comment and code context concatenated and code-tokenized
// so camelCase/snake_case identifiers split into searchable words.
func (f *ftsIndex) index(ctx context.Context, rows []VectorRow) error {
	if len(rows) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fts index is closed")
	}
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	del, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return err
	}
	defer del.Close()
	ins, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	trackID, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return err
	}
	defer trackID.Close()

	for _, r := range rows {
		text := strings.Join([]string{r.Name, r.Signature, r.DocComment, r.CodeContext}, " ")
		tokens := TokenizeCode(text)
		content := strings.Join(tokens, " ")
		if _, err := del.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("delete existing fts row %s: %w", r.ID, err)
		}
		if _, err := ins.ExecContext(ctx, r.ID, content); err != nil {
			return fmt.Errorf("insert fts row %s: %w", r.ID, err)
		}
		if _, err := trackID.ExecContext(ctx, r.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (f *ftsIndex) search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, fmt.Errorf("fts index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	tokens := TokenizeCode(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	match := strings.Join(tokens, " ")

	rows, err := f.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content WHERE content MATCH ?
		ORDER BY score LIMIT ?`, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		// bm25() returns negative values, lower (more negative) = better.
		out = append(out, SearchResult{ID: id, Score: -score})
	}
	return out, rows.Err()
}

func (f *ftsIndex) delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("fts index is closed")
	}
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	placeholders, args := inClause(docIDs)
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM fts_content WHERE doc_id IN (%s)`, placeholders), args...); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM doc_ids WHERE doc_id IN (%s)`, placeholders), args...); err != nil {
		return err
	}
	return tx.Commit()
}

func (f *ftsIndex) rebuild(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.db.ExecContext(ctx, `INSERT INTO fts_content(fts_content) VALUES('rebuild')`)
	return err
}

func (f *ftsIndex) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var n int
	_ = f.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&n)
	return n
}

func (f *ftsIndex) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	_, _ = f.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return f.db.Close()
}
