// Package workspace manages the set of indexed roots: slug assignment,
// qualified-path helpers, and the on-disk registry.json describing every
// known workspace.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kodewright/miller/internal/store"
)

var slugInvalid = regexp.MustCompile(`[^a-z0-9-]+`)

// SlugID derives a stable workspace id from a root path: a lowercase
// slug of its basename plus a short content-address suffix so two
// differently-located directories that happen to share a basename never
// collide.
func SlugID(rootPath string) string {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		abs = rootPath
	}
	base := strings.ToLower(filepath.Base(abs))
	base = slugInvalid.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "workspace"
	}
	sum := sha256.Sum256([]byte(abs))
	suffix := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s-%s", base, suffix)
}

// QualifiedPath builds "{workspace_id}:{relative_unix_path}".
func QualifiedPath(workspaceID, relativePath string) string {
	return store.QualifyPath(workspaceID, relativePath)
}

// registryFile is the on-disk shape of registry.json.
type registryFile struct {
	Version    int                   `json:"version"`
	Workspaces map[string]*entryJSON `json:"workspaces"`
}

type entryJSON struct {
	Name        string     `json:"name"`
	RootPath    string     `json:"root_path"`
	Type        string     `json:"type"`
	CreatedAt   time.Time  `json:"created_at"`
	LastIndexed *time.Time `json:"last_indexed,omitempty"`
}

// Registry persists the workspace list under "<dataDir>/registry.json",
// guarded by an flock-based file lock so concurrent miller processes
// (the MCP server and a CLI `miller index` run, say) never interleave
// writes.
type Registry struct {
	mu      sync.Mutex
	path    string
	lock    *flock.Flock
	entries map[string]*store.Workspace
}

func Open(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dataDir, "registry.json")
	r := &Registry{
		path:    path,
		lock:    flock.New(path + ".lock"),
		entries: make(map[string]*store.Workspace),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}
	var rf registryFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse registry: %w", err)
	}
	for id, e := range rf.Workspaces {
		r.entries[id] = &store.Workspace{
			ID:          id,
			Name:        e.Name,
			RootPath:    e.RootPath,
			Type:        store.WorkspaceType(e.Type),
			CreatedAt:   e.CreatedAt,
			LastIndexed: e.LastIndexed,
		}
	}
	return nil
}

// Add registers a new workspace, or returns the existing one if rootPath
// is already registered.
func (r *Registry) Add(rootPath, name string, wtype store.WorkspaceType) (*store.Workspace, error) {
	abs, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	id := SlugID(abs)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		return existing, nil
	}
	ws := &store.Workspace{
		ID:        id,
		Name:      name,
		RootPath:  abs,
		Type:      wtype,
		CreatedAt: time.Now().UTC(),
	}
	r.entries[id] = ws
	return ws, r.persist()
}

func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	return r.persist()
}

func (r *Registry) Get(id string) (*store.Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.entries[id]
	return ws, ok
}

func (r *Registry) List() []*store.Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*store.Workspace, 0, len(r.entries))
	for _, ws := range r.entries {
		out = append(out, ws)
	}
	return out
}

func (r *Registry) MarkIndexed(id string, when time.Time, fileCount, symbolCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("unknown workspace %q", id)
	}
	ws.LastIndexed = &when
	ws.FileCount = fileCount
	ws.SymbolCount = symbolCount
	return r.persist()
}

// persist writes registry.json atomically: lock, write to a temp file in
// the same directory, fsync, rename over the target, unlock. The
// write-temp-fsync-rename sequence guarantees a reader never observes a
// half-written file.
func (r *Registry) persist() error {
	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	defer r.lock.Unlock()

	rf := registryFile{Version: 1, Workspaces: make(map[string]*entryJSON, len(r.entries))}
	for id, ws := range r.entries {
		rf.Workspaces[id] = &entryJSON{
			Name: ws.Name, RootPath: ws.RootPath, Type: string(ws.Type),
			CreatedAt: ws.CreatedAt, LastIndexed: ws.LastIndexed,
		}
	}
	data, err := json.MarshalIndent(rf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".registry-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename registry file: %w", err)
	}
	return nil
}
