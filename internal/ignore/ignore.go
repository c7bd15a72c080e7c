// Package ignore builds the combined pathspec used during workspace
// discovery: built-in defaults, the workspace's .gitignore, and an optional
// auto-generated .millerignore for vendor/minified-heavy trees. Pattern matching itself is delegated to internal/gitignore.Matcher;
// this package adds vendor-detection and the matcher composition on top.
package ignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kodewright/miller/internal/gitignore"
)

// defaultPatterns are always applied, regardless of what the workspace's own
// ignore files contain: VCS metadata, common build output, and caches.
var defaultPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"dist/",
	"build/",
	"target/",
	"out/",
	".cache/",
	"__pycache__/",
	"*.pyc",
	".DS_Store",
	"*.min.js",
	"*.min.css",
	".miller/",
}

// vendorDirNames are directory basenames that, by convention across
// ecosystems, hold third-party or generated code rather than project source.
var vendorDirNames = map[string]bool{
	"vendor":       true,
	"vendors":      true,
	"third_party":  true,
	"thirdparty":   true,
	"node_modules": true,
	"bower_components": true,
	"packages":     true,
	"deps":         true,
	".venv":        true,
	"venv":         true,
	"site-packages": true,
}

// vendorFilePrefixes match generated-bundle filenames even when the
// directory itself isn't named like a vendor directory.
var vendorFilePrefixes = []string{
	"jquery", "bootstrap", "lodash", "moment", "react", "vue", "angular",
	"webpack", "bundle", "polyfill", "vendor",
}

const (
	// minifiedCodeFileThreshold is the absolute count of minified files in a
	// directory above which it is considered vendor-like regardless of ratio.
	minifiedCodeFileThreshold = 10
	// minifiedRatioThreshold is the share of files in a directory that must
	// be minified for the directory to be flagged on ratio alone.
	minifiedRatioThreshold = 0.5
	// vendorFileCountThreshold is the count of vendor-prefixed filenames in a
	// directory above which it is flagged independent of minification.
	vendorFileCountThreshold = 5

	millerignoreName = ".millerignore"
	gitignoreName    = ".gitignore"
)

// dirStats accumulates per-directory file-name signals during discovery, used
// by DetectVendorDirs to decide which directories look auto-generated.
type dirStats struct {
	total           int
	minified        int
	vendorPrefixed  int
}

// IsMinifiedName reports whether a filename looks like a minified build
// artifact (".min.js", "-min.css", heavily compressed single-line bundles
// named accordingly).
func IsMinifiedName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, ".min.") || strings.HasSuffix(lower, "-min.js") || strings.HasSuffix(lower, "-min.css")
}

// IsVendorPrefixedName reports whether name starts with a well-known
// third-party bundle prefix.
func IsVendorPrefixedName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range vendorFilePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// DetectVendorDirs walks root (without applying any ignore filter — that's
// the point, this runs before one exists) and returns relative directory
// paths that look vendor/generated by name, by minification ratio, or by
// vendor-prefixed file count. Symlinks are not followed.
func DetectVendorDirs(root string) ([]string, error) {
	stats := make(map[string]*dirStats)
	byName := make(map[string]bool)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan; skip unreadable entries
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if info.Mode()&os.ModeSymlink != 0 {
				return filepath.SkipDir
			}
			if vendorDirNames[strings.ToLower(info.Name())] {
				byName[rel] = true
			}
			stats[rel] = &dirStats{}
			return nil
		}

		dir := filepath.ToSlash(filepath.Dir(rel))
		st := stats[dir]
		if st == nil {
			st = &dirStats{}
			stats[dir] = st
		}
		st.total++
		if IsMinifiedName(info.Name()) {
			st.minified++
		}
		if IsVendorPrefixedName(info.Name()) {
			st.vendorPrefixed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	var flagged []string
	for dir := range byName {
		flagged = append(flagged, dir)
	}
	for dir, st := range stats {
		if byName[dir] || st.total == 0 {
			continue
		}
		minifiedHeavy := st.minified > minifiedCodeFileThreshold ||
			float64(st.minified)/float64(st.total) > minifiedRatioThreshold
		vendorHeavy := st.vendorPrefixed > vendorFileCountThreshold
		if minifiedHeavy || vendorHeavy {
			flagged = append(flagged, dir)
		}
	}
	return flagged, nil
}

// EnsureMillerignore writes "<root>/.millerignore" listing dirs (already
// relative, slash-separated) if it doesn't already exist and dirs is
// non-empty. The header documents that the file was auto-generated, so
// the auto-detection stays visible to the user.
func EnsureMillerignore(root string, dirs []string) (bool, error) {
	path := filepath.Join(root, millerignoreName)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if len(dirs) == 0 {
		return false, nil
	}

	var b strings.Builder
	b.WriteString("# Auto-generated by miller: these directories were detected as\n")
	b.WriteString("# vendor/third-party code or minified build output and are excluded\n")
	b.WriteString("# from indexing. Edit or delete this file to change that.\n")
	for _, d := range dirs {
		fmt.Fprintf(&b, "%s/\n", strings.TrimSuffix(d, "/"))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// Matcher is the combined pathspec for one workspace: built-in defaults,
// .gitignore, and .millerignore, all evaluated by internal/gitignore.
type Matcher struct {
	m *gitignore.Matcher
}

// Load builds a Matcher for root, running vendor auto-detection and writing
// .millerignore on first use when no custom-ignore file exists yet.
// Safe to call again after a config change to rebuild.
func Load(root string) (*Matcher, error) {
	m := gitignore.New()
	for _, p := range defaultPatterns {
		m.AddPattern(p)
	}

	if err := addPatternsFromFile(m, filepath.Join(root, gitignoreName)); err != nil {
		return nil, err
	}

	millerignorePath := filepath.Join(root, millerignoreName)
	if _, err := os.Stat(millerignorePath); os.IsNotExist(err) {
		dirs, detectErr := DetectVendorDirs(root)
		if detectErr != nil {
			return nil, detectErr
		}
		if _, writeErr := EnsureMillerignore(root, dirs); writeErr != nil {
			return nil, writeErr
		}
	}
	if err := addPatternsFromFile(m, millerignorePath); err != nil {
		return nil, err
	}

	return &Matcher{m: m}, nil
}

func addPatternsFromFile(m *gitignore.Matcher, path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// Match reports whether relPath (workspace-relative, either separator style)
// should be excluded from indexing/watching.
func (m *Matcher) Match(relPath string, isDir bool) bool {
	return m.m.Match(relPath, isDir)
}
