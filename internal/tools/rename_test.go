package tools

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/store"
)

func TestRenameSymbol_DryRunDoesNotTouchDisk(t *testing.T) {
	// Given a file containing a "get" call and a symbol definition pointing at it
	path := writeTempFile(t, "src.go", "package p\n\nfunc get() int { return 1 }\n\nfunc use() int { return get() }\n")
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "get", Name: "get", Kind: store.KindFunction, Language: "go", FilePath: path})
	addIdentifier(t, s, &store.Identifier{ID: "id1", Name: "get", TargetSymbolID: "get", FilePath: path, StartLine: 5})
	tl := &Tools{Rel: s}
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// When renaming with dry_run true (the default)
	result, err := tl.RenameSymbol(context.Background(), testWorkspace, "get", "fetch", "", true, false, nil)

	// Then a preview is produced but the file on disk is untouched
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	require.NotEmpty(t, result.Changes)
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRenameSymbol_AppliesWordBoundarySafeReplacement(t *testing.T) {
	// Given a file where "get" appears both standalone and inside "get_user"
	path := writeTempFile(t, "src.go", "package p\n\nfunc get() int { return 1 }\n\nfunc get_user() int { return get() }\n")
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "get", Name: "get", Kind: store.KindFunction, Language: "go", FilePath: path})
	addIdentifier(t, s, &store.Identifier{ID: "id1", Name: "get", TargetSymbolID: "get", FilePath: path, StartLine: 5})
	tl := &Tools{Rel: s}

	// When applying the rename
	_, err := tl.RenameSymbol(context.Background(), testWorkspace, "get", "fetch", "", false, false, nil)
	require.NoError(t, err)

	// Then only the standalone identifier is renamed, not the get_user substring
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "func fetch() int")
	assert.Contains(t, text, "func get_user() int { return fetch() }")
}

func TestRenameSymbol_RejectsInvalidIdentifier(t *testing.T) {
	// Given a resolvable symbol
	path := writeTempFile(t, "src.go", "package p\n\nfunc get() int { return 1 }\n")
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "get", Name: "get", Kind: store.KindFunction, Language: "go", FilePath: path})
	tl := &Tools{Rel: s}

	// When renaming to a name that is not a valid identifier
	_, err := tl.RenameSymbol(context.Background(), testWorkspace, "get", "2bad-name", "", true, false, nil)

	// Then it is rejected before any reference lookup matters
	assert.Error(t, err)
}
