package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/store"
	"github.com/kodewright/miller/internal/workspace"
)

func TestFastLookup_ExactMatch(t *testing.T) {
	// Given a symbol named ParseConfig
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "sym1", Name: "ParseConfig", Kind: store.KindFunction, Language: "go",
		FilePath: workspace.QualifiedPath(testWorkspace, "config.go")})
	tl := &Tools{Rel: s}

	// When looking it up by exact name
	results, err := tl.FastLookup(context.Background(), testWorkspace, []string{"ParseConfig"}, "", false, 0)

	// Then it resolves exactly
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, LookupExact, results[0].MatchType)
	assert.Equal(t, "sym1", results[0].Symbol.ID)
}

func TestFastLookup_CaseInsensitiveFuzzyFallback(t *testing.T) {
	// Given a symbol named ParseConfig and a lowercase query
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "sym1", Name: "ParseConfig", Kind: store.KindFunction, Language: "go",
		FilePath: workspace.QualifiedPath(testWorkspace, "config.go")})
	tl := &Tools{Rel: s}

	// When looking it up with the wrong case
	results, err := tl.FastLookup(context.Background(), testWorkspace, []string{"parseconfig"}, "", false, 0)

	// Then the case-insensitive fold still resolves it
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "sym1", results[0].Symbol.ID)
}

func TestFastLookup_UnknownName_ReturnsNotFound(t *testing.T) {
	// Given an empty store
	s := newTestRelStore(t)
	tl := &Tools{Rel: s}

	// When looking up a name that does not exist anywhere
	results, err := tl.FastLookup(context.Background(), testWorkspace, []string{"NoSuchThing"}, "", false, 0)

	// Then it reports not_found rather than erroring
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, LookupNotFound, results[0].MatchType)
	assert.Nil(t, results[0].Symbol)
}
