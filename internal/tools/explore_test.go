package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/store"
)

func TestFastExplore_Types_GroupsImplementsAndExtends(t *testing.T) {
	// Given an interface implemented by one class and extended by another
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "iface", Name: "Reader", Kind: store.KindInterface, Language: "go", FilePath: "r.go"})
	addSymbol(t, s, &store.Symbol{ID: "impl", Name: "FileReader", Kind: store.KindStruct, Language: "go", FilePath: "f.go"})
	addSymbol(t, s, &store.Symbol{ID: "child", Name: "BufferedReader", Kind: store.KindInterface, Language: "go", FilePath: "b.go"})
	addRelationship(t, s, "r1", "impl", "iface", store.RelImplements)
	addRelationship(t, s, "r2", "child", "iface", store.RelExtends)
	tl := &Tools{Rel: s}

	// When exploring types for Reader
	rel, _, err := tl.FastExplore(context.Background(), testWorkspace, ExploreTypes, "Reader", "")

	// Then FileReader shows up as an implementation and BufferedReader as a child
	require.NoError(t, err)
	require.Len(t, rel.Implementations, 1)
	assert.Equal(t, "FileReader", rel.Implementations[0].Name)
	require.Len(t, rel.Children, 1)
	assert.Equal(t, "BufferedReader", rel.Children[0].Name)
}

func TestFastExplore_Similar_RequiresEmbedder(t *testing.T) {
	// Given a tool set with no embedder configured
	s := newTestRelStore(t)
	addSymbol(t, s, &store.Symbol{ID: "sym", Name: "Parse", Kind: store.KindFunction, Language: "go", FilePath: "p.go"})
	tl := &Tools{Rel: s}

	// When exploring similar symbols
	_, _, err := tl.FastExplore(context.Background(), testWorkspace, ExploreSimilar, "", "Parse")

	// Then it reports the missing dependency instead of panicking
	assert.Error(t, err)
}
