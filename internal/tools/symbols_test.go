package tools

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"context"
)

const sampleGoSource = `package sample

// Greet says hello.
func Greet(name string) string {
	return "hello " + name
}

func helper() int {
	return 1
}
`

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetSymbols_ParsesLiveFileAndEnrichesUsageTier(t *testing.T) {
	// Given a small Go source file on disk
	path := writeTempFile(t, "sample.go", sampleGoSource)
	s := newTestRelStore(t)
	tl := &Tools{Rel: s}

	// When listing its top-level symbols
	infos, err := tl.GetSymbols(context.Background(), "", path, BodyNone, 0, "", 0)

	// Then both functions are returned with a usage tier set
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(infos), 2)
	names := map[string]bool{}
	for _, info := range infos {
		names[info.Symbol.Name] = true
		assert.NotEmpty(t, info.UsageFrequency)
	}
	assert.True(t, names["Greet"])
	assert.True(t, names["helper"])
}

func TestGetSymbols_BodyAllIncludesSourceText(t *testing.T) {
	// Given the same sample file
	path := writeTempFile(t, "sample.go", sampleGoSource)
	s := newTestRelStore(t)
	tl := &Tools{Rel: s}

	// When requesting full bodies
	infos, err := tl.GetSymbols(context.Background(), "", path, BodyAll, 0, "Greet", 0)

	// Then the matching symbol's body is populated
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Contains(t, infos[0].Body, "hello")
}

func TestUsageTier_Bounds(t *testing.T) {
	assert.Equal(t, "none", usageTier(0))
	assert.Equal(t, "low", usageTier(1))
	assert.Equal(t, "medium", usageTier(usageLowFloor))
	assert.Equal(t, "high", usageTier(usageMediumFloor))
	assert.Equal(t, "very_high", usageTier(usageHighFloor))
}

func TestDocTier_Bounds(t *testing.T) {
	assert.Equal(t, "poor", docTier(0))
	assert.Equal(t, "good", docTier(docGoodFloor))
	assert.Equal(t, "excellent", docTier(docExcellentFloor))
}
