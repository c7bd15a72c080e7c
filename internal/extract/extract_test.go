package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/store"
)

const goSample = `package sample

// Greeter says hello.
type Greeter struct {
	Name string
}

// Greet returns a greeting.
func (g *Greeter) Greet() string {
	return format(g.Name)
}

func format(name string) string {
	return "hello " + name
}
`

func TestExtract_GoFile_ReturnsFunctionsAndStruct(t *testing.T) {
	// Given a Go file with a struct, a method, and a plain function
	a := New()
	defer a.Close()

	// When extracting its symbol graph
	result := a.Extract(context.Background(), "ws1:sample.go", "go", []byte(goSample))

	// Then the struct, method, and function are all found
	require.NotEmpty(t, result.Symbols)
	names := symbolNames(result.Symbols)
	assert.Contains(t, names, "Greeter")
	assert.Contains(t, names, "Greet")
	assert.Contains(t, names, "format")
}

func TestExtract_GoFile_MethodCallsResolveWithinFile(t *testing.T) {
	// Given a Go file where Greet calls format, both defined in the same file
	a := New()
	defer a.Close()

	// When extracting its symbol graph
	result := a.Extract(context.Background(), "ws1:sample.go", "go", []byte(goSample))

	// Then a Call relationship from Greet to format is recorded
	var found bool
	for _, r := range result.Relationships {
		if r.Kind == store.RelCall {
			found = true
		}
	}
	assert.True(t, found, "expected at least one resolved Call relationship, got %+v", result.Relationships)
}

func TestExtract_UnsupportedLanguage_FallsBackToFileLevel(t *testing.T) {
	// Given content in a language with no registered grammar
	a := New()
	defer a.Close()

	// When extracting
	result := a.Extract(context.Background(), "ws1:README.rst", "restructuredtext", []byte("Title\n=====\n"))

	// Then exactly one synthetic "file" symbol is produced
	require.Len(t, result.Symbols, 1)
	assert.Equal(t, store.KindFile, result.Symbols[0].Kind)
	assert.Equal(t, "README.rst", result.Symbols[0].Name)
	assert.Empty(t, result.Identifiers)
	assert.Empty(t, result.Relationships)
}

func TestFileLevelResult_TruncatesLargeContent(t *testing.T) {
	// Given content larger than the file-level cap
	big := make([]byte, fileLevelMaxBytes*2)
	for i := range big {
		big[i] = 'a'
	}

	// When building the file-level result
	result := FileLevelResult("ws1:big.bin", "", big)

	// Then the stored context is truncated to the cap
	require.Len(t, result.Symbols, 1)
	assert.LessOrEqual(t, len(result.Symbols[0].CodeContext), fileLevelMaxBytes)
}

func symbolNames(symbols []*store.Symbol) []string {
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = s.Name
	}
	return names
}
