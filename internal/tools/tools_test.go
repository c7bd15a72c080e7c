package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kodewright/miller/internal/store"
)

const testWorkspace = "ws1"

func newTestRelStore(t *testing.T) store.RelationalStore {
	t.Helper()
	s, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addSymbol(t *testing.T, s store.RelationalStore, sym *store.Symbol) {
	t.Helper()
	if sym.WorkspaceID == "" {
		sym.WorkspaceID = testWorkspace
	}
	_, err := s.AddSymbolsBatch(context.Background(), []*store.Symbol{sym}, nil)
	require.NoError(t, err)
}

func addRelationship(t *testing.T, s store.RelationalStore, id, from, to string, kind store.RelationshipKind) {
	t.Helper()
	_, err := s.AddRelationshipsBatch(context.Background(), []*store.Relationship{
		{ID: id, FromSymbolID: from, ToSymbolID: to, Kind: kind, WorkspaceID: testWorkspace},
	})
	require.NoError(t, err)
}

func addIdentifier(t *testing.T, s store.RelationalStore, id *store.Identifier) {
	t.Helper()
	if id.WorkspaceID == "" {
		id.WorkspaceID = testWorkspace
	}
	_, err := s.AddIdentifiersBatch(context.Background(), []*store.Identifier{id})
	require.NoError(t, err)
}
