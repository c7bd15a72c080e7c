package mcp

import (
	"context"
	"testing"

	"github.com/kodewright/miller/internal/store"
)

// These tests exercise the tool-input defaulting and validation rules
// declared in tools.go's jsonschema tags, via the handlers that consume
// them, rather than the schema tags themselves.

func newTestSymbol(id, name string) *store.Symbol {
	return &store.Symbol{ID: id, Name: name, Kind: "function", FilePath: "a.go", Language: "go"}
}

func TestFastSearchInput_DefaultsApplied(t *testing.T) {
	srv, rel, vec, _ := newTestServer(t)
	rel.addSymbol(newTestSymbol("sym1", "Foo"))
	vec.results = []store.SearchResult{{ID: "sym1", Name: "Foo", Kind: "function", Score: 0.9}}

	_, out, err := srv.handleFastSearch(context.Background(), nil, FastSearchInput{Query: "Foo"})
	if err != nil {
		t.Fatalf("handleFastSearch: %v", err)
	}
	if out.Method == "" {
		t.Error("expected a resolved search method")
	}
}

func TestRenameSymbolInput_DryRunPointerSemantics(t *testing.T) {
	srv, rel, _, _ := newTestServer(t)
	rel.addSymbol(newTestSymbol("s1", "OldName"))

	falseVal := false
	_, out, err := srv.handleRenameSymbol(context.Background(), nil, RenameSymbolInput{
		OldName: "OldName", NewName: "NewName", DryRun: &falseVal,
	})
	if err != nil {
		t.Fatalf("handleRenameSymbol: %v", err)
	}
	if out.DryRun {
		t.Error("expected dry_run=false to be honored, not defaulted")
	}
}

func TestManageWorkspaceInput_TypeDefaultsToReference(t *testing.T) {
	srv, _, _, wm := newTestServer(t)
	_, out, err := srv.handleManageWorkspace(context.Background(), nil, ManageWorkspaceInput{
		Operation: "add", Path: "/other", Name: "other",
	})
	if err != nil {
		t.Fatalf("handleManageWorkspace: %v", err)
	}
	if out.Workspace == nil {
		t.Fatal("expected a workspace in the output")
	}
	if out.Workspace.Type != "reference" {
		t.Errorf("Type = %q, want reference", out.Workspace.Type)
	}
	if len(wm.workspaces) != 2 {
		t.Errorf("got %d workspaces, want 2", len(wm.workspaces))
	}
}
