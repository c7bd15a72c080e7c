package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/kodewright/miller/internal/store"
)

// These tests check that the server degrades gracefully — returns errors,
// never panics — when optional collaborators (embedder, resolver,
// workspace manager) are nil or return errors.

func TestServer_NilEmbedder_CreatesSuccessfully(t *testing.T) {
	rel := newFakeRelationalStore()
	vec := &fakeVectorStore{}
	srv, err := NewServer("primary", testStores(rel, vec), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if srv == nil {
		t.Fatal("expected non-nil server")
	}
}

func TestServer_NilEmbedder_SearchStillWorks(t *testing.T) {
	rel := newFakeRelationalStore()
	vec := &fakeVectorStore{}
	rel.addSymbol(newTestSymbol("sym1", "Foo"))
	vec.results = []store.SearchResult{{ID: "sym1", Name: "Foo", Kind: "function", Score: 0.9}}

	srv, err := NewServer("primary", testStores(rel, vec), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	_, out, err := srv.handleFastSearch(context.Background(), nil, FastSearchInput{Query: "Foo", Method: "text"})
	if err != nil {
		t.Fatalf("handleFastSearch: %v", err)
	}
	if len(out.Hits) == 0 {
		t.Error("expected text search to still produce hits without an embedder")
	}
}

func TestServer_VectorStoreError_ReturnsErrorNotPanic(t *testing.T) {
	rel := newFakeRelationalStore()
	vec := &fakeVectorStore{searchErr: errors.New("index unavailable")}
	srv, err := NewServer("primary", testStores(rel, vec), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	_, _, err = srv.handleFastSearch(context.Background(), nil, FastSearchInput{Query: "Foo", Method: "text"})
	if err == nil {
		t.Fatal("expected error to propagate from a failing vector store")
	}
}

func TestServer_NilWorkspaceManager_ManageWorkspaceFailsCleanly(t *testing.T) {
	rel := newFakeRelationalStore()
	vec := &fakeVectorStore{}
	srv, err := NewServer("primary", testStores(rel, vec), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	_, _, err = srv.handleManageWorkspace(context.Background(), nil, ManageWorkspaceInput{Operation: "list"})
	if err == nil {
		t.Fatal("expected error for manage_workspace with no workspace manager configured")
	}
}

func TestServer_NilResolver_UnknownWorkspaceReturnsError(t *testing.T) {
	rel := newFakeRelationalStore()
	vec := &fakeVectorStore{}
	srv, err := NewServer("primary", testStores(rel, vec), nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	_, _, err = srv.handleFastLookup(context.Background(), nil, FastLookupInput{
		Names: []string{"Foo"}, Workspace: "unregistered",
	})
	if err == nil {
		t.Fatal("expected error resolving an unregistered workspace with no resolver")
	}
}

func TestWorkspaceReindexer_NilManagerIsNoOp(t *testing.T) {
	r := workspaceReindexer{mgr: nil, workspaceID: "primary"}
	if err := r.ReindexFile(context.Background(), "a.go"); err != nil {
		t.Errorf("expected nil manager reindex to be a no-op, got %v", err)
	}
}
