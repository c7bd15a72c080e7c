package extract

import (
	"strings"

	"github.com/kodewright/miller/internal/chunk"
	"github.com/kodewright/miller/internal/store"
)

// pendingRelation defers target resolution until the whole file has been
// walked, since a call or heritage clause may reference a symbol defined
// later in the same file.
type pendingRelation struct {
	fromSymbolID string
	targetName   string
	kind         store.RelationshipKind
	line         int
}

// walker performs one depth-first pass over a parsed file, building symbols,
// identifiers and (deferred) relationships as it goes.
type walker struct {
	filePath string
	language string
	source   []byte
	config   *chunk.LanguageConfig

	symbols       []*store.Symbol
	identifiers   []*store.Identifier
	relationships []*store.Relationship

	byName  map[string]*store.Symbol // last definition wins; same-file resolution only
	pending []pendingRelation
}

// identifierLeafTypes are node types treated as a symbol "use" when
// encountered outside of a definition's own name position.
var identifierLeafTypes = map[string]bool{
	"identifier":         true,
	"field_identifier":   true,
	"type_identifier":    true,
	"property_identifier": true,
	"shorthand_property_identifier": true,
}

func (w *walker) walk(n *chunk.Node, parentID string) {
	if n == nil {
		return
	}

	current := parentID
	if sym := w.extractSymbol(n, parentID); sym != nil {
		w.symbols = append(w.symbols, sym)
		w.byName[sym.Name] = sym
		current = sym.ID
		if w.language == "python" && sym.Kind == store.KindClass {
			w.collectPythonBases(n, current)
		}
	} else {
		w.collectIdentifier(n, parentID)
	}

	w.collectCall(n, current)
	w.collectHeritage(n, current)

	for _, child := range n.Children {
		w.walk(child, current)
	}
}

func (w *walker) collectIdentifier(n *chunk.Node, containingID string) {
	if len(n.Children) != 0 || !identifierLeafTypes[n.Type] {
		return
	}
	name := n.GetContent(w.source)
	if name == "" {
		return
	}
	w.identifiers = append(w.identifiers, &store.Identifier{
		ID:                 symbolID(w.filePath, "ident", name, int(n.StartByte)),
		Name:               name,
		Kind:               store.KindReference,
		Language:           w.language,
		FilePath:           w.filePath,
		StartLine:          int(n.StartPoint.Row) + 1,
		StartColumn:        int(n.StartPoint.Column),
		ContainingSymbolID: containingID,
		Confidence:         0.6,
		WorkspaceID:        workspaceIDOf(w.filePath),
	})
}

// callNodeTypes is the set of call-expression node types across languages;
// collectCall takes the callee name from the node's first child.
var callNodeTypes = map[string]bool{
	"call_expression": true, // go, javascript, typescript
	"call":            true, // python
}

func (w *walker) collectCall(n *chunk.Node, enclosingID string) {
	if !callNodeTypes[n.Type] || enclosingID == "" || len(n.Children) == 0 {
		return
	}
	callee := n.Children[0]
	name := calleeName(callee, w.source)
	if name == "" {
		return
	}
	w.pending = append(w.pending, pendingRelation{
		fromSymbolID: enclosingID,
		targetName:   name,
		kind:         store.RelCall,
		line:         int(n.StartPoint.Row) + 1,
	})
}

// calleeName extracts the rightmost identifier of a call target, so
// `pkg.Foo()` and `obj.method()` resolve on "Foo"/"method" rather than the
// receiver.
func calleeName(n *chunk.Node, source []byte) string {
	switch n.Type {
	case "identifier", "field_identifier", "property_identifier":
		return n.GetContent(source)
	case "selector_expression", "member_expression", "attribute":
		if len(n.Children) > 0 {
			return calleeName(n.Children[len(n.Children)-1], source)
		}
	}
	// Fallback: last identifier-like leaf under this node.
	var last string
	n.Walk(func(child *chunk.Node) bool {
		if identifierLeafTypes[child.Type] && len(child.Children) == 0 {
			last = child.GetContent(source)
		}
		return true
	})
	return last
}

// collectHeritage records Extends/Implements relations from a
// javascript/typescript class_heritage node.
func (w *walker) collectHeritage(n *chunk.Node, classSymbolID string) {
	if classSymbolID == "" {
		return
	}
	switch {
	case n.Type == "class_heritage": // javascript/typescript
		for _, child := range n.Children {
			switch child.Type {
			case "extends_clause":
				for _, id := range child.FindAllByType("identifier") {
					w.pending = append(w.pending, pendingRelation{fromSymbolID: classSymbolID, targetName: id.GetContent(w.source), kind: store.RelExtends, line: int(child.StartPoint.Row) + 1})
				}
			case "implements_clause":
				for _, id := range child.FindAllByType("type_identifier") {
					w.pending = append(w.pending, pendingRelation{fromSymbolID: classSymbolID, targetName: id.GetContent(w.source), kind: store.RelImplements, line: int(child.StartPoint.Row) + 1})
				}
			}
		}
	}
}

// collectPythonBases records "class Foo(Base1, Base2):" base classes as
// Extends relations. Called once, directly on a class_definition node, so
// it never confuses a method call's argument_list for a base-class list.
func (w *walker) collectPythonBases(classNode *chunk.Node, classSymbolID string) {
	bases := classNode.FindChildByType("argument_list")
	if bases == nil {
		return
	}
	for _, id := range bases.FindChildrenByType("identifier") {
		w.pending = append(w.pending, pendingRelation{fromSymbolID: classSymbolID, targetName: id.GetContent(w.source), kind: store.RelExtends, line: int(bases.StartPoint.Row) + 1})
	}
}

// resolveCalls resolves deferred call/heritage targets against symbols
// defined anywhere in this same file. Cross-file resolution is intentionally
// left to the Trace Engine's naming-variant and vector-assisted matching —
// the adapter only commits to what a single file can prove.
func (w *walker) resolveCalls() {
	for _, id := range w.identifiers {
		if id.TargetSymbolID != "" {
			continue
		}
		if sym, ok := w.byName[id.Name]; ok {
			id.TargetSymbolID = sym.ID
		}
	}
	for _, p := range w.pending {
		target, ok := w.byName[p.targetName]
		if !ok {
			continue
		}
		w.relationships = append(w.relationships, &store.Relationship{
			ID:           symbolID(w.filePath, string(p.kind), p.fromSymbolID+"->"+target.ID, p.line),
			FromSymbolID: p.fromSymbolID,
			ToSymbolID:   target.ID,
			Kind:         p.kind,
			FilePath:     w.filePath,
			Line:         p.line,
			Confidence:   0.8,
			WorkspaceID:  workspaceIDOf(w.filePath),
		})
	}
}

func workspaceIDOf(qualifiedPath string) string {
	if i := strings.IndexByte(qualifiedPath, ':'); i >= 0 {
		return qualifiedPath[:i]
	}
	return ""
}
