package trace

import (
	"fmt"
	"strings"
)

// FormatTree renders a TracePath as an ASCII tree with "├─"/"└─"/"│  "
// connectors and a "[Kind]→" label between parent and child.
func FormatTree(tp *TracePath) string {
	var b strings.Builder
	writeNode(&b, tp.Root, "", true, true)
	if tp.Truncated {
		fmt.Fprintf(&b, "\n(truncated at max_depth=%d)\n", tp.MaxDepthReached)
	}
	return b.String()
}

func writeNode(b *strings.Builder, n *Node, prefix string, isRoot, isLast bool) {
	if isRoot {
		fmt.Fprintf(b, "%s (%s, %s)\n", n.Name, n.Kind, n.Language)
	} else {
		connector := "├─"
		if isLast {
			connector = "└─"
		}
		label := n.RelationshipKind
		if label == "" {
			label = "Call"
		}
		fmt.Fprintf(b, "%s%s[%s]→ %s (%s, %s)\n", prefix, connector, label, n.Name, n.Kind, n.Language)
	}

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "   "
		} else {
			childPrefix += "│  "
		}
	}
	for i, child := range n.Children {
		writeNode(b, child, childPrefix, false, i == len(n.Children)-1)
	}
}
