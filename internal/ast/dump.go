package ast

import (
	"fmt"
	"strings"
)

// Dump renders n as an indented tree, one node per line.
func Dump(n Node) string {
	var b strings.Builder
	dump(&b, n, 0)
	return b.String()
}

func dump(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case nil:
		fmt.Fprintf(b, "%s<nil>\n", indent)
	case *Atomic:
		fmt.Fprintf(b, "%sAtomic kind=%s identifier=%q", indent, n.Kind, n.Identifier)
		if n.IsWildcard() {
			fmt.Fprintf(b, " prefix=%q", n.Prefix())
		}
		b.WriteByte('\n')
	case *Relation:
		fmt.Fprintf(b, "%sRelation\n", indent)
		dump(b, n.Left, depth+1)
		dump(b, n.Right, depth+1)
	case *Logical:
		fmt.Fprintf(b, "%sLogical %s\n", indent, n.Op)
		for _, o := range n.Operands {
			dump(b, o, depth+1)
		}
	case *Comparison:
		fmt.Fprintf(b, "%sComparison %s %s %s\n", indent, n.Attribute, n.Op, formatNumber(n.Value))
		if n.Target != nil {
			dump(b, n.Target, depth+1)
		}
	case *Similarity:
		fmt.Fprintf(b, "%sSimilarity distance=%s", indent, formatNumber(n.Distance))
		if n.TopK > 0 {
			fmt.Fprintf(b, " top_k=%d", n.TopK)
		}
		b.WriteByte('\n')
		dump(b, n.Target, depth+1)
	case *Optimize:
		fmt.Fprintf(b, "%sOptimize %s %s\n", indent, n.Objective, n.Attribute)
		for _, c := range n.Constraints {
			dump(b, c, depth+1)
		}
	}
}
