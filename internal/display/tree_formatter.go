// Package display renders token listings as the nested scope tree a symbol
// browser shows.
package display

import (
	"fmt"
	"sort"
	"strings"

	"github.com/standardbeagle/ccindex/internal/service"
)

// GlobalScope names the root of every scope tree.
const GlobalScope = "<global>"

// TreeNode is one scope or member. Scopes that only appear as a qualifier
// of other tokens have an empty Kind.
type TreeNode struct {
	Name     string
	Kind     string
	Args     string
	File     string
	Line     int
	Depth    int
	Children []*TreeNode
}

func (n *TreeNode) child(name string) *TreeNode {
	for _, c := range n.Children {
		if c.Name == name && isContainerKind(c.Kind) {
			return c
		}
	}
	c := &TreeNode{Name: name, Depth: n.Depth + 1}
	n.Children = append(n.Children, c)
	return c
}

func isContainerKind(kind string) bool {
	switch kind {
	case "", "namespace", "class", "enum", "typedef":
		return true
	}
	return false
}

// BuildScopeTree nests tokens under their scopes. Scope paths are split on
// "::", so a token scoped "geo::Point" lands below geo and then Point.
func BuildScopeTree(tokens []service.TokenInfo) *TreeNode {
	root := &TreeNode{Name: GlobalScope}
	for _, tok := range tokens {
		parent := root
		if tok.Scope != "" {
			for _, part := range strings.Split(tok.Scope, "::") {
				if part != "" {
					parent = parent.child(part)
				}
			}
		}
		if isContainerKind(tok.Kind) {
			// Reopened namespaces and forward declarations merge.
			n := parent.child(tok.Name)
			if n.Kind == "" {
				n.Kind, n.File, n.Line = tok.Kind, tok.File, tok.Line
			}
			continue
		}
		parent.Children = append(parent.Children, &TreeNode{
			Name:  tok.Name,
			Kind:  tok.Kind,
			Args:  tok.Args,
			File:  tok.File,
			Line:  tok.Line,
			Depth: parent.Depth + 1,
		})
	}
	sortTree(root)
	return root
}

// sortTree puts scopes before members and orders each group by name.
func sortTree(n *TreeNode) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i], n.Children[j]
		ca, cb := isContainerKind(a.Kind), isContainerKind(b.Kind)
		if ca != cb {
			return ca
		}
		return a.Name < b.Name
	})
	for _, c := range n.Children {
		sortTree(c)
	}
}

// TreeFormatter formats scope trees for display
type TreeFormatter struct {
	options FormatterOptions
}

// FormatterOptions controls tree formatting
type FormatterOptions struct {
	Format    string // "text" or "compact"
	ShowLines bool   // Show file and line
	MaxDepth  int    // Maximum depth to display; 0 shows everything
	Indent    string // Indentation string
}

// NewTreeFormatter creates a new tree formatter
func NewTreeFormatter(options FormatterOptions) *TreeFormatter {
	if options.Indent == "" {
		options.Indent = "  "
	}
	return &TreeFormatter{options: options}
}

// Format formats a scope tree for display
func (tf *TreeFormatter) Format(root *TreeNode) string {
	if root == nil || len(root.Children) == 0 {
		return "No tokens"
	}
	if tf.options.Format == "compact" {
		return tf.formatCompact(root)
	}

	var sb strings.Builder
	sb.WriteString(root.Name)
	sb.WriteString("\n")
	for i, c := range root.Children {
		tf.formatNode(&sb, c, "", i == len(root.Children)-1)
	}
	return sb.String()
}

// formatNode recursively formats a tree node
func (tf *TreeFormatter) formatNode(sb *strings.Builder, node *TreeNode, prefix string, isLast bool) {
	if tf.options.MaxDepth > 0 && node.Depth > tf.options.MaxDepth {
		return
	}

	branch := "├─ "
	if isLast {
		branch = "└─ "
	}
	sb.WriteString(prefix)
	sb.WriteString(branch)
	sb.WriteString(node.Name)
	sb.WriteString(node.Args)
	if node.Kind != "" {
		sb.WriteString(" (" + node.Kind + ")")
	}
	if tf.options.ShowLines && node.Line > 0 {
		sb.WriteString(fmt.Sprintf(" [%s:%d]", node.File, node.Line))
	}
	sb.WriteString("\n")

	childPrefix := prefix + "│" + tf.options.Indent
	if isLast {
		childPrefix = prefix + " " + tf.options.Indent
	}
	for i, child := range node.Children {
		tf.formatNode(sb, child, childPrefix, i == len(node.Children)-1)
	}
}

// formatCompact lists every top-level scope with its member count.
func (tf *TreeFormatter) formatCompact(root *TreeNode) string {
	parts := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		if len(c.Children) > 0 {
			parts = append(parts, fmt.Sprintf("%s(%d)", c.Name, len(c.Children)))
		} else {
			parts = append(parts, c.Name)
		}
	}
	return strings.Join(parts, " ")
}
