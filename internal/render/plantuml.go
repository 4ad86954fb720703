package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/archlens/archlens/internal/graph"
)

// PlantUML renders the whole tree as nested packages with an arrow from each
// file to every identifier it depends on.
type PlantUML struct {
	Title string
}

// FileName implements Renderer.
func (PlantUML) FileName() string { return "graph-puml.puml" }

// ContentType implements Renderer.
func (PlantUML) ContentType() string { return "text/plain; charset=utf-8" }

// Render implements Renderer.
func (p PlantUML) Render(root *graph.Entity) ([]byte, error) {
	if root == nil {
		return nil, errors.New("render: nil graph")
	}
	title := p.Title
	if title == "" {
		title = root.Name
	}

	var b strings.Builder
	var edges []string

	b.WriteString("@startuml\n")
	b.WriteString("skinparam linetype ortho\n")
	b.WriteString("skinparam backgroundColor GhostWhite\n")
	fmt.Fprintf(&b, "title %s\n", title)
	writePackage(&b, root, 0, &edges)
	for _, e := range edges {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	b.WriteString("@enduml\n")
	return []byte(b.String()), nil
}

func writePackage(b *strings.Builder, n *graph.Entity, depth int, edges *[]string) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%spackage %q as %s {\n", indent, n.Name, alias(n))
	for _, child := range n.Children() {
		if !child.IsLeaf() {
			writePackage(b, child, depth+1, edges)
			continue
		}
		ref := component(child)
		fmt.Fprintf(b, "%s  %s\n", indent, ref)
		for _, dep := range child.SortedDependencies() {
			*edges = append(*edges, ref+"-->"+dep.ID)
		}
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

// component is the reference used both to declare a leaf and to draw its edges.
func component(leaf *graph.Entity) string {
	return "[" + strings.ReplaceAll(leaf.Name, " ", "-") + "]"
}

// alias derives a PlantUML identifier unique per path.
func alias(n *graph.Entity) string {
	ns := n.Namespace()
	if ns == "" {
		return sanitize(n.Name)
	}
	return sanitize(ns)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "root"
	}
	return b.String()
}
