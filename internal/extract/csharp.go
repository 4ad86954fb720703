package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/csharp"
)

// CSharp extracts the targets of using directives from C# source files.
// Each call creates its own tree-sitter parser, so a CSharp value is safe for
// concurrent use.
type CSharp struct {
	rootNamespace string
	logger        *slog.Logger
}

// NewCSharp creates a C# extractor. When rootNamespace is set only
// identifiers below it are kept, with the "<rootNamespace>." prefix removed
// so they line up with namespaces derived from directory paths.
func NewCSharp(rootNamespace string, logger *slog.Logger) *CSharp {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSharp{rootNamespace: strings.Trim(rootNamespace, ". "), logger: logger}
}

// Variant identifies the extractor configuration for caching purposes.
func (c *CSharp) Variant() string {
	return "csharp:" + c.rootNamespace
}

// Extract reads and parses the file at path.
func (c *CSharp) Extract(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		c.logger.Debug("extract: unreadable file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return []string{}, nil
	}
	return c.Parse(ctx, src)
}

// Parse returns the using-directive targets in src.
func (c *CSharp) Parse(ctx context.Context, src []byte) ([]string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(csharp.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("extract: parse: %w", err)
	}
	defer tree.Close()

	var raw []string
	collectUsings(tree.RootNode(), src, &raw)

	out := make([]string, 0, len(raw))
	for _, id := range raw {
		if id, ok := c.qualify(id); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (c *CSharp) qualify(id string) (string, bool) {
	if c.rootNamespace == "" {
		return id, true
	}
	rest, ok := strings.CutPrefix(id, c.rootNamespace+".")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// Using directives live at the top level or inside namespace bodies.
var usingContainers = map[string]bool{
	"compilation_unit":                  true,
	"namespace_declaration":             true,
	"file_scoped_namespace_declaration": true,
	"declaration_list":                  true,
}

var usingTargets = map[string]bool{
	"identifier":           true,
	"qualified_name":       true,
	"alias_qualified_name": true,
	"generic_name":         true,
}

func collectUsings(n *sitter.Node, src []byte, out *[]string) {
	if n == nil {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch {
		case child.Type() == "using_directive":
			if target := usingTarget(child, src); target != "" {
				*out = append(*out, target)
			}
		case usingContainers[child.Type()]:
			collectUsings(child, src, out)
		}
	}
}

// usingTarget returns the imported name, skipping an alias on the left of "=".
func usingTarget(n *sitter.Node, src []byte) string {
	alias := n.ChildByFieldName("name")
	var target string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if alias != nil && child.StartByte() == alias.StartByte() && child.EndByte() == alias.EndByte() {
			continue
		}
		if usingTargets[child.Type()] {
			target = child.Content(src)
		}
	}
	return strings.Join(strings.Fields(target), "")
}
