// Package builder assembles Node/Leaf trees from changed modules.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/extract"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/scan"
)

// Builder turns a changed-modules map into a rooted tree.
type Builder struct {
	root        string
	projectName string
	extensions  map[string]struct{}
	extractor   extract.Extractor
	logger      *slog.Logger
}

// New creates a builder for the project at root. The root Node is named
// projectName, or the root's basename when projectName is empty.
func New(root, projectName string, extensions []string, ex extract.Extractor, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	if projectName == "" {
		projectName = filepath.Base(abs)
	}
	b := &Builder{
		root:        abs,
		projectName: projectName,
		extensions:  make(map[string]struct{}, len(extensions)),
		extractor:   ex,
		logger:      logger,
	}
	for _, ext := range extensions {
		b.extensions[scan.NormalizeExtension(ext)] = struct{}{}
	}
	return b
}

// Build returns the project-root Node containing the changed modules and
// the Leaves for their files. Only the changed subset is represented; a
// changed directory whose ancestors did not change is still connected to
// the root through Nodes built from the filesystem.
func (b *Builder) Build(ctx context.Context, modules scan.Modules) (*graph.Entity, error) {
	nodes := map[string]*graph.Entity{
		graph.RootPath: graph.NewNode(b.projectName, graph.RootPath, b.mtime(b.root)),
	}

	keys := make([]string, 0, len(modules))
	canonical := make(map[string]string, len(modules))
	for abs := range modules {
		rel := graph.CanonicalPath(b.root, abs, true)
		canonical[abs] = rel
		keys = append(keys, abs)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := canonical[keys[i]], canonical[keys[j]]
		if di, dj := strings.Count(ri, "/"), strings.Count(rj, "/"); di != dj {
			return di < dj
		}
		return ri < rj
	})

	for _, abs := range keys {
		b.node(nodes, canonical[abs])
	}

	for _, abs := range keys {
		parent := nodes[canonical[abs]]
		for _, content := range modules[abs] {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("builder: %w: %w", apperr.ErrCanceled, err)
			}
			if rel, ok := canonical[content]; ok {
				parent.AddChild(nodes[rel])
				continue
			}
			if !b.accepts(content) {
				continue
			}
			leaf, err := b.leaf(ctx, content)
			if err != nil {
				return nil, err
			}
			parent.AddChild(leaf)
		}
	}

	return nodes[graph.RootPath], nil
}

// node returns the Node at rel, creating it and any missing ancestors.
func (b *Builder) node(nodes map[string]*graph.Entity, rel string) *graph.Entity {
	if n, ok := nodes[rel]; ok {
		return n
	}
	abs := filepath.Join(b.root, filepath.FromSlash(strings.TrimPrefix(rel, "./")))
	n := graph.NewNode(path.Base(strings.TrimSuffix(rel, "/")), rel, b.mtime(abs))
	nodes[rel] = n
	b.node(nodes, parentPath(rel)).AddChild(n)
	return n
}

func (b *Builder) leaf(ctx context.Context, abs string) (*graph.Entity, error) {
	rel := graph.CanonicalPath(b.root, abs, false)
	deps, err := b.extractor.Extract(ctx, abs)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("builder: %w: %w", apperr.ErrCanceled, err)
		}
		b.logger.Warn("builder: extraction failed",
			slog.String("path", rel),
			slog.String("error", err.Error()))
		deps = nil
	}
	return graph.NewLeaf(filepath.Base(abs), rel, b.mtime(abs), deps), nil
}

func (b *Builder) accepts(abs string) bool {
	_, ok := b.extensions[strings.ToLower(filepath.Ext(abs))]
	return ok
}

func (b *Builder) mtime(abs string) time.Time {
	info, err := os.Stat(abs)
	if err != nil {
		b.logger.Debug("builder: stat failed", slog.String("path", abs), slog.String("error", err.Error()))
		return time.Time{}
	}
	return info.ModTime()
}

// parentPath returns the canonical path of the directory containing rel.
func parentPath(rel string) string {
	dir := path.Dir(strings.TrimSuffix(strings.TrimPrefix(rel, "./"), "/"))
	if dir == "." || dir == "/" || dir == "" {
		return graph.RootPath
	}
	return "./" + dir + "/"
}
