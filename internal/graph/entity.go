// Package graph holds the hierarchical dependency graph: directory Nodes and
// file Leaves, their dependency counts, aggregation and the snapshot codec.
package graph

import (
	"sort"
	"time"
)

// Kind discriminates the two entity variants.
type Kind uint8

const (
	// KindNode is a directory that owns children.
	KindNode Kind = iota
	// KindLeaf is a single source file.
	KindLeaf
)

func (k Kind) String() string {
	if k == KindLeaf {
		return "leaf"
	}
	return "node"
}

// Entity is one element of the tree. Name, Path and LastWriteTime are fixed
// at construction; only a Node's children and dependency map change, and
// only during build and aggregate passes.
type Entity struct {
	Kind          Kind
	Name          string
	Path          string
	LastWriteTime time.Time

	deps     map[string]int
	children []*Entity
}

// Dependency is one identifier with its occurrence count.
type Dependency struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// NewNode creates a directory entity.
func NewNode(name, path string, lastWrite time.Time) *Entity {
	return &Entity{
		Kind:          KindNode,
		Name:          name,
		Path:          NormalizePath(path),
		LastWriteTime: NormalizeTime(lastWrite),
		deps:          make(map[string]int),
	}
}

// NewLeaf creates a file entity. Every occurrence of an identifier in deps
// increments its count.
func NewLeaf(name, path string, lastWrite time.Time, deps []string) *Entity {
	l := &Entity{
		Kind:          KindLeaf,
		Name:          name,
		Path:          NormalizePath(path),
		LastWriteTime: NormalizeTime(lastWrite),
		deps:          make(map[string]int, len(deps)),
	}
	for _, d := range deps {
		l.deps[d]++
	}
	return l
}

// IsLeaf reports whether e is a file entity.
func (e *Entity) IsLeaf() bool { return e.Kind == KindLeaf }

// Children returns the ordered children of a Node; nil for a Leaf.
func (e *Entity) Children() []*Entity { return e.children }

// AddChild appends child unless a child with the same Path already exists.
// It reports whether child was added. Leaves never accept children.
func (e *Entity) AddChild(child *Entity) bool {
	if e.Kind != KindNode || child == nil || child == e {
		return false
	}
	for _, c := range e.children {
		if c == child || c.Path == child.Path {
			return false
		}
	}
	e.children = append(e.children, child)
	return true
}

// Dependencies returns a copy of the dependency map.
func (e *Entity) Dependencies() map[string]int {
	out := make(map[string]int, len(e.deps))
	for k, v := range e.deps {
		out[k] = v
	}
	return out
}

// DependencyCount returns the count recorded for id, or 0.
func (e *Entity) DependencyCount(id string) int { return e.deps[id] }

// SortedDependencies returns the dependency map ordered by identifier.
func (e *Entity) SortedDependencies() []Dependency {
	out := make([]Dependency, 0, len(e.deps))
	for id, n := range e.deps {
		out = append(out, Dependency{ID: id, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// addDependency is used by the codec to restore persisted counts.
func (e *Entity) addDependency(id string, n int) {
	if n <= 0 {
		return
	}
	e.deps[id] += n
}

// replaceDependencies swaps the whole map; used by the aggregator.
func (e *Entity) replaceDependencies(m map[string]int) {
	e.deps = m
}

// Namespace returns the dot-separated namespace derived from e.Path.
func (e *Entity) Namespace() string { return Namespace(e.Path) }

// Walk visits e and its descendants in pre-order. Returning false from fn
// skips the entity's subtree.
func (e *Entity) Walk(fn func(*Entity) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.children {
		c.Walk(fn)
	}
}

// Find returns the entity with the given canonical path, or nil.
func (e *Entity) Find(path string) *Entity {
	want := NormalizePath(path)
	var found *Entity
	e.Walk(func(n *Entity) bool {
		if found != nil {
			return false
		}
		if n.Path == want {
			found = n
			return false
		}
		return true
	})
	return found
}

// Index maps every canonical path in the tree to its entity. The first
// entity seen for a path wins.
func Index(root *Entity) map[string]*Entity {
	idx := make(map[string]*Entity)
	if root == nil {
		return idx
	}
	root.Walk(func(n *Entity) bool {
		if _, ok := idx[n.Path]; !ok {
			idx[n.Path] = n
		}
		return true
	})
	return idx
}

func (e *Entity) String() string { return e.Name }
