package graph

// Merge overlays fresh onto base. fresh is modified in place and returned:
// entities it already holds win, and every base entity it lacks is copied in
// when keep reports true for that entity's path. base is not modified. Node
// dependency maps are not recomputed; run Aggregate on the result.
func Merge(base, fresh *Entity, keep func(path string) bool) *Entity {
	if fresh == nil {
		if base == nil {
			return nil
		}
		return clone(base, keep)
	}
	if base == nil || fresh.IsLeaf() || base.IsLeaf() {
		return fresh
	}
	mergeInto(fresh, base, keep)
	return fresh
}

func mergeInto(dst, base *Entity, keep func(string) bool) {
	have := make(map[string]*Entity, len(dst.children))
	for _, c := range dst.children {
		have[c.Path] = c
	}
	for _, bc := range base.children {
		if dc, ok := have[bc.Path]; ok {
			if !dc.IsLeaf() && !bc.IsLeaf() {
				mergeInto(dc, bc, keep)
			}
			continue
		}
		if keep != nil && !keep(bc.Path) {
			continue
		}
		dst.AddChild(clone(bc, keep))
	}
}

// clone deep-copies e, dropping descendants keep rejects.
func clone(e *Entity, keep func(string) bool) *Entity {
	c := &Entity{
		Kind:          e.Kind,
		Name:          e.Name,
		Path:          e.Path,
		LastWriteTime: e.LastWriteTime,
		deps:          e.Dependencies(),
	}
	for _, child := range e.children {
		if keep != nil && !keep(child.Path) {
			continue
		}
		c.children = append(c.children, clone(child, keep))
	}
	return c
}
