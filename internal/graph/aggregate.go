package graph

import (
	"sort"
	"strings"
)

// Aggregate recomputes every Node's dependency map bottom-up. A Node's map
// is the sum of its children's maps minus identifiers internal to the Node.
// Filtering happens at each level, so an identifier internal to a grandchild
// but external to the child still surfaces at the child. Identifiers that
// differ only in case share one entry under the first spelling met in
// child order.
func Aggregate(root *Entity) {
	if root == nil {
		return
	}
	fold(root)
}

func fold(e *Entity) map[string]int {
	if e.IsLeaf() {
		return e.deps
	}

	ns := e.Namespace()
	agg := make(map[string]int)
	spelling := make(map[string]string)
	for _, child := range e.children {
		deps := fold(child)
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if IsInternal(ns, id) {
				continue
			}
			key := strings.ToLower(id)
			canon, ok := spelling[key]
			if !ok {
				canon = id
				spelling[key] = id
			}
			agg[canon] += deps[id]
		}
	}
	e.replaceDependencies(agg)
	return agg
}
