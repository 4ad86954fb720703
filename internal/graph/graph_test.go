package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 11, 23, 10, 30, 15, 0, time.UTC)

// domainTree mirrors a small layered project:
//
//	./Domain/{Factories,Models/{Records,Enums},Utils}
func domainTree() *Entity {
	root := NewNode("Archlens", "./", testTime)
	domain := NewNode("Domain", "./Domain/", testTime)
	factories := NewNode("Factories", "./Domain/Factories/", testTime)
	models := NewNode("Models", "./Domain/Models/", testTime)
	records := NewNode("Records", "./Domain/Models/Records/", testTime)
	enums := NewNode("Enums", "./Domain/Models/Enums/", testTime)
	utils := NewNode("Utils", "./Domain/Utils/", testTime)

	root.AddChild(domain)
	domain.AddChild(factories)
	domain.AddChild(models)
	domain.AddChild(utils)
	models.AddChild(records)
	models.AddChild(enums)

	factories.AddChild(NewLeaf("DependencyParserFactory.cs", "./Domain/Factories/DependencyParserFactory.cs", testTime,
		[]string{"Domain.Interfaces", "Domain.Models.Enums", "Domain.Models.Records", "Infra"}))
	factories.AddChild(NewLeaf("RendererFactory.cs", "./Domain/Factories/RendererFactory.cs", testTime,
		[]string{"Domain.Interfaces", "Domain.Models.Enums", "Infra"}))
	records.AddChild(NewLeaf("Options.cs", "./Domain/Models/Records/Options.cs", testTime,
		[]string{"Domain.Models.Enums"}))
	models.AddChild(NewLeaf("DependencyGraph.cs", "./Domain/Models/DependencyGraph.cs", testTime,
		[]string{"Domain.Utils"}))
	return root
}

func child(t *testing.T, e *Entity, name string) *Entity {
	t.Helper()
	for _, c := range e.Children() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("%s has no child %q", e.Name, name)
	return nil
}

func TestCanonicalPath(t *testing.T) {
	root := "/work/proj"
	assert.Equal(t, "./", CanonicalPath(root, root, true))
	assert.Equal(t, "./src/", CanonicalPath(root, "/work/proj/src", true))
	assert.Equal(t, "./src/A.cs", CanonicalPath(root, "/work/proj/src/A.cs", false))
	assert.Equal(t, "./a/b/", CanonicalPath(root, "/work/proj/a/b/", true))
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "", Namespace("./"))
	assert.Equal(t, "Domain", Namespace("./Domain/"))
	assert.Equal(t, "Domain.Models", Namespace("./Domain/Models/"))
	assert.Equal(t, "Domain.Models", Namespace(`Domain\Models`))
}

func TestIsInternal(t *testing.T) {
	cases := []struct {
		ns, id string
		want   bool
	}{
		{"Domain", "Domain", true},
		{"Domain", "domain.models", true},
		{"Domain", "Domain.Models.Enums", true},
		{"Domain", "DomainEvents", false},
		{"Domain.Models", "Domain", false},
		{"Domain.Models", "Domain.Utils", false},
		{"", "Infra", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsInternal(c.ns, c.id), "IsInternal(%q, %q)", c.ns, c.id)
	}
}

func TestNormalizeTime(t *testing.T) {
	local := time.Date(2025, 1, 2, 3, 4, 5, 999_000_000, time.FixedZone("X", 3600))
	got := NormalizeTime(local)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, 0, got.Nanosecond())
	assert.Equal(t, 2, got.Hour())
}

func TestAddChild_FirstWriteWins(t *testing.T) {
	n := NewNode("src", "./src/", testTime)
	first := NewLeaf("A.cs", "./src/A.cs", testTime, []string{"X"})
	dup := NewLeaf("A-copy.cs", "./src/A.cs", testTime, []string{"Y"})

	assert.True(t, n.AddChild(first))
	assert.False(t, n.AddChild(dup))
	require.Len(t, n.Children(), 1)
	assert.Equal(t, "A.cs", n.Children()[0].Name)
}

func TestLeafRejectsChildren(t *testing.T) {
	l := NewLeaf("A.cs", "./A.cs", testTime, nil)
	assert.False(t, l.AddChild(NewLeaf("B.cs", "./B.cs", testTime, nil)))
	assert.Empty(t, l.Children())
}

func TestNewLeaf_CountsOccurrences(t *testing.T) {
	l := NewLeaf("A.cs", "./A.cs", testTime, []string{"X", "Y", "X", "X"})
	assert.Equal(t, 3, l.DependencyCount("X"))
	assert.Equal(t, 1, l.DependencyCount("Y"))
	assert.Equal(t, []Dependency{{"X", 3}, {"Y", 1}}, l.SortedDependencies())
}

func TestFindAndIndex(t *testing.T) {
	root := domainTree()
	records := root.Find("./Domain/Models/Records/")
	require.NotNil(t, records)
	assert.Equal(t, "Records", records.Name)
	assert.Nil(t, root.Find("./Nope/"))

	idx := Index(root)
	assert.Len(t, idx, 11)
	assert.Same(t, records, idx["./Domain/Models/Records/"])
}

func TestAggregate_DropsInternalAndKeepsExternal(t *testing.T) {
	root := domainTree()
	Aggregate(root)

	domain := child(t, root, "Domain")
	factories := child(t, domain, "Factories")
	models := child(t, domain, "Models")

	fd := factories.Dependencies()
	assert.Contains(t, fd, "Domain.Interfaces")
	assert.Contains(t, fd, "Domain.Models.Enums")
	assert.Contains(t, fd, "Domain.Models.Records")
	assert.Contains(t, fd, "Infra")

	md := models.Dependencies()
	assert.Contains(t, md, "Domain.Utils")
	assert.NotContains(t, md, "Domain.Models.Enums")

	assert.Equal(t, map[string]int{"Infra": 2}, domain.Dependencies())
	assert.Equal(t, map[string]int{"Infra": 2}, root.Dependencies())
}

func TestAggregate_GrandchildInternalSurfacesAtChild(t *testing.T) {
	// "A.X" is external to ./A/B/C/ and ./A/B/ but internal to ./A/.
	root := NewNode("p", "./", testTime)
	a := NewNode("A", "./A/", testTime)
	b := NewNode("B", "./A/B/", testTime)
	c := NewNode("C", "./A/B/C/", testTime)
	root.AddChild(a)
	a.AddChild(b)
	b.AddChild(c)
	c.AddChild(NewLeaf("f.cs", "./A/B/C/f.cs", testTime, []string{"A.B.C.Inner", "A.X", "Ext"}))

	Aggregate(root)

	assert.Equal(t, map[string]int{"A.X": 1, "Ext": 1}, c.Dependencies())
	assert.Equal(t, map[string]int{"A.X": 1, "Ext": 1}, b.Dependencies())
	assert.Equal(t, map[string]int{"Ext": 1}, a.Dependencies())
	assert.Equal(t, map[string]int{"Ext": 1}, root.Dependencies())
}

func TestAggregate_Conservation(t *testing.T) {
	root := NewNode("p", "./", testTime)
	x := NewNode("X", "./X/", testTime)
	y := NewNode("Y", "./Y/", testTime)
	root.AddChild(x)
	root.AddChild(y)
	x.AddChild(NewLeaf("a.cs", "./X/a.cs", testTime, []string{"Y", "Z", "Z"}))
	y.AddChild(NewLeaf("b.cs", "./Y/b.cs", testTime, []string{"X", "Z"}))

	Aggregate(root)

	sum := func(m map[string]int) int {
		total := 0
		for _, n := range m {
			total += n
		}
		return total
	}
	assert.Equal(t, sum(x.Dependencies())+sum(y.Dependencies()), sum(root.Dependencies()))
	assert.Equal(t, 3, root.DependencyCount("Z"))
}

func TestAggregate_FoldsCaseVariants(t *testing.T) {
	root := NewNode("p", "./", testTime)
	domain := NewNode("Domain", "./Domain/", testTime)
	root.AddChild(domain)
	domain.AddChild(NewLeaf("a.cs", "./Domain/a.cs", testTime, []string{"Infra.Db", "domain.models"}))
	domain.AddChild(NewLeaf("b.cs", "./Domain/b.cs", testTime, []string{"infra.db", "INFRA.DB"}))

	Aggregate(root)

	assert.Equal(t, map[string]int{"Infra.Db": 3}, domain.Dependencies())
	assert.Equal(t, map[string]int{"Infra.Db": 3}, root.Dependencies())
}

func TestAggregate_Idempotent(t *testing.T) {
	root := domainTree()
	Aggregate(root)
	first := make(map[string]map[string]int)
	root.Walk(func(e *Entity) bool {
		first[e.Path] = e.Dependencies()
		return true
	})

	Aggregate(root)
	root.Walk(func(e *Entity) bool {
		assert.Equal(t, first[e.Path], e.Dependencies(), "path %s", e.Path)
		return true
	})
}

func TestAggregate_LeafMapUntouched(t *testing.T) {
	root := domainTree()
	Aggregate(root)
	leaf := root.Find("./Domain/Models/Records/Options.cs")
	require.NotNil(t, leaf)
	assert.Equal(t, map[string]int{"Domain.Models.Enums": 1}, leaf.Dependencies())
}
