package graphservice

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/builder"
	"github.com/archlens/archlens/internal/extract"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/render"
	"github.com/archlens/archlens/internal/scan"
	"github.com/archlens/archlens/internal/snapshot"
	"github.com/archlens/archlens/internal/storage"
	"github.com/archlens/archlens/internal/testutil"
)

type fixture struct {
	root  string
	svc   *Service
	store *snapshot.Local
	files *storage.FS
}

func newFixture(t *testing.T, format string) *fixture {
	t.Helper()
	root := testutil.Project(t, map[string]string{
		"Web/Controller.cs": "x",
		"Web/View.cs":       "x",
		"Core/Model.cs":     "x",
	})
	abs := func(rel string) string { return testutil.Abs(root, rel) }

	ex := extract.Static(map[string][]string{
		abs("Web/Controller.cs"): {"Core", "Core", "System"},
		abs("Web/View.cs"):       {"Core"},
		abs("Core/Model.cs"):     {"System"},
	})

	rules := scan.CompileExclusions([]string{snapshot.DefaultDir + "/", render.DiagramDir + "/"})
	scanner, err := scan.NewScanner(root, []string{".cs"}, rules)
	require.NoError(t, err)

	files, err := storage.NewFS(root)
	require.NoError(t, err)
	store := snapshot.NewLocal(files, snapshot.DefaultDir, snapshot.DefaultFile, nil)

	svc := New(Deps{
		Root:     root,
		Store:    store,
		Detector: scan.NewDetector(scanner, 2, nil),
		Builder:  builder.New(root, "Shop", []string{".cs"}, ex, nil),
		Files:    files,
		Format:   format,
	})
	return &fixture{root: root, svc: svc, store: store, files: files}
}

func TestScan_FirstRunSavesSnapshot(t *testing.T) {
	f := newFixture(t, render.FormatJSON)
	ctx := context.Background()

	res, err := f.svc.Scan(ctx)
	require.NoError(t, err)
	assert.False(t, res.HadBaseline)
	assert.Equal(t, "Shop", res.Root)
	assert.Contains(t, res.Changed, graph.RootPath)
	assert.Equal(t, "diagrams/graph-json.json", res.Diagram)

	saved, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, saved)
	web := saved.Find("./Web/")
	require.NotNil(t, web)
	assert.Equal(t, 3, web.DependencyCount("Core"))
	assert.Equal(t, 1, web.DependencyCount("System"))
	// The unnamed root namespace keeps every identifier.
	assert.Equal(t, map[string]int{"Core": 3, "System": 2}, saved.Dependencies())

	ok, err := f.files.Exists(res.Diagram)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestScan_SecondRunKeepsUnchangedModules(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Scan(ctx)
	require.NoError(t, err)

	res, err := f.svc.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, res.HadBaseline)
	assert.Empty(t, res.Diagram)
	assert.NotContains(t, res.Changed, "./Web/")
	assert.NotContains(t, res.Changed, "./Core/")

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Find("./Web/View.cs"))
	assert.NotNil(t, snap.Find("./Core/Model.cs"))
	assert.Equal(t, 3, snap.Find("./Web/").DependencyCount("Core"))
}

func TestScan_PicksUpNewRootFile(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Scan(ctx)
	require.NoError(t, err)

	testutil.WriteFile(t, testutil.Abs(f.root, "Program.cs"), "x")
	testutil.SetMtime(t, f.root, time.Now().Add(5*time.Second))

	res, err := f.svc.Scan(ctx)
	require.NoError(t, err)
	assert.Contains(t, res.Changed, graph.RootPath)

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Find("./Program.cs"))
	assert.NotNil(t, snap.Find("./Web/View.cs"))
	assert.NotNil(t, snap.Find("./Core/Model.cs"))
}

func TestScan_DropsDeletedModules(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Scan(ctx)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(testutil.Abs(f.root, "Core")))

	_, err = f.svc.Scan(ctx)
	require.NoError(t, err)

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Find("./Core/"))
	assert.NotNil(t, snap.Find("./Web/"))
	assert.Equal(t, map[string]int{"Core": 3, "System": 1}, snap.Dependencies())
}

func TestScan_Canceled(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Scan(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrCanceled)
}

func TestSnapshot_NoneYet(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Snapshot(context.Background())
	assert.True(t, IsNotFound(err))
}

func TestSnapshot_LoadsPersistedBaseline(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	base := graph.NewNode("Shop", graph.RootPath, time.Now())
	base.AddChild(graph.NewLeaf("A.cs", "./A.cs", time.Now(), []string{"X"}))
	require.NoError(t, f.store.Save(ctx, base))

	snap, err := f.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotNil(t, snap.Find("./A.cs"))
}

func TestDependencies(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	_, err := f.svc.Scan(ctx)
	require.NoError(t, err)

	v, err := f.svc.Dependencies(ctx, "./Web")
	require.NoError(t, err)
	assert.Equal(t, "./Web/", v.Path)
	assert.Equal(t, "node", v.Kind)
	assert.Equal(t, "Web", v.Namespace)
	assert.Equal(t, []graph.Dependency{{ID: "Core", Count: 3}, {ID: "System", Count: 1}}, v.Dependencies)
	require.Len(t, v.Children, 2)
	assert.Equal(t, "leaf", v.Children[0].Kind)

	leaf, err := f.svc.Dependencies(ctx, "./Core/Model.cs")
	require.NoError(t, err)
	assert.Empty(t, leaf.Children)

	_, err = f.svc.Dependencies(ctx, "./Nope/")
	assert.True(t, IsNotFound(err))
}

func TestRender(t *testing.T) {
	f := newFixture(t, render.FormatJSON)
	ctx := context.Background()
	_, err := f.svc.Scan(ctx)
	require.NoError(t, err)

	data, ct, err := f.svc.Render(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "application/json", ct)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Shop", doc["title"])

	data, _, err = f.svc.Render(ctx, "puml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "@startuml"))

	_, _, err = f.svc.Render(ctx, "svg")
	assert.ErrorIs(t, err, apperr.ErrConfig)
}

func TestScan_CallsOnScan(t *testing.T) {
	f := newFixture(t, "")
	var got []*ScanResult
	f.svc.deps.OnScan = func(r *ScanResult) { got = append(got, r) }

	res, err := f.svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Same(t, res, got[0])
}
