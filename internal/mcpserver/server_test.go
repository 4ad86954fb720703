package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/archlens/archlens/internal/builder"
	"github.com/archlens/archlens/internal/extract"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/graphservice"
	"github.com/archlens/archlens/internal/render"
	"github.com/archlens/archlens/internal/scan"
	"github.com/archlens/archlens/internal/snapshot"
	"github.com/archlens/archlens/internal/storage"
	"github.com/archlens/archlens/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	root := testutil.Project(t, map[string]string{
		"App/Program.cs":  "x",
		"Infra/Client.cs": "x",
	})
	ex := extract.Static(map[string][]string{
		testutil.Abs(root, "App/Program.cs"):  {"Infra", "Infra"},
		testutil.Abs(root, "Infra/Client.cs"): {"System.Net"},
	})

	rules := scan.CompileExclusions([]string{snapshot.DefaultDir + "/", render.DiagramDir + "/"})
	scanner, err := scan.NewScanner(root, []string{".cs"}, rules)
	if err != nil {
		t.Fatal(err)
	}
	files, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}

	svc := graphservice.New(graphservice.Deps{
		Root:     root,
		Store:    snapshot.NewLocal(files, snapshot.DefaultDir, snapshot.DefaultFile, nil),
		Detector: scan.NewDetector(scanner, 2, nil),
		Builder:  builder.New(root, "Tool", []string{".cs"}, ex, nil),
		Files:    files,
		Format:   render.FormatPlantUML,
	})
	return New(svc, "test")
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "scan_project":
		result, err = srv.scanProject(ctx, req)
	case "get_dependencies":
		result, err = srv.getDependencies(ctx, req)
	case "render_graph":
		result, err = srv.renderGraph(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestScanProject(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "scan_project", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("scan failed: %s", resultText(r))
	}
	var res graphservice.ScanResult
	if err := json.Unmarshal([]byte(resultText(r)), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Root != "Tool" {
		t.Errorf("root = %q", res.Root)
	}
	if res.Diagram != "diagrams/graph-puml.puml" {
		t.Errorf("diagram = %q", res.Diagram)
	}
}

func TestGetDependencies(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "scan_project", map[string]interface{}{})

	for _, p := range []string{"./App/", "App", "/App/"} {
		r := callTool(t, srv, "get_dependencies", map[string]interface{}{"path": p})
		if r.IsError {
			t.Fatalf("%s: %s", p, resultText(r))
		}
		var v graphservice.EntityView
		if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(v.Dependencies) != 1 || v.Dependencies[0] != (graph.Dependency{ID: "Infra", Count: 2}) {
			t.Errorf("%s: dependencies = %+v", p, v.Dependencies)
		}
	}
}

func TestGetDependencies_Missing(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "scan_project", map[string]interface{}{})

	r := callTool(t, srv, "get_dependencies", map[string]interface{}{"path": "./Nope/"})
	if !r.IsError {
		t.Error("expected error for missing path")
	}

	r = callTool(t, srv, "get_dependencies", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without path")
	}
}

func TestGetDependencies_BeforeScan(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_dependencies", map[string]interface{}{"path": "./"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "not found") {
		t.Errorf("result = %q", resultText(r))
	}
}

func TestRenderGraph(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "scan_project", map[string]interface{}{})

	r := callTool(t, srv, "render_graph", map[string]interface{}{})
	if !strings.HasPrefix(resultText(r), "@startuml") {
		t.Errorf("default render = %q", resultText(r))
	}

	r = callTool(t, srv, "render_graph", map[string]interface{}{"format": "json"})
	var doc map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &doc); err != nil {
		t.Fatalf("json render: %v", err)
	}

	r = callTool(t, srv, "render_graph", map[string]interface{}{"format": "dot"})
	if !r.IsError {
		t.Error("expected error for unsupported format")
	}
}

func TestSnapshotResource(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "scan_project", map[string]interface{}{})

	contents, err := srv.readSnapshotResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content type = %T", contents[0])
	}
	root, err := graph.Decode([]byte(text.Text))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if root.Find("./Infra/Client.cs") == nil {
		t.Error("snapshot missing ./Infra/Client.cs")
	}
}
