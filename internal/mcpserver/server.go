// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes archlens graph tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/graphservice"
)

// SnapshotURI addresses the current graph as an MCP resource.
const SnapshotURI = "archlens://snapshot"

// Server wraps the MCP server with archlens tools.
type Server struct {
	mcp *server.MCPServer
	svc *graphservice.Service
}

// New creates a new MCP server with all archlens tools registered.
func New(svc *graphservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"archlens",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("scan_project",
		mcp.WithDescription("Scan the configured project, rebuild changed modules, "+
			"aggregate namespace dependencies and save a new snapshot. "+
			"Returns a JSON summary of the run."),
	), s.scanProject)

	s.mcp.AddTool(mcp.NewTool("get_dependencies",
		mcp.WithDescription("Return the aggregated dependencies and children of one "+
			"directory or file in the latest snapshot."),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("Canonical path such as ./ (project root), ./Domain/ or ./Domain/Models/Graph.cs")),
	), s.getDependencies)

	s.mcp.AddTool(mcp.NewTool("render_graph",
		mcp.WithDescription("Render the latest snapshot as a diagram."),
		mcp.WithString("format", mcp.Description("json or plantuml (defaults to the configured format)")),
	), s.renderGraph)

	s.mcp.AddResource(
		mcp.NewResource(SnapshotURI, "Dependency snapshot",
			mcp.WithResourceDescription("The latest serialized dependency graph."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSnapshotResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + err.Error())
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) scanProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.svc.Scan(ctx)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getDependencies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "./") {
		path = "./" + strings.TrimPrefix(path, "/")
	}

	view, err := s.svc.Dependencies(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	out, _ := json.MarshalIndent(view, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) renderGraph(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := ""
	if f, err := req.RequireString("format"); err == nil {
		format = f
	}
	data, _, err := s.svc.Render(ctx, format)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) readSnapshotResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	root, err := s.svc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	data, err := graph.Encode(root)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: encode snapshot: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      SnapshotURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
