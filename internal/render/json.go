package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/archlens/archlens/internal/graph"
)

const stateNeutral = "NEUTRAL"

// JSON renders the top-level packages of a graph and the edges leaving them.
type JSON struct {
	Title string
}

type jsonDiagram struct {
	Title    string        `json:"title"`
	Packages []jsonPackage `json:"packages"`
	Edges    []jsonEdge    `json:"edges"`
}

type jsonPackage struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

type jsonEdge struct {
	State       string         `json:"state"`
	FromPackage string         `json:"fromPackage"`
	ToPackage   string         `json:"toPackage"`
	Label       string         `json:"label"`
	Relations   []jsonRelation `json:"relations"`
}

type jsonRelation struct {
	From jsonFile `json:"from_file"`
	To   jsonFile `json:"to_file"`
}

type jsonFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FileName implements Renderer.
func (JSON) FileName() string { return "graph-json.json" }

// ContentType implements Renderer.
func (JSON) ContentType() string { return "application/json" }

// Render implements Renderer.
func (j JSON) Render(root *graph.Entity) ([]byte, error) {
	if root == nil {
		return nil, errors.New("render: nil graph")
	}
	d := jsonDiagram{
		Title:    j.Title,
		Packages: []jsonPackage{},
		Edges:    []jsonEdge{},
	}
	if d.Title == "" {
		d.Title = root.Name
	}

	seen := make(map[string]struct{})
	for _, child := range root.Children() {
		if _, dup := seen[child.Name]; dup {
			continue
		}
		seen[child.Name] = struct{}{}
		d.Packages = append(d.Packages, jsonPackage{Name: child.Name, State: stateNeutral})
		if !child.IsLeaf() {
			d.Edges = append(d.Edges, nodeEdges(child)...)
		}
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: json: %w", err)
	}
	return append(data, '\n'), nil
}

func nodeEdges(node *graph.Entity) []jsonEdge {
	deps := node.SortedDependencies()
	edges := make([]jsonEdge, 0, len(deps))
	for _, dep := range deps {
		rels := []jsonRelation{}
		for _, child := range node.Children() {
			if child.DependencyCount(dep.ID) == 0 {
				continue
			}
			name := strings.ReplaceAll(child.Name, `\`, ".")
			rels = append(rels, jsonRelation{
				From: jsonFile{Name: name, Path: name},
				To:   jsonFile{Name: dep.ID, Path: dep.ID},
			})
		}
		edges = append(edges, jsonEdge{
			State:       stateNeutral,
			FromPackage: node.Name,
			ToPackage:   dep.ID,
			Label:       strconv.Itoa(dep.Count),
			Relations:   rels,
		})
	}
	return edges
}
