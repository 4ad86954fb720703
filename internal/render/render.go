// Package render turns an aggregated graph into diagram formats.
package render

import (
	"fmt"
	"path"
	"strings"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/storage"
)

// Format names.
const (
	FormatJSON     = "json"
	FormatPlantUML = "plantuml"
)

// DiagramDir is where WriteFile puts rendered diagrams, relative to the
// project root.
const DiagramDir = "diagrams"

// Renderer renders a graph.
type Renderer interface {
	Render(root *graph.Entity) ([]byte, error)
	// FileName is the basename WriteFile uses.
	FileName() string
	// ContentType is the media type of the rendered bytes.
	ContentType() string
}

// ParseFormat maps a user-supplied format name, including common aliases,
// to FormatJSON or FormatPlantUML.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "application/json":
		return FormatJSON, nil
	case "plantuml", "puml", "plant-uml", "plant uml":
		return FormatPlantUML, nil
	default:
		return "", fmt.Errorf("render: unsupported format %q: %w", s, apperr.ErrConfig)
	}
}

// ForFormat returns the renderer for format. title overrides the diagram
// title when non-empty.
func ForFormat(format, title string) (Renderer, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if f == FormatPlantUML {
		return PlantUML{Title: title}, nil
	}
	return JSON{Title: title}, nil
}

// WriteFile renders root and writes it under DiagramDir. It returns the
// written path relative to the project root.
func WriteFile(fs storage.Provider, r Renderer, root *graph.Entity) (string, error) {
	data, err := r.Render(root)
	if err != nil {
		return "", err
	}
	rel := path.Join(DiagramDir, r.FileName())
	if err := fs.Write(rel, data); err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	return rel, nil
}
