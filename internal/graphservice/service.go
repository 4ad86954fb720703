// Package graphservice runs the scan pipeline and answers graph queries for
// the CLI, HTTP and MCP surfaces.
package graphservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/builder"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/render"
	"github.com/archlens/archlens/internal/scan"
	"github.com/archlens/archlens/internal/snapshot"
	"github.com/archlens/archlens/internal/storage"
)

// ScanResult summarizes one pipeline run.
type ScanResult struct {
	Root         string             `json:"root"`
	HadBaseline  bool               `json:"had_baseline"`
	Changed      []string           `json:"changed"`
	Entities     int                `json:"entities"`
	Dependencies []graph.Dependency `json:"dependencies"`
	Diagram      string             `json:"diagram,omitempty"`
	Duration     string             `json:"duration"`
}

// EntityRef is a short reference to a child entity.
type EntityRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// EntityView is the query representation of one entity.
type EntityView struct {
	Name          string             `json:"name"`
	Path          string             `json:"path"`
	Kind          string             `json:"kind"`
	Namespace     string             `json:"namespace"`
	LastWriteTime time.Time          `json:"last_write_time"`
	Dependencies  []graph.Dependency `json:"dependencies"`
	Children      []EntityRef        `json:"children"`
}

// Deps are the collaborators of a Service.
type Deps struct {
	Root     string
	Store    snapshot.Store
	Detector *scan.Detector
	Builder  *builder.Builder
	Files    storage.Provider
	// Title overrides the diagram title.
	Title string
	// Format is the diagram written after each scan; empty skips writing.
	Format string
	// OnScan, when set, is called after each successful scan.
	OnScan func(*ScanResult)
	Logger *slog.Logger
}

// Service coordinates snapshot, scanning, building and rendering. Scans are
// serialized.
type Service struct {
	mu      sync.Mutex
	deps    Deps
	logger  *slog.Logger
	current *graph.Entity
}

// New creates a service.
func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: d, logger: logger}
}

// Scan loads the baseline, rebuilds the changed modules, merges them over
// the baseline, aggregates, writes the diagram and saves the new snapshot.
func (s *Service) Scan(ctx context.Context) (*ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	baseline, err := s.deps.Store.Load(ctx)
	if err != nil {
		return nil, err
	}

	changed, err := s.deps.Detector.Changed(ctx, baseline)
	if err != nil {
		return nil, err
	}

	fresh, err := s.deps.Builder.Build(ctx, changed)
	if err != nil {
		return nil, err
	}

	full := graph.Merge(baseline, fresh, s.exists)
	graph.Aggregate(full)

	res := &ScanResult{
		Root:         full.Name,
		HadBaseline:  baseline != nil,
		Changed:      make([]string, 0, len(changed)),
		Entities:     len(graph.Index(full)),
		Dependencies: full.SortedDependencies(),
	}
	for _, abs := range changed.Keys() {
		res.Changed = append(res.Changed, graph.CanonicalPath(s.deps.Root, abs, true))
	}

	if s.deps.Format != "" && s.deps.Files != nil {
		r, err := render.ForFormat(s.deps.Format, s.deps.Title)
		if err != nil {
			return nil, err
		}
		rel, err := render.WriteFile(s.deps.Files, r, full)
		if err != nil {
			return nil, err
		}
		res.Diagram = rel
	}

	if err := s.deps.Store.Save(ctx, full); err != nil {
		return nil, err
	}
	s.current = full
	res.Duration = time.Since(start).Round(time.Millisecond).String()

	s.logger.Info("scan: complete",
		slog.Int("changed", len(res.Changed)),
		slog.Int("entities", res.Entities),
		slog.Bool("baseline", res.HadBaseline),
		slog.String("duration", res.Duration))
	if s.deps.OnScan != nil {
		s.deps.OnScan(res)
	}
	return res, nil
}

// exists reports whether a baseline entity still exists on disk.
func (s *Service) exists(path string) bool {
	if path == graph.RootPath {
		return true
	}
	rel := strings.TrimSuffix(strings.TrimPrefix(path, "./"), "/")
	_, err := os.Stat(filepath.Join(s.deps.Root, filepath.FromSlash(rel)))
	return err == nil
}

// Snapshot returns the most recent graph: the last scan of this process or
// else the persisted baseline.
func (s *Service) Snapshot(ctx context.Context) (*graph.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		return s.current, nil
	}
	root, err := s.deps.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("graphservice: no snapshot yet: %w", apperr.ErrNotFound)
	}
	s.current = root
	return root, nil
}

// Dependencies describes the entity at the canonical path p. A directory may
// be given with or without its trailing slash.
func (s *Service) Dependencies(ctx context.Context, p string) (*EntityView, error) {
	root, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	e := root.Find(p)
	if e == nil && !strings.HasSuffix(p, "/") {
		e = root.Find(p + "/")
	}
	if e == nil {
		return nil, fmt.Errorf("graphservice: %s: %w", graph.NormalizePath(p), apperr.ErrNotFound)
	}

	v := &EntityView{
		Name:          e.Name,
		Path:          e.Path,
		Kind:          e.Kind.String(),
		Namespace:     e.Namespace(),
		LastWriteTime: e.LastWriteTime,
		Dependencies:  e.SortedDependencies(),
		Children:      make([]EntityRef, 0, len(e.Children())),
	}
	for _, c := range e.Children() {
		v.Children = append(v.Children, EntityRef{Name: c.Name, Path: c.Path, Kind: c.Kind.String()})
	}
	return v, nil
}

// Render renders the current graph in format and returns the bytes with
// their content type.
func (s *Service) Render(ctx context.Context, format string) ([]byte, string, error) {
	if format == "" {
		format = s.deps.Format
	}
	if format == "" {
		format = render.FormatJSON
	}
	r, err := render.ForFormat(format, s.deps.Title)
	if err != nil {
		return nil, "", err
	}
	root, err := s.Snapshot(ctx)
	if err != nil {
		return nil, "", err
	}
	data, err := r.Render(root)
	if err != nil {
		return nil, "", err
	}
	return data, r.ContentType(), nil
}

// IsNotFound reports whether err means the requested graph data is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
