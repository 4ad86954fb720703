package api

import (
	"context"

	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/graphservice"
)

// GraphService is the subset of graphservice.Service the handlers use.
type GraphService interface {
	Scan(ctx context.Context) (*graphservice.ScanResult, error)
	Snapshot(ctx context.Context) (*graph.Entity, error)
	Dependencies(ctx context.Context, path string) (*graphservice.EntityView, error)
	Render(ctx context.Context, format string) ([]byte, string, error)
}

var _ GraphService = (*graphservice.Service)(nil)
