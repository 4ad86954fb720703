package api

import (
	"github.com/archlens/archlens/internal/graphservice"
)

// ScanResponse is returned after a pipeline run (aliased from the domain layer).
type ScanResponse = graphservice.ScanResult

// EntityResponse describes one graph entity (aliased from the domain layer).
type EntityResponse = graphservice.EntityView
