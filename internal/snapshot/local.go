package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/storage"
)

// Local keeps the snapshot at <root>/<dir>/<file>.
type Local struct {
	fs     storage.Provider
	rel    string
	logger *slog.Logger
}

// NewLocal creates a store writing dir/file through fs.
func NewLocal(fs storage.Provider, dir, file string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{fs: fs, rel: path.Join(dir, file), logger: logger}
}

// Path returns the snapshot path relative to the project root.
func (l *Local) Path() string { return l.rel }

// Load reads and decodes the snapshot. A missing file is not an error.
func (l *Local) Load(ctx context.Context) (*graph.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("snapshot: %w: %w", apperr.ErrCanceled, err)
	}
	ok, err := l.fs.Exists(l.rel)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if !ok {
		l.logger.Debug("snapshot: no local baseline", slog.String("path", l.rel))
		return nil, nil
	}
	data, err := l.fs.Read(l.rel)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	root, err := graph.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %s: %w", l.rel, err)
	}
	return root, nil
}

// Save encodes root and writes it atomically.
func (l *Local) Save(ctx context.Context, root *graph.Entity) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot: %w: %w", apperr.ErrCanceled, err)
	}
	data, err := graph.Encode(root)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := l.fs.Write(l.rel, data); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	l.logger.Debug("snapshot: saved", slog.String("path", l.rel))
	return nil
}
