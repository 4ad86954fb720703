package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
)

// Detector finds the modules that changed since a baseline graph.
type Detector struct {
	scanner *Scanner
	workers int
	logger  *slog.Logger
}

// DefaultWorkers is the comparison concurrency used when none is configured:
// one less than the processor count, at least one.
func DefaultWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// NewDetector creates a detector over scanner. workers <= 0 selects
// DefaultWorkers.
func NewDetector(scanner *Scanner, workers int, logger *slog.Logger) *Detector {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{scanner: scanner, workers: workers, logger: logger}
}

// Scanner returns the underlying scanner.
func (d *Detector) Scanner() *Scanner { return d.scanner }

// Changed scans the tree and returns the modules that are new or whose
// directory mtime is strictly newer than the baseline entity at the same
// canonical path. With a nil baseline every scanned module is returned,
// the root included. Otherwise a root newer than the baseline root is
// emitted with its file contents only; its subdirectories are judged on
// their own.
func (d *Detector) Changed(ctx context.Context, baseline *graph.Entity) (Modules, error) {
	modules, err := d.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return modules, nil
	}

	index := graph.Index(baseline)
	root := d.scanner.Root()

	var (
		mu      sync.Mutex
		changed = make(Modules)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, dir := range modules.Keys() {
		if err := gctx.Err(); err != nil {
			break
		}
		contents := modules[dir]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			rel := graph.CanonicalPath(root, dir, true)
			prev := lookup(index, rel)
			if prev != nil {
				info, err := os.Stat(dir)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						d.logger.Debug("scan: module vanished", slog.String("path", rel))
						return nil
					}
					return fmt.Errorf("scan: stat %s: %w", rel, err)
				}
				current := graph.NormalizeTime(info.ModTime())
				if !current.After(graph.NormalizeTime(prev.LastWriteTime)) {
					return nil
				}
			}

			if rel == graph.RootPath {
				contents = filesOnly(modules, contents)
			}

			mu.Lock()
			changed[dir] = contents
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scan: detect changes: %w: %w", apperr.ErrCanceled, ctxErr)
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan: detect changes: %w: %w", apperr.ErrCanceled, err)
	}

	d.logger.Debug("scan: changes detected",
		slog.Int("modules", len(modules)),
		slog.Int("changed", len(changed)))
	return changed, nil
}

// lookup tolerates snapshots written without the trailing directory slash.
func lookup(index map[string]*graph.Entity, rel string) *graph.Entity {
	if e, ok := index[rel]; ok {
		return e
	}
	if e, ok := index[strings.TrimSuffix(rel, "/")]; ok {
		return e
	}
	return nil
}

// filesOnly drops the entries of contents that are modules themselves.
func filesOnly(modules Modules, contents []string) []string {
	files := make([]string, 0, len(contents))
	for _, c := range contents {
		if _, isModule := modules[c]; isModule {
			continue
		}
		files = append(files, c)
	}
	return files
}
