// Package snapshot persists dependency graphs between runs.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
	"github.com/archlens/archlens/internal/storage"
)

// Store loads and saves the baseline graph of a project.
type Store interface {
	// Load returns the last saved graph, or nil with no error when none exists.
	Load(ctx context.Context) (*graph.Entity, error)
	// Save persists root as the new baseline.
	Save(ctx context.Context, root *graph.Entity) error
}

// Backend names accepted by New.
const (
	BackendLocal = "local"
	BackendGit   = "git"
	BackendS3    = "s3"
)

// Default location of the snapshot inside the project.
const (
	DefaultDir  = ".archlens"
	DefaultFile = "snapshot.json"
)

// Options selects and configures a Store.
type Options struct {
	Backend string
	Root    string
	Dir     string
	File    string
	GitURL  string
	S3      S3Config
	// HTTPClient is used by the git backend; nil selects a client with a
	// 30s timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New returns the Store for opts.Backend.
func New(opts Options) (Store, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}
	if opts.File == "" {
		opts.File = DefaultFile
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendLocal, "":
		return newLocalFromOptions(opts)
	case BackendGit:
		local, err := newLocalFromOptions(opts)
		if err != nil {
			return nil, err
		}
		var gopts []GitOption
		if opts.HTTPClient != nil {
			gopts = append(gopts, WithHTTPClient(opts.HTTPClient))
		}
		return NewGit(opts.GitURL, opts.Dir, opts.File, local, gopts...)
	case BackendS3:
		return NewS3(opts.S3, opts.File)
	default:
		return nil, fmt.Errorf("snapshot: unsupported backend %q: %w", opts.Backend, apperr.ErrConfig)
	}
}

func newLocalFromOptions(opts Options) (*Local, error) {
	fs, err := storage.NewFS(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return NewLocal(fs, opts.Dir, opts.File, opts.Logger), nil
}
