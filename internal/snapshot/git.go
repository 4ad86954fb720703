package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/archlens/archlens/internal/apperr"
	"github.com/archlens/archlens/internal/graph"
)

// DefaultRawBase is the host serving raw repository files.
const DefaultRawBase = "https://raw.githubusercontent.com"

// Branches are tried in order when fetching a remote baseline.
var Branches = []string{"main", "master"}

// Git loads the baseline committed to a hosted repository and saves new
// snapshots locally so they can be committed.
type Git struct {
	owner, repo string
	dir, file   string
	rawBase     string
	client      *http.Client
	local       *Local
	logger      *slog.Logger
}

// GitOption configures a Git store.
type GitOption func(*Git)

// WithHTTPClient sets the client used for fetching.
func WithHTTPClient(c *http.Client) GitOption {
	return func(g *Git) { g.client = c }
}

// WithRawBase overrides the raw file host.
func WithRawBase(base string) GitOption {
	return func(g *Git) { g.rawBase = strings.TrimRight(base, "/") }
}

// NewGit creates a store for repoURL, which must look like
// https://github.com/<owner>/<repo>[.git].
func NewGit(repoURL, dir, file string, local *Local, opts ...GitOption) (*Git, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	g := &Git{
		owner:   owner,
		repo:    repo,
		dir:     strings.Trim(dir, "/"),
		file:    strings.Trim(file, "/"),
		rawBase: DefaultRawBase,
		client:  &http.Client{Timeout: 30 * time.Second},
		local:   local,
		logger:  slog.Default(),
	}
	if local != nil {
		g.logger = local.logger
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// ParseRepoURL extracts owner and repository from a GitHub URL.
func ParseRepoURL(raw string) (owner, repo string, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", fmt.Errorf("snapshot: git url must be provided: %w", apperr.ErrConfig)
	}
	u, perr := url.Parse(raw)
	if perr != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return "", "", fmt.Errorf("snapshot: could not parse git url %q: %w", raw, apperr.ErrConfig)
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", fmt.Errorf("snapshot: could not parse git url %q: %w", raw, apperr.ErrConfig)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("snapshot: could not parse git url %q: %w", raw, apperr.ErrConfig)
	}
	repo = strings.TrimSuffix(parts[1], ".git")
	if repo == "" {
		return "", "", fmt.Errorf("snapshot: could not parse git url %q: %w", raw, apperr.ErrConfig)
	}
	return parts[0], repo, nil
}

// RawURL returns the raw file URL of the snapshot on branch.
func (g *Git) RawURL(branch string) string {
	return fmt.Sprintf("%s/%s/%s/%s/%s/%s", g.rawBase, g.owner, g.repo, branch, g.dir, g.file)
}

// Load fetches the snapshot from the first branch that has it. A transport
// failure ends the attempt immediately.
func (g *Git) Load(ctx context.Context) (*graph.Entity, error) {
	for _, branch := range Branches {
		data, found, err := g.fetch(ctx, g.RawURL(branch))
		if err != nil {
			return nil, err
		}
		if !found {
			g.logger.Debug("snapshot: branch has no baseline", slog.String("branch", branch))
			continue
		}
		root, err := graph.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %s@%s: %w", g.repo, branch, err)
		}
		g.logger.Info("snapshot: remote baseline loaded",
			slog.String("repo", g.owner+"/"+g.repo),
			slog.String("branch", branch))
		return root, nil
	}
	return nil, fmt.Errorf("snapshot: unable to find main or master branch with %s/%s in %s/%s: %w",
		g.dir, g.file, g.owner, g.repo, apperr.ErrNotFound)
}

func (g *Git) fetch(ctx context.Context, u string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, fmt.Errorf("snapshot: fetch: %w: %w", apperr.ErrCanceled, ctxErr)
		}
		return nil, false, fmt.Errorf("snapshot: fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: read body: %w", err)
	}
	return data, true, nil
}

// Save writes the snapshot to the local checkout.
func (g *Git) Save(ctx context.Context, root *graph.Entity) error {
	if g.local == nil {
		return fmt.Errorf("snapshot: git store has no local checkout: %w", apperr.ErrConfig)
	}
	return g.local.Save(ctx, root)
}
