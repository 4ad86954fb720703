package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/archlens/archlens/internal/apperr"
)

// Modules maps an absolute directory path to the absolute paths of its
// surviving immediate contents (sub-directories and matching files).
type Modules map[string][]string

// Keys returns the module paths in sorted order.
func (m Modules) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Scanner enumerates a project tree.
type Scanner struct {
	root       string
	extensions map[string]struct{}
	rules      Rules
	gitignore  *ignore.GitIgnore
	logger     *slog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithGitignore additionally excludes paths matched by the project's
// .gitignore. A missing file is not an error.
func WithGitignore() ScannerOption {
	return func(s *Scanner) {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(s.root, ".gitignore"))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				s.logger.Warn("scan: gitignore unreadable", slog.String("error", err.Error()))
			}
			return
		}
		s.gitignore = gi
	}
}

// WithGitignoreLines compiles gitignore-style lines directly.
func WithGitignoreLines(lines ...string) ScannerOption {
	return func(s *Scanner) {
		s.gitignore = ignore.CompileIgnoreLines(lines...)
	}
}

// WithScanLogger sets the logger used for skipped entries.
func WithScanLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a scanner rooted at root (made absolute) that keeps
// files whose extension is in extensions.
func NewScanner(root string, extensions []string, rules Rules, opts ...ScannerOption) (*Scanner, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("scan: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("scan: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan: root is not a directory: %s", abs)
	}

	s := &Scanner{
		root:       abs,
		extensions: make(map[string]struct{}, len(extensions)),
		rules:      rules,
		logger:     slog.Default(),
	}
	for _, ext := range extensions {
		s.extensions[NormalizeExtension(ext)] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute project root.
func (s *Scanner) Root() string { return s.root }

// Accepts reports whether the file at abs has a tracked extension.
func (s *Scanner) Accepts(abs string) bool {
	_, ok := s.extensions[strings.ToLower(filepath.Ext(abs))]
	return ok
}

// NormalizeExtension lower-cases ext and ensures a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// Scan walks the tree depth-first with an explicit stack. Directories that
// cannot be read are skipped. A symlinked directory is followed only when
// it leads outside the root to a directory not yet entered. The result
// always contains the root.
func (s *Scanner) Scan(ctx context.Context) (Modules, error) {
	result := Modules{s.root: {}}
	rootTarget := s.resolve(s.root)
	visited := map[string]struct{}{rootTarget: {}}
	stack := []string{s.root}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scan: %w: %w", apperr.ErrCanceled, err)
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			s.logger.Debug("scan: skip unreadable dir",
				slog.String("path", dir),
				slog.String("error", err.Error()))
			continue
		}

		contents := make([]string, 0, len(entries))
		for _, entry := range entries {
			abs := filepath.Join(dir, entry.Name())
			rel := s.rel(abs)

			isDir := entry.IsDir()
			link := entry.Type()&os.ModeSymlink != 0
			if link {
				// Follow symlinks to learn the target kind; dangling ones are skipped.
				info, statErr := os.Stat(abs)
				if statErr != nil {
					continue
				}
				isDir = info.IsDir()
			}

			if isDir {
				if s.rules.ExcludesDir(rel) || s.ignored(rel, true) {
					continue
				}
				if _, seen := result[abs]; seen {
					continue
				}
				target := s.resolve(abs)
				if _, seen := visited[target]; seen || (link && within(rootTarget, target)) {
					s.logger.Debug("scan: skip linked dir",
						slog.String("path", rel),
						slog.String("target", target))
					continue
				}
				visited[target] = struct{}{}
				result[abs] = []string{}
				stack = append(stack, abs)
				contents = append(contents, abs)
				continue
			}

			if !s.Accepts(abs) || s.rules.ExcludesFile(rel) || s.ignored(rel, false) {
				continue
			}
			contents = append(contents, abs)
		}

		sort.Strings(contents)
		result[dir] = contents
	}

	return result, nil
}

func (s *Scanner) rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) ignored(rel string, isDir bool) bool {
	if s.gitignore == nil {
		return false
	}
	if isDir && s.gitignore.MatchesPath(rel+"/") {
		return true
	}
	return s.gitignore.MatchesPath(rel)
}

// within reports whether target is root or lies beneath it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve evaluates symlinks in abs, returning abs itself when that fails.
func (s *Scanner) resolve(abs string) string {
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}
