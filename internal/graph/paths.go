package graph

import (
	"path/filepath"
	"strings"
	"time"
)

// RootPath is the canonical path of the project root.
const RootPath = "./"

// CanonicalPath converts abs into a root-relative, forward-slash path.
// Directories keep a trailing slash and the root itself becomes "./".
func CanonicalPath(root, abs string, isDir bool) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		rel = abs
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), "/")
	if rel == "." || rel == "" {
		return RootPath
	}
	if isDir {
		return "./" + rel + "/"
	}
	return "./" + rel
}

// NormalizePath cleans an already-relative path read from a snapshot or
// supplied by a caller: backslashes become slashes and a "./" prefix is
// enforced. A trailing slash is preserved.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" || p == "." || p == RootPath {
		return RootPath
	}
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return "./" + p
}

// Namespace derives the dot-separated namespace of a canonical path:
// "./Domain/Models/" becomes "Domain.Models" and the root becomes "".
func Namespace(path string) string {
	ns := strings.TrimPrefix(NormalizePath(path), "./")
	ns = strings.Trim(ns, "/")
	return strings.ReplaceAll(ns, "/", ".")
}

// IsInternal reports whether id names something inside namespace ns, i.e. id
// equals ns or is nested below it. Nothing is internal to the empty root
// namespace.
func IsInternal(ns, id string) bool {
	if ns == "" {
		return false
	}
	if strings.EqualFold(id, ns) {
		return true
	}
	if len(id) <= len(ns) || id[len(ns)] != '.' {
		return false
	}
	return strings.EqualFold(id[:len(ns)], ns)
}

// NormalizeTime converts t to UTC with whole-second precision so that
// filesystem and snapshot timestamps compare stably.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
