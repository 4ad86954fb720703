// Package scan walks a project tree under exclusion rules and detects which
// directories changed since a baseline graph was taken.
package scan

import (
	"path"
	"sort"
	"strings"
)

// Rules is a compiled exclusion set.
type Rules struct {
	// DirPrefixes are root-relative directory prefixes with a trailing
	// slash, e.g. "src/legacy/" or "Tests/".
	DirPrefixes []string
	// Segments are path components excluded wherever they appear, e.g.
	// "bin", "obj", ".git". A leading or trailing "*" makes them suffix or
	// prefix matches.
	Segments []string
	// FileSuffixes are filename endings such as ".dev.cs".
	FileSuffixes []string
}

// CompileExclusions sorts raw exclusion patterns into rule buckets. The
// result does not depend on the order of raw.
func CompileExclusions(raw []string) Rules {
	var dirs, segs, sufs []string

	for _, entry := range raw {
		p := strings.TrimSpace(entry)
		if p == "" {
			continue
		}
		p = strings.TrimPrefix(p, "**/")
		p = strings.ReplaceAll(p, `\`, "/")
		p = strings.TrimSuffix(p, ".")
		if p == "" {
			continue
		}

		switch {
		case strings.HasSuffix(p, "/"):
			p = strings.TrimPrefix(p, "./")
			if p == "" || p == "/" {
				continue
			}
			dirs = append(dirs, p)
		case strings.Contains(p, "/"):
			dirs = append(dirs, strings.TrimPrefix(p, "./")+"/")
		case strings.HasPrefix(p, "*."):
			sufs = append(sufs, p[1:])
		default:
			segs = append(segs, p)
		}
	}

	return Rules{
		DirPrefixes:  dedupe(dirs),
		Segments:     dedupe(segs),
		FileSuffixes: dedupe(sufs),
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if i > 0 && s == in[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Empty reports whether no rule is set.
func (r Rules) Empty() bool {
	return len(r.DirPrefixes) == 0 && len(r.Segments) == 0 && len(r.FileSuffixes) == 0
}

// ExcludesDir reports whether the directory at rel (root-relative, forward
// slashes) is excluded together with its subtree.
func (r Rules) ExcludesDir(rel string) bool {
	return r.matchPrefix(rel) || r.matchSegment(rel)
}

// ExcludesFile reports whether the file at rel is excluded.
func (r Rules) ExcludesFile(rel string) bool {
	if r.matchPrefix(rel) || r.matchSegment(rel) {
		return true
	}
	name := strings.ToLower(path.Base(rel))
	for _, suf := range r.FileSuffixes {
		if strings.HasSuffix(name, strings.ToLower(suf)) {
			return true
		}
	}
	return false
}

func (r Rules) matchPrefix(rel string) bool {
	withSlash := strings.ToLower(rel + "/")
	for _, p := range r.DirPrefixes {
		if strings.HasPrefix(withSlash, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (r Rules) matchSegment(rel string) bool {
	if len(r.Segments) == 0 {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" {
			continue
		}
		for _, ban := range r.Segments {
			if matchSegment(seg, ban) {
				return true
			}
		}
	}
	return false
}

// matchSegment compares one path component against a segment rule. Leading
// dots are ignored on both sides so ".git" and "git" are the same rule.
func matchSegment(seg, pattern string) bool {
	seg = strings.TrimLeft(seg, ".")
	switch {
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(seg, strings.TrimLeft(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(seg, strings.TrimLeft(strings.TrimRight(pattern, "*"), "."))
	default:
		return seg == strings.TrimLeft(pattern, ".")
	}
}
