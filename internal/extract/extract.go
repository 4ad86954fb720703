// Package extract turns source files into raw dependency identifiers.
package extract

import "context"

// Extractor returns the dependency identifiers named by the file at path, in
// source order. Repeated identifiers are repeated in the result. An
// unreadable file yields an empty list rather than an error.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, path string) ([]string, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, path string) ([]string, error) {
	return f(ctx, path)
}

// Static returns an extractor answering from a fixed path → identifiers map.
// Unknown paths have no dependencies.
func Static(m map[string][]string) Extractor {
	return Func(func(_ context.Context, path string) ([]string, error) {
		return m[path], nil
	})
}
