// Package storage writes and reads artifacts inside a project directory.
package storage

// Provider is the interface for project artifact files such as snapshots and
// rendered diagrams. Paths are relative to the project root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// Delete removes the file at path.
	Delete(path string) error
	// Abs returns the absolute location of path.
	Abs(path string) (string, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
