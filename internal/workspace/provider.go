// Package workspace defines the document file-system abstraction.
package workspace

import "github.com/starford/ehwaz/internal/models"

// Provider is the interface for workspace file operations.
type Provider interface {
	// List returns metadata for every document file under dir (relative to
	// workspace root).
	List(dir string) ([]models.DocumentMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
	// Stamp returns the current modification stamp of path, or "" when the
	// file does not exist.
	Stamp(path string) string
}
