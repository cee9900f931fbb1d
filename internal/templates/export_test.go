package templates

import "io/fs"

// NewFromFS exposes newFromFS for testing with in-memory catalogues.
func NewFromFS(fsys fs.FS, opts Options) (*Registry, error) {
	return newFromFS(fsys, opts)
}
