package core

import (
	"context"
	"io"
)

// FileStorage stores user uploaded files (hall images...).
type FileStorage interface {
	// Save stores the content of r under a name derived from filename and returns its public URL.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Delete removes the file behind a URL previously returned by Save.
	Delete(ctx context.Context, url string) error
}
