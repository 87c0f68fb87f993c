package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to cold storage. PutLarge is for payloads whose
// size is unknown or big, e.g. a month of match dumps; implementations may
// stream it in parts.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutLarge(ctx context.Context, path string, data io.Reader, contentType string) error
}
