package storage

import "context"

// BlobStore persists finished sticker assets. Implementations return the
// canonical key the asset was stored under.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}
