// Package artifacts stores the executor's (C4) per-attempt screenshots and
// response logs, keyed by job and directory so a retried attempt overwrites
// its own prior artifact rather than accumulating duplicates. Two
// backends are supported, selected by config.StorageConfig.Type: a local
// filesystem store for development and a GCS store for production,
// mirroring the fs/gcs split the rest of this codebase uses for its other
// durable blobs.
package artifacts

import "context"

// Store persists opaque artifact bytes (a PNG screenshot or a text
// response log) under a content key.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (uri string, err error)
}
