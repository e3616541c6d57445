// Package storage provides the blob store the downloaded attachments are
// written to.
package storage

import (
	"context"
)

// BlobWriter writes a byte payload under a storage key. The store is
// existence-agnostic: writing an existing key overwrites it.
type BlobWriter interface {
	WriteBytes(ctx context.Context, key string, payload []byte) error
}
