package domain

import "context"

// ArtifactRepository persists saved artifacts.
type ArtifactRepository interface {
	Create(ctx context.Context, rec *ArtifactRecord) error
	GetByID(ctx context.Context, id string) (*ArtifactRecord, error)
}

// BlobStore stores rendered export documents.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the document at key, a key returned by Put. Deleting a
	// missing document is not an error.
	Delete(ctx context.Context, key string) error
}
