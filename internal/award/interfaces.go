package award

import (
	"context"
	"time"
)

// Store persists canonical records. Upsert receives one chunk and must be
// idempotent per natural key.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
}

// Lister reads stored records for the interactive listing.
type Lister interface {
	List(ctx context.Context, q Query) ([]Record, error)
}

// BlobStore writes rendered artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher hands payloads to an external delivery channel.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for cycle requests.
type Queue interface {
	Enqueue(ctx context.Context, req CycleRequest) error
	Dequeue(ctx context.Context) (CycleRequest, error)
}

// Hasher computes digests used for natural keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}
