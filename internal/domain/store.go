package domain

import (
	"context"
	"io"
)

// DecisionStore is the optional queryable mirror of per-tick decisions.
// The JSONL event log remains the source of truth; this store only serves
// ad-hoc audit queries.
type DecisionStore interface {
	Insert(ctx context.Context, correlationID string, d Decision) error
	ListRecent(ctx context.Context, limit int) ([]Decision, error)
}

// OrderStore is the optional queryable mirror of emitted orders.
type OrderStore interface {
	Insert(ctx context.Context, correlationID string, o Order) error
	ListByStrategy(ctx context.Context, strategyID string, limit int) ([]Order, error)
}

// BlobWriter uploads a single object to blob storage. PutMultipart splits the
// payload into parts of partSize; callers use it for payloads large enough
// that a single request would be wasteful.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// RunArchiver uploads a completed run's event-log streams to blob storage.
type RunArchiver interface {
	ArchiveRun(ctx context.Context, runDir, correlationID string, pid int) (int, error)
}
