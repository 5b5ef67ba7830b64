package store

import (
	"context"

	"github.com/worklink/offline-sync/internal/domain"
)

// QueueStore defines all persistence operations over the named action queues.
// The SQLite implementation is in sqlite.go.
// Tests use a hand-written mock (mock_store.go).
//
// All operations are safe for concurrent callers: each is atomic with
// respect to the queue it targets. Composite sequences (read-all then
// delete-one) are not atomic as a unit; replay logic must tolerate a record
// disappearing between its read and its delete.
type QueueStore interface {
	// AddItem appends the action to the tail of its queue and assigns its ID.
	// IDs are monotonically increasing and never reused.
	AddItem(ctx context.Context, a *domain.QueuedAction) error

	// GetAllItems returns the pending records of a queue in insertion order.
	// A queue that has never been written to yields an empty slice, not an error.
	GetAllItems(ctx context.Context, q domain.Queue) ([]*domain.QueuedAction, error)

	// GetItem fetches one record by key, regardless of status.
	GetItem(ctx context.Context, q domain.Queue, id int64) (*domain.QueuedAction, error)

	// DeleteItem removes a record by key. Deleting a missing key is a no-op,
	// not an error: a retry race can legitimately delete twice.
	DeleteItem(ctx context.Context, q domain.Queue, id int64) error

	// ClearStore empties a queue. Administrative resets only.
	ClearStore(ctx context.Context, q domain.Queue) error

	// RecordFailure increments the record's attempt count and stores the
	// latest replay error, leaving it pending for the next opportunity.
	RecordFailure(ctx context.Context, q domain.Queue, id int64, errMsg string) error

	// MarkAbandoned moves a pending record to the terminal abandoned state.
	// Returns ErrNotFound for a missing record and ErrAlreadyAbandoned when
	// the record is abandoned already.
	MarkAbandoned(ctx context.Context, q domain.Queue, id int64, errMsg string) error

	// ListAbandoned returns the abandoned records of a queue in insertion order.
	ListAbandoned(ctx context.Context, q domain.Queue) ([]*domain.QueuedAction, error)

	// RequeueAbandoned resets an abandoned record to pending with zero
	// attempts. Returns ErrNotFound or ErrNotAbandoned as appropriate.
	RequeueAbandoned(ctx context.Context, q domain.Queue, id int64) error

	// Depths returns the pending and abandoned record counts per queue.
	Depths(ctx context.Context) (pending, abandoned map[domain.Queue]int, err error)

	Close() error
}
