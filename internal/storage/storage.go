package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/daylists/internal/changelog"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable indicates the store cannot currently be reached.
var ErrUnavailable = errors.New("store unavailable")

// EventStore is the durable home of a list's append-only event collection.
type EventStore interface {
	// Fetch returns the full event collection for a list, ordered by
	// timestamp ascending.
	Fetch(ctx context.Context, list changelog.ListID) ([]changelog.Event, error)
	// Append durably appends one event. Appending an event already present
	// (same merge identity) is absorbed, not an error.
	Append(ctx context.Context, list changelog.ListID, evt changelog.Event) error
}

// SnapshotStore holds the last known full event collection per list, the
// engine's durable fallback when the remote store is unreachable.
type SnapshotStore interface {
	Save(ctx context.Context, list changelog.ListID, events []changelog.Event) error
	// Load returns the stored snapshot, or ErrNotFound when the slot is
	// empty.
	Load(ctx context.Context, list changelog.ListID) ([]changelog.Event, error)
}
