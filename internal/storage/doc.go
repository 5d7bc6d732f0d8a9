// Package storage defines the persistence interfaces for the changelog
// engine.
//
// EventStore is the remote, durable home of a list's event collection;
// SnapshotStore is the local fallback slot the engine degrades to when the
// remote is unreachable. Implementations live in subpackages (sqlite,
// httpkv, boltcache).
//
// # Error Types
//
//   - ErrNotFound: a requested record or slot is missing.
//   - ErrUnavailable: the store cannot be reached; callers fall back to
//     cached state rather than failing.
package storage
