// Package sqlite implements the server-side event store on SQLite.
//
// Events are stored in a single append-only table keyed by
// (list_key, ts, writer). Appending a duplicate identity is absorbed so
// clients retrying an unacknowledged write converge instead of erroring.
package sqlite
