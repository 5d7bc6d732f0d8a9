// Package changelog defines the append-only event model shared by all list
// clients, the flat key/value wire codec, timestamp-keyed merge, and the
// deterministic replay that projects an event set into live entities.
package changelog
