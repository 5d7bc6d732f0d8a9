// Package engine ties one list's changelog cache, event store, and local
// fallback together behind an explicit engine instance: optimistic local
// writes, a fixed-cadence reconciliation loop, and a degraded mode that
// keeps the list usable while the remote store is unreachable.
package engine
