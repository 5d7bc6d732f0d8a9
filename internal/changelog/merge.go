package changelog

import "sort"

// Merge combines event sets into one deduplicated, timestamp-sorted set.
// Identity is Event.MergeKey; when two events share a key the first
// occurrence wins, so callers pass their trusted set before the incoming
// one. The sort is stable: events with equal or missing timestamps keep
// their relative position, a deliberate weak ordering rather than a strict
// total order.
func Merge(sets ...[]Event) []Event {
	seen := make(map[string]struct{})
	var merged []Event
	for _, set := range sets {
		for _, evt := range set {
			key := evt.MergeKey()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, evt)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].TS < merged[j].TS
	})
	return merged
}

// Log is the process-local changelog cache for one list instance: the
// working set of events, the source of truth until the next successful
// fetch.
type Log struct {
	events []Event
}

// NewLog creates a changelog cache seeded with the given events.
func NewLog(events []Event) *Log {
	return &Log{events: Merge(events)}
}

// Events returns a copy of the current event set.
func (l *Log) Events() []Event {
	if l == nil {
		return nil
	}
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of events in the cache.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	return len(l.events)
}

// Add merges incoming events into the cache and reports how many were new.
func (l *Log) Add(incoming ...Event) int {
	before := len(l.events)
	l.events = Merge(l.events, incoming)
	return len(l.events) - before
}

// Replace swaps the cache contents for the given set, deduplicated.
func (l *Log) Replace(events []Event) {
	l.events = Merge(events)
}
