package changelog

import (
	"fmt"
	"strings"
	"time"
)

// Op identifies the kind of a changelog event.
type Op string

// Lifecycle ops.
const (
	// OpAdded records a new entity entering the list.
	OpAdded Op = "added"
	// OpRemoved records permanent removal of an entity. No tombstone is
	// retained; the entity and its position simply disappear on replay.
	OpRemoved Op = "removed"
)

// Status-toggle ops.
const (
	// OpChecked marks a shopping item as checked off.
	OpChecked Op = "checked"
	// OpUnchecked clears the checked flag.
	OpUnchecked Op = "unchecked"
	// OpCompleted marks a planner task as done.
	OpCompleted Op = "completed"
	// OpUncompleted clears the completed flag.
	OpUncompleted Op = "uncompleted"
)

// Ordering ops.
const (
	// OpReorder replaces the whole display order with an explicit sequence.
	OpReorder Op = "reorder"
	// OpMoved moves one entity to an explicit index, after an anchor, or to
	// the end when neither is given.
	OpMoved Op = "moved"
)

// Attribute-update ops.
const (
	// OpEnjoymentUpdate overwrites a task's enjoyment score.
	OpEnjoymentUpdate Op = "enjoyment-update"
	// OpQuantityUpdate overwrites an item's quantity.
	OpQuantityUpdate Op = "quantity-update"
	// OpColorUpdate overwrites an entity's color.
	OpColorUpdate Op = "color-update"
	// OpTextUpdate overwrites an entity's text.
	OpTextUpdate Op = "text-update"
)

// Known reports whether the op belongs to the closed vocabulary. Replay
// ignores unknown ops rather than failing; Known exists so the write path
// can reject ops it never produced.
func (o Op) Known() bool {
	switch o {
	case OpAdded, OpRemoved, OpChecked, OpUnchecked, OpCompleted,
		OpUncompleted, OpReorder, OpMoved, OpEnjoymentUpdate,
		OpQuantityUpdate, OpColorUpdate, OpTextUpdate:
		return true
	}
	return false
}

// Kind identifies which list family a changelog belongs to.
type Kind string

const (
	// KindShopping is the shopping list.
	KindShopping Kind = "shopping"
	// KindPlanner is the daily planner.
	KindPlanner Kind = "planner"
)

// IsValid reports whether the kind is one of the supported list families.
func (k Kind) IsValid() bool {
	return k == KindShopping || k == KindPlanner
}

// ListID identifies one list instance: an owner, a list kind, and the day
// the list belongs to (a YYYY-MM-DD key).
type ListID struct {
	Owner string
	Kind  Kind
	Day   string
}

// Validate checks the list identity fields.
func (l ListID) Validate() error {
	if strings.TrimSpace(l.Owner) == "" {
		return fmt.Errorf("list owner is required")
	}
	if !l.Kind.IsValid() {
		return fmt.Errorf("list kind %q is not supported", l.Kind)
	}
	if strings.TrimSpace(l.Day) == "" {
		return fmt.Errorf("list day is required")
	}
	return nil
}

// Key returns the storage key for the list instance.
func (l ListID) Key() string {
	return l.Owner + "/" + string(l.Kind) + "/" + l.Day
}

// TimestampLayout is the fixed-width ISO-8601 layout used for event
// timestamps. Fixed width in UTC makes lexicographic comparison agree with
// chronological order, which is what merge and replay sort by.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t as an event timestamp.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Event is an immutable record of one state transition. Correcting a
// mistake means emitting a compensating event, never rewriting history.
type Event struct {
	// Op identifies the transition.
	Op Op
	// ID is the entity the event applies to. Empty for pure-reorder events.
	ID string
	// TS is the event timestamp, ISO-8601. The store assigns the
	// authoritative value at durable-write time; the writer stamps a
	// provisional value before durability is confirmed.
	TS string
	// Writer identifies the writer connection that produced the event.
	// Part of the merge identity; may be empty for legacy events.
	Writer string

	// Payload fields. Which ones are meaningful depends on Op.
	Text      string
	Category  string
	Color     string
	Quantity  int
	Minutes   int
	Enjoyment int
	// Index is the target position for moved events. Pointer so that
	// position zero is distinguishable from "not given".
	Index *int
	// After is the anchor id for moved events.
	After string
	// Order is the full id sequence for reorder events.
	Order []string
}

// MergeKey returns the identity used for deduplication. Events carrying a
// writer id are keyed by (ts, writer); events without one fall back to the
// raw timestamp, preserving the weaker legacy semantics.
func (e Event) MergeKey() string {
	if e.Writer == "" {
		return e.TS
	}
	return e.TS + "|" + e.Writer
}

// Validate checks that the event is well formed enough to append.
func (e Event) Validate() error {
	if !e.Op.Known() {
		return fmt.Errorf("op %q is not in the vocabulary", e.Op)
	}
	if e.Op != OpReorder && strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("op %q requires an entity id", e.Op)
	}
	if e.Op == OpReorder && len(e.Order) == 0 {
		return fmt.Errorf("reorder requires an order sequence")
	}
	return nil
}
