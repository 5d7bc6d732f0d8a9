package changelog

import "sort"

// Entity is the live projection of one list member, derived entirely from
// the event log.
type Entity struct {
	ID        string
	Text      string
	Category  string
	Color     string
	Quantity  int
	Minutes   int
	Enjoyment int
	Checked   bool
	Completed bool
}

// Replay projects an event set into the ordered sequence of live entities.
// It is a pure, deterministic, idempotent function of its input: the event
// set is stably sorted by timestamp and folded in order, so arrival order
// is irrelevant. Callers deduplicate first (see Merge); Replay itself does
// not.
func Replay(events []Event) []Entity {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TS < sorted[j].TS
	})

	entities := make(map[string]*Entity)
	var order []string

	for _, evt := range sorted {
		switch evt.Op {
		case OpAdded:
			// Last added wins for the same id; newest insertion goes to
			// the front of the order.
			entities[evt.ID] = &Entity{
				ID:        evt.ID,
				Text:      evt.Text,
				Category:  evt.Category,
				Color:     evt.Color,
				Quantity:  evt.Quantity,
				Minutes:   evt.Minutes,
				Enjoyment: evt.Enjoyment,
			}
			order = removeID(order, evt.ID)
			order = append([]string{evt.ID}, order...)
		case OpRemoved:
			delete(entities, evt.ID)
			order = removeID(order, evt.ID)
		case OpChecked:
			if e, ok := entities[evt.ID]; ok {
				e.Checked = true
			}
		case OpUnchecked:
			if e, ok := entities[evt.ID]; ok {
				e.Checked = false
			}
		case OpCompleted:
			if e, ok := entities[evt.ID]; ok {
				e.Completed = true
			}
		case OpUncompleted:
			if e, ok := entities[evt.ID]; ok {
				e.Completed = false
			}
		case OpReorder:
			// The supplied sequence replaces the order wholesale, filtered
			// to ids that still exist. Stale ids referencing since-removed
			// entities are silently dropped.
			replacement := make([]string, 0, len(evt.Order))
			for _, id := range evt.Order {
				if _, ok := entities[id]; ok {
					replacement = append(replacement, id)
				}
			}
			order = replacement
		case OpMoved:
			if _, ok := entities[evt.ID]; !ok {
				continue
			}
			order = removeID(order, evt.ID)
			order = insertID(order, evt)
		case OpEnjoymentUpdate:
			if e, ok := entities[evt.ID]; ok {
				e.Enjoyment = evt.Enjoyment
			}
		case OpQuantityUpdate:
			if e, ok := entities[evt.ID]; ok {
				e.Quantity = evt.Quantity
			}
		case OpColorUpdate:
			if e, ok := entities[evt.ID]; ok {
				e.Color = evt.Color
			}
		case OpTextUpdate:
			if e, ok := entities[evt.ID]; ok {
				e.Text = evt.Text
			}
		default:
			// Unknown op: forward-compatible no-op.
		}
	}

	// Map the order through the entity map, dropping anything dangling.
	result := make([]Entity, 0, len(order))
	for _, id := range order {
		if e, ok := entities[id]; ok {
			result = append(result, *e)
		}
	}
	return result
}

func removeID(order []string, id string) []string {
	for i, existing := range order {
		if existing == id {
			return append(order[:i:i], order[i+1:]...)
		}
	}
	return order
}

// insertID reinserts the moved id at an explicit index, immediately after
// a named anchor, or at the end when neither is given.
func insertID(order []string, evt Event) []string {
	if evt.Index != nil {
		idx := *evt.Index
		if idx < 0 {
			idx = 0
		}
		if idx > len(order) {
			idx = len(order)
		}
		out := make([]string, 0, len(order)+1)
		out = append(out, order[:idx]...)
		out = append(out, evt.ID)
		return append(out, order[idx:]...)
	}
	if evt.After != "" {
		for i, existing := range order {
			if existing == evt.After {
				out := make([]string, 0, len(order)+1)
				out = append(out, order[:i+1]...)
				out = append(out, evt.ID)
				return append(out, order[i+1:]...)
			}
		}
	}
	return append(order, evt.ID)
}
