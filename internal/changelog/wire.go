package changelog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire field names. The transport representation of an event is a flat
// string key/value map; non-scalar payload fields are serialized to a
// compact text form.
const (
	fieldOp        = "op"
	fieldID        = "id"
	fieldTS        = "ts"
	fieldWriter    = "writer"
	fieldText      = "text"
	fieldCategory  = "category"
	fieldColor     = "color"
	fieldQuantity  = "qty"
	fieldMinutes   = "minutes"
	fieldEnjoyment = "enjoyment"
	fieldIndex     = "index"
	fieldAfter     = "after"
	fieldOrder     = "order"
)

const orderSeparator = ","

// Encode converts an event to its flat wire map. Zero-valued payload
// fields are omitted to keep the wire form compact.
func Encode(evt Event) map[string]string {
	fields := map[string]string{
		fieldOp: string(evt.Op),
		fieldTS: evt.TS,
	}
	if evt.ID != "" {
		fields[fieldID] = evt.ID
	}
	if evt.Writer != "" {
		fields[fieldWriter] = evt.Writer
	}
	if evt.Text != "" {
		fields[fieldText] = evt.Text
	}
	if evt.Category != "" {
		fields[fieldCategory] = evt.Category
	}
	if evt.Color != "" {
		fields[fieldColor] = evt.Color
	}
	if evt.Quantity != 0 {
		fields[fieldQuantity] = strconv.Itoa(evt.Quantity)
	}
	if evt.Minutes != 0 {
		fields[fieldMinutes] = strconv.Itoa(evt.Minutes)
	}
	if evt.Enjoyment != 0 {
		fields[fieldEnjoyment] = strconv.Itoa(evt.Enjoyment)
	}
	if evt.Index != nil {
		fields[fieldIndex] = strconv.Itoa(*evt.Index)
	}
	if evt.After != "" {
		fields[fieldAfter] = evt.After
	}
	if len(evt.Order) > 0 {
		fields[fieldOrder] = strings.Join(evt.Order, orderSeparator)
	}
	return fields
}

// Decode parses a flat wire map back into an event. Unknown keys are
// ignored for forward compatibility; unparseable numeric fields are an
// error so callers can discard the whole collection instead of partially
// trusting it.
func Decode(fields map[string]string) (Event, error) {
	evt := Event{
		Op:       Op(fields[fieldOp]),
		ID:       fields[fieldID],
		TS:       fields[fieldTS],
		Writer:   fields[fieldWriter],
		Text:     fields[fieldText],
		Category: fields[fieldCategory],
		Color:    fields[fieldColor],
		After:    fields[fieldAfter],
	}
	if evt.Op == "" {
		return Event{}, fmt.Errorf("event op is required")
	}

	var err error
	if evt.Quantity, err = decodeInt(fields, fieldQuantity); err != nil {
		return Event{}, err
	}
	if evt.Minutes, err = decodeInt(fields, fieldMinutes); err != nil {
		return Event{}, err
	}
	if evt.Enjoyment, err = decodeInt(fields, fieldEnjoyment); err != nil {
		return Event{}, err
	}
	if raw, ok := fields[fieldIndex]; ok {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return Event{}, fmt.Errorf("parse %s: %w", fieldIndex, err)
		}
		evt.Index = &idx
	}
	if raw, ok := fields[fieldOrder]; ok && raw != "" {
		evt.Order = strings.Split(raw, orderSeparator)
	}
	return evt, nil
}

func decodeInt(fields map[string]string, key string) (int, error) {
	raw, ok := fields[key]
	if !ok || raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return value, nil
}

// MarshalEvents serializes an event collection as structured text (a JSON
// array of wire maps). This is the form held by the local fallback slot
// and exchanged with the remote store.
func MarshalEvents(events []Event) ([]byte, error) {
	wire := make([]map[string]string, 0, len(events))
	for _, evt := range events {
		wire = append(wire, Encode(evt))
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	return data, nil
}

// UnmarshalEvents parses a serialized event collection. Any malformed
// entry fails the whole collection; callers fall back to their last good
// copy rather than trusting a partial one.
func UnmarshalEvents(data []byte) ([]Event, error) {
	var wire []map[string]string
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	events := make([]Event, 0, len(wire))
	for i, fields := range wire {
		evt, err := Decode(fields)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, nil
}
