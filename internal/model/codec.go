package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeBatch decodes a list of position events. data may be a JSON array
// or an object wrapping the array under "drivers" or "positions". Elements
// that fail to decode are skipped and counted in bad, so one malformed
// element does not discard the rest of the batch.
func DecodeBatch(data []byte) (evs []RawPositionEvent, bad int, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0, errors.New("empty batch payload")
	}

	var raw []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, 0, fmt.Errorf("decoding batch: %w", err)
		}
	case '{':
		var wrapped struct {
			Drivers   []json.RawMessage `json:"drivers"`
			Positions []json.RawMessage `json:"positions"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, 0, fmt.Errorf("decoding batch: %w", err)
		}
		raw = wrapped.Drivers
		if raw == nil {
			raw = wrapped.Positions
		}
	default:
		return nil, 0, fmt.Errorf("decoding batch: unexpected payload starting with %q", data[0])
	}

	evs = make([]RawPositionEvent, 0, len(raw))
	for _, r := range raw {
		var ev RawPositionEvent
		if err := json.Unmarshal(r, &ev); err != nil {
			bad++
			continue
		}
		evs = append(evs, ev)
	}
	return evs, bad, nil
}
