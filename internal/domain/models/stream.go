package models

import (
	"encoding/json"
	"fmt"
)

// Stream event type constants. One StreamEvent is one frame of the
// streamed chat response protocol.
const (
	StreamEventStart          = "start"
	StreamEventTextDelta      = "text-delta"
	StreamEventReasoningDelta = "reasoning-delta"
	StreamEventData           = "data"
	StreamEventFinish         = "finish"
	StreamEventError          = "error"
)

// StreamEvent is a transient unit emitted during a turn. It exists only for
// the duration of one HTTP stream and is never persisted. ID is unique per
// frame so clients can deduplicate on replay; array position is not a
// reliable identity.
type StreamEvent struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Delta   string          `json:"delta,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// FormatFrame renders an event as one wire frame:
//
//	data: {"type":"text-delta","id":"...","delta":"..."}
//	\n
func FormatFrame(ev StreamEvent) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal stream event: %w", err)
	}
	return fmt.Sprintf("data: %s\n\n", payload), nil
}

// StreamTerminator is the final frame closing a successful or failed stream.
const StreamTerminator = "data: [DONE]\n\n"
