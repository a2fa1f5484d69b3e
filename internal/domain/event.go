package domain

import "time"

// EventKind names the kinds of events emitted on a job's stream.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventChunk    EventKind = "chunk"
	EventError    EventKind = "error"
	EventDone     EventKind = "done"
)

// Terminal reports whether the event ends its stream.
func (k EventKind) Terminal() bool {
	return k == EventError || k == EventDone
}

// StreamEvent is one ordered unit emitted by a generation job. Seq strictly
// increases within a job starting at 1.
type StreamEvent struct {
	JobID     string         `json:"job_id"`
	Seq       uint64         `json:"seq"`
	Kind      EventKind      `json:"kind"`
	Payload   map[string]any `json:"payload"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// ChunkText returns the text fragment carried by a chunk event.
func (e StreamEvent) ChunkText() string {
	if e.Kind != EventChunk {
		return ""
	}
	s, _ := e.Payload["text"].(string)
	return s
}

// PayloadString returns a string field from the payload.
func (e StreamEvent) PayloadString(key string) string {
	s, _ := e.Payload[key].(string)
	return s
}
