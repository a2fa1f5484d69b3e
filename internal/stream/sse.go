// Package stream delivers generation events to callers over Server-Sent
// Events and decodes them on the client side.
package stream

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sse"

	"edugen/internal/domain"
)

// ContentType is the media type of an event stream.
const ContentType = "text/event-stream"

// ErrNotFlushable is returned when the response cannot be flushed per event.
var ErrNotFlushable = errors.New("stream: response writer does not support flushing")

// Writer frames events onto an HTTP response and flushes after each one.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter prepares w for streaming and writes the response headers.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrNotFlushable
	}
	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &Writer{w: w, flusher: f}, nil
}

// Event writes ev as `id: <seq>`, `event: <kind>`, `data: <json>`.
func (w *Writer) Event(ev domain.StreamEvent) error {
	payload := ev.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	err := sse.Encode(w.w, sse.Event{
		Id:    strconv.FormatUint(ev.Seq, 10),
		Event: string(ev.Kind),
		Data:  payload,
	})
	if err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := io.WriteString(w.w, ": "+text+"\n\n"); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
