package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"edugen/internal/domain"
)

// Decoder reads events from an SSE byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next complete event. It returns io.EOF when the stream
// ends between events.
func (d *Decoder) Next() (domain.StreamEvent, error) {
	var (
		ev      domain.StreamEvent
		data    []string
		pending bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && pending {
				return domain.StreamEvent{}, io.ErrUnexpectedEOF
			}
			return domain.StreamEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !pending {
				continue
			}
			if len(data) > 0 {
				if err := json.Unmarshal([]byte(strings.Join(data, "\n")), &ev.Payload); err != nil {
					return domain.StreamEvent{}, fmt.Errorf("stream: decode data for event %d: %w", ev.Seq, err)
				}
			}
			if ev.Kind == "" {
				ev.Kind = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		pending = true
		switch field {
		case "id":
			seq, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return domain.StreamEvent{}, fmt.Errorf("stream: bad event id %q", value)
			}
			ev.Seq = seq
		case "event":
			ev.Kind = domain.EventKind(value)
		case "data":
			data = append(data, value)
		}
	}
}
