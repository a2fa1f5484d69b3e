package stream

import (
	"sync"

	"edugen/internal/domain"
)

// DefaultBuffer is the per-consumer event buffer.
const DefaultBuffer = 256

// DetachReason explains why a consumer stopped receiving events.
type DetachReason string

const (
	ReasonReplaced DetachReason = "replaced"
	ReasonOverflow DetachReason = "overflow"
	ReasonClosed   DetachReason = "closed"
	ReasonDetached DetachReason = "detached"
)

// Consumer receives the events published to one job after it attached.
type Consumer struct {
	jobID  string
	events chan domain.StreamEvent
	done   chan struct{}
	once   sync.Once
	reason DetachReason
}

// Events yields delivered events. It is never closed; select on Done.
func (c *Consumer) Events() <-chan domain.StreamEvent { return c.events }

// Done is closed once the consumer stops receiving events.
func (c *Consumer) Done() <-chan struct{} { return c.done }

// Reason reports why Done was closed.
func (c *Consumer) Reason() DetachReason {
	select {
	case <-c.done:
		return c.reason
	default:
		return ""
	}
}

func (c *Consumer) stop(reason DetachReason) {
	c.once.Do(func() {
		c.reason = reason
		close(c.done)
	})
}

type channel struct {
	mu      sync.Mutex
	current *Consumer
	closed  bool
}

// Hub keeps one channel per job with at most one active consumer. Attaching
// a new consumer replaces the previous one; nothing published before an
// attach is replayed to it.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*channel
	buffer   int
}

// NewHub returns an empty Hub. A non-positive buffer selects DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{channels: make(map[string]*channel), buffer: buffer}
}

func (h *Hub) channel(jobID string) *channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[jobID]
	if !ok {
		ch = &channel{}
		h.channels[jobID] = ch
	}
	return ch
}

// Attach registers a new consumer for jobID, detaching any previous one.
// Attaching to a closed channel returns a consumer that is already done.
func (h *Hub) Attach(jobID string) *Consumer {
	c := &Consumer{jobID: jobID, events: make(chan domain.StreamEvent, h.buffer), done: make(chan struct{})}
	ch := h.channel(jobID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		c.stop(ReasonClosed)
		return c
	}
	if ch.current != nil {
		ch.current.stop(ReasonReplaced)
	}
	ch.current = c
	return c
}

// Detach removes c if it is still the active consumer.
func (h *Hub) Detach(c *Consumer) {
	h.mu.Lock()
	ch, ok := h.channels[c.jobID]
	h.mu.Unlock()
	if ok {
		ch.mu.Lock()
		if ch.current == c {
			ch.current = nil
		}
		ch.mu.Unlock()
	}
	c.stop(ReasonDetached)
}

// Publish delivers ev to the job's active consumer, if any. It never blocks:
// a consumer whose buffer is full is dropped and must reattach.
func (h *Hub) Publish(ev domain.StreamEvent) {
	ch := h.channel(ev.JobID)
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed || ch.current == nil {
		return
	}
	select {
	case ch.current.events <- ev:
	default:
		ch.current.stop(ReasonOverflow)
		ch.current = nil
	}
}

// Close ends the job's channel. The active consumer keeps any buffered
// events but receives nothing further.
func (h *Hub) Close(jobID string) {
	ch := h.channel(jobID)
	ch.mu.Lock()
	ch.closed = true
	ch.current = nil
	ch.mu.Unlock()
}

// Forget drops the bookkeeping for jobID.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	delete(h.channels, jobID)
	h.mu.Unlock()
}

// Active reports whether jobID currently has a consumer.
func (h *Hub) Active(jobID string) bool {
	h.mu.Lock()
	ch, ok := h.channels[jobID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.current != nil
}
