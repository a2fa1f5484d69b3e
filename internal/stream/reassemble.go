package stream

import (
	"sort"
	"strings"

	"edugen/internal/domain"
)

// Reassembler rebuilds chunk text from a live stream. Events whose sequence
// number does not advance past the last accepted one are dropped.
type Reassembler struct {
	last    uint64
	b       strings.Builder
	dropped int
}

// Add accepts ev if its sequence number is new and reports whether it did.
func (r *Reassembler) Add(ev domain.StreamEvent) bool {
	if ev.Seq <= r.last {
		r.dropped++
		return false
	}
	r.last = ev.Seq
	r.b.WriteString(ev.ChunkText())
	return true
}

// Text returns the accepted chunk text in order.
func (r *Reassembler) Text() string { return r.b.String() }

// LastSeq returns the highest accepted sequence number.
func (r *Reassembler) LastSeq() uint64 { return r.last }

// Dropped counts duplicate or out-of-order events.
func (r *Reassembler) Dropped() int { return r.dropped }

// Assemble orders a complete set of events by sequence number, removes
// duplicates and concatenates the chunk text.
func Assemble(events []domain.StreamEvent) string {
	sorted := make([]domain.StreamEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	var (
		b    strings.Builder
		last uint64
	)
	for i, ev := range sorted {
		if i > 0 && ev.Seq == last {
			continue
		}
		last = ev.Seq
		b.WriteString(ev.ChunkText())
	}
	return b.String()
}
