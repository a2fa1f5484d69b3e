package generation

import (
	"context"
	"sync"
	"time"

	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/tokenstore"
)

// Job is one generation run. Its event log and status are guarded by the
// job's own mutex.
type Job struct {
	ID        string
	Kind      domain.Kind
	CreatedAt time.Time

	mu         sync.Mutex
	status     domain.JobStatus
	seq        uint64
	events     []domain.StreamEvent
	token      string
	expiresAt  time.Time
	finishedAt time.Time
	errCode    string

	cancel     context.CancelFunc
	attached   chan struct{}
	attachOnce sync.Once
	sink       Sink
	clock      clock.Clock
}

// Snapshot is a point-in-time view of a job.
type Snapshot struct {
	ID         string              `json:"job_id"`
	Kind       domain.Kind         `json:"kind"`
	Status     domain.JobStatus    `json:"status"`
	LastSeq    uint64              `json:"last_seq"`
	Token      string              `json:"token,omitempty"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	ErrorCode  string              `json:"error_code,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Final      *domain.StreamEvent `json:"-"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Snapshot{
		ID:        j.ID,
		Kind:      j.Kind,
		Status:    j.status,
		LastSeq:   j.seq,
		Token:     j.token,
		ErrorCode: j.errCode,
		CreatedAt: j.CreatedAt,
	}
	if !j.expiresAt.IsZero() {
		t := j.expiresAt
		s.ExpiresAt = &t
	}
	if j.status.Terminal() {
		t := j.finishedAt
		s.FinishedAt = &t
		if n := len(j.events); n > 0 {
			final := j.events[n-1]
			s.Final = &final
		}
	}
	return s
}

// Events returns a copy of the event log.
func (j *Job) Events() []domain.StreamEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.StreamEvent, len(j.events))
	copy(out, j.events)
	return out
}

func (j *Job) markAttached() {
	j.attachOnce.Do(func() { close(j.attached) })
}

func (j *Job) transition(next domain.JobStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, err := j.status.Transition(next)
	if err != nil {
		return err
	}
	j.status = s
	return nil
}

// emitLocked appends and publishes the next event. Publishing under the
// job lock keeps the sink in sequence order.
func (j *Job) emitLocked(kind domain.EventKind, payload map[string]any) {
	j.seq++
	ev := domain.StreamEvent{JobID: j.ID, Seq: j.seq, Kind: kind, Payload: payload, EmittedAt: j.clock.Now()}
	j.events = append(j.events, ev)
	j.sink.Publish(ev)
}

func (j *Job) emit(kind domain.EventKind, payload map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.emitLocked(kind, payload)
}

func (j *Job) complete(entry tokenstore.Entry, kind domain.EventKind, payload map[string]any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, err := j.status.Transition(domain.JobStatusCompleted)
	if err != nil {
		return
	}
	j.token = entry.Token
	j.expiresAt = entry.ExpiresAt
	j.emitLocked(kind, payload)
	j.status = s
	j.finishedAt = j.clock.Now()
}

// fail moves the job to status and emits the terminal error event. It
// reports false if the job had already ended.
func (j *Job) fail(status domain.JobStatus, code string, payload map[string]any) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	s, err := j.status.Transition(status)
	if err != nil {
		return false
	}
	j.errCode = code
	j.emitLocked(domain.EventError, payload)
	j.status = s
	j.finishedAt = j.clock.Now()
	return true
}

func (j *Job) expired(now time.Time, retention time.Duration) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status.Terminal() && !now.Before(j.finishedAt.Add(retention))
}
