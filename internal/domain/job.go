package domain

import "fmt"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusStreaming JobStatus = "streaming"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// statusRank orders the non-terminal states; terminal states share the
// highest rank.
var statusRank = map[JobStatus]int{
	JobStatusPending:   0,
	JobStatusRunning:   1,
	JobStatusStreaming: 2,
	JobStatusCompleted: 3,
	JobStatusFailed:    3,
	JobStatusCancelled: 3,
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether a job may move from s to next. Jobs only
// move forward; failed and cancelled are reachable from any live state,
// completed only from streaming.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	switch next {
	case JobStatusFailed, JobStatusCancelled:
		return true
	case JobStatusCompleted:
		return s == JobStatusStreaming
	default:
		return statusRank[next] == statusRank[s]+1
	}
}

// Transition validates the move from s to next.
func (s JobStatus) Transition(next JobStatus) (JobStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
