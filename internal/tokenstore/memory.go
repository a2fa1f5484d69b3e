package tokenstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"edugen/internal/clock"
	"edugen/internal/domain"
)

type memoryEntry struct {
	entry    Entry
	consumed bool
}

// Memory is an in-process Store. Expired and consumed entries drop their
// artifact on first access and linger as tombstones until Sweep removes
// them, so late callers still get ErrExpired or ErrAlreadyConsumed rather
// than ErrNotFound.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	clock   clock.Clock
}

// NewMemory returns an empty in-memory store. A zero ttl selects DefaultTTL
// and a nil clock selects wall-clock time.
func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Memory{entries: make(map[string]*memoryEntry), ttl: ttl, clock: clk}
}

func (m *Memory) Put(ctx context.Context, a domain.Artifact) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	if a == nil {
		return Entry{}, errors.New("tokenstore: nil artifact")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		token, err := NewToken()
		if err != nil {
			return Entry{}, err
		}
		if _, taken := m.entries[token]; taken {
			continue
		}
		now := m.clock.Now()
		e := Entry{Token: token, Artifact: a, CreatedAt: now, ExpiresAt: now.Add(m.ttl)}
		m.entries[token] = &memoryEntry{entry: e}
		return e, nil
	}
}

func (m *Memory) Get(ctx context.Context, token string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookupLocked(token)
}

func (m *Memory) Consume(ctx context.Context, token string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.lookupLocked(token)
	if err != nil {
		return Entry{}, err
	}
	stored := m.entries[token]
	stored.consumed = true
	stored.entry.Artifact = nil
	return e, nil
}

// lookupLocked resolves token, reclaiming the artifact of an entry found
// expired.
func (m *Memory) lookupLocked(token string) (Entry, error) {
	stored, ok := m.entries[token]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if !m.clock.Now().Before(stored.entry.ExpiresAt) {
		stored.entry.Artifact = nil
		return Entry{}, ErrExpired
	}
	if stored.consumed {
		return Entry{}, ErrAlreadyConsumed
	}
	return stored.entry, nil
}

// Sweep removes every entry whose expiry has passed.
func (m *Memory) Sweep(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, stored := range m.entries {
		if !now.Before(stored.entry.ExpiresAt) {
			delete(m.entries, token)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of tracked entries, tombstones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

var _ Store = (*Memory)(nil)
