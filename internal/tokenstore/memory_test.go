package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edugen/internal/clock"
	"edugen/internal/domain"
)

func sampleArtifact() domain.Artifact {
	return &domain.Quiz{Name: "Chemistry check", Questions: []domain.Question{{ID: 1, Type: "essay", Question: "Define a mole."}}}
}

func TestMemoryPutGetIsRepeatable(t *testing.T) {
	store := NewMemory(time.Minute, nil)
	ctx := context.Background()
	e, err := store.Put(ctx, sampleArtifact())
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if !ValidToken(e.Token) {
		t.Fatalf("token %q has unexpected shape", e.Token)
	}
	for i := 0; i < 3; i++ {
		got, err := store.Get(ctx, e.Token)
		if err != nil {
			t.Fatalf("Get() #%d error: %v", i, err)
		}
		if got.Artifact.Title() != "Chemistry check" {
			t.Fatalf("Get() #%d title = %q", i, got.Artifact.Title())
		}
	}
}

func TestMemoryTokensAreUnique(t *testing.T) {
	store := NewMemory(time.Minute, nil)
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		e, err := store.Put(context.Background(), sampleArtifact())
		if err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		if _, dup := seen[e.Token]; dup {
			t.Fatalf("duplicate token %q", e.Token)
		}
		seen[e.Token] = struct{}{}
	}
}

func TestMemoryConsumeExactlyOnce(t *testing.T) {
	for _, n := range []int{2, 5, 50} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()
			store := NewMemory(time.Minute, nil)
			e, err := store.Put(context.Background(), sampleArtifact())
			if err != nil {
				t.Fatalf("Put() error: %v", err)
			}
			var (
				wg        sync.WaitGroup
				start     = make(chan struct{})
				successes atomic.Int32
				conflicts atomic.Int32
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					got, err := store.Consume(context.Background(), e.Token)
					switch {
					case err == nil:
						if got.Artifact == nil {
							t.Error("successful consume returned nil artifact")
						}
						successes.Add(1)
					case errors.Is(err, ErrAlreadyConsumed):
						conflicts.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()
			if successes.Load() != 1 {
				t.Fatalf("successes = %d, want 1", successes.Load())
			}
			if int(conflicts.Load()) != n-1 {
				t.Fatalf("conflicts = %d, want %d", conflicts.Load(), n-1)
			}
		})
	}
}

func TestMemoryGetAfterConsume(t *testing.T) {
	store := NewMemory(time.Minute, nil)
	ctx := context.Background()
	e, _ := store.Put(ctx, sampleArtifact())
	if _, err := store.Consume(ctx, e.Token); err != nil {
		t.Fatalf("Consume() error: %v", err)
	}
	if _, err := store.Get(ctx, e.Token); !errors.Is(err, ErrAlreadyConsumed) {
		t.Fatalf("Get() after consume = %v, want ErrAlreadyConsumed", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	store := NewMemory(15*time.Minute, clk)
	ctx := context.Background()
	e, err := store.Put(ctx, sampleArtifact())
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if !e.ExpiresAt.Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("ExpiresAt = %v", e.ExpiresAt)
	}

	clk.Advance(15*time.Minute - time.Nanosecond)
	if _, err := store.Get(ctx, e.Token); err != nil {
		t.Fatalf("Get() just before expiry: %v", err)
	}

	clk.Advance(time.Nanosecond)
	for i := 0; i < 2; i++ {
		if _, err := store.Get(ctx, e.Token); !errors.Is(err, ErrExpired) {
			t.Fatalf("Get() #%d at expiry = %v, want ErrExpired", i, err)
		}
	}
	if _, err := store.Consume(ctx, e.Token); !errors.Is(err, ErrExpired) {
		t.Fatalf("Consume() at expiry = %v, want ErrExpired", err)
	}
}

func TestMemorySweep(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	store := NewMemory(time.Minute, clk)
	ctx := context.Background()
	old, _ := store.Put(ctx, sampleArtifact())
	clk.Advance(30 * time.Second)
	fresh, _ := store.Put(ctx, sampleArtifact())
	clk.Advance(31 * time.Second)

	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error: %v", err)
	}
	if removed != 1 || store.Len() != 1 {
		t.Fatalf("Sweep() removed %d, remaining %d", removed, store.Len())
	}
	if _, err := store.Get(ctx, old.Token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(old) = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, fresh.Token); err != nil {
		t.Fatalf("Get(fresh) = %v", err)
	}
}

func TestMemoryUnknownToken(t *testing.T) {
	store := NewMemory(0, nil)
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() = %v, want ErrNotFound", err)
	}
	if _, err := store.Consume(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Consume() = %v, want ErrNotFound", err)
	}
}
