// Package generation runs artifact generation jobs: it validates requests,
// drives a streaming model backend and publishes ordered events for each job.
package generation

import (
	"context"

	"edugen/internal/domain"
)

// Prompt is the rendered input sent to a backend.
type Prompt struct {
	System string
	User   string
	// Model overrides the backend default when set.
	Model string
	// Kind and Params describe the request the prompt was rendered from.
	Kind   domain.Kind
	Params map[string]string
}

// Backend streams model output. Stream calls emit with each text delta as
// it arrives and returns once the model finishes. An error returned by emit
// aborts the stream and is returned unchanged.
type Backend interface {
	Name() string
	Model() string
	Stream(ctx context.Context, p Prompt, emit func(delta string) error) error
}

// BackendFunc adapts a function to Backend. Useful in tests and for
// wrapping one-off providers.
type BackendFunc struct {
	BackendName  string
	BackendModel string
	Fn           func(ctx context.Context, p Prompt, emit func(delta string) error) error
}

func (b BackendFunc) Name() string { return b.BackendName }
func (b BackendFunc) Model() string { return b.BackendModel }

func (b BackendFunc) Stream(ctx context.Context, p Prompt, emit func(string) error) error {
	return b.Fn(ctx, p, emit)
}
