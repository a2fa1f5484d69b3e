// Package persistence turns a transient artifact token into a durable,
// owner-tagged record.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/export"
	"edugen/internal/infra"
	"edugen/internal/tokenstore"
)

// Options wires the gateway's collaborators. Blobs may be nil, in which case
// no export bundle is uploaded.
type Options struct {
	Tokens   tokenstore.Store
	Repo     domain.ArtifactRepository
	Blobs    domain.BlobStore
	Renderer *export.Renderer
	Clock    clock.Clock
	Logger   *infra.Logger
}

// Gateway saves artifacts by token.
type Gateway struct {
	tokens   tokenstore.Store
	repo     domain.ArtifactRepository
	blobs    domain.BlobStore
	renderer *export.Renderer
	clock    clock.Clock
	logger   *infra.Logger
}

// New validates opts and returns a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Tokens == nil {
		return nil, errors.New("persistence: token store is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("persistence: artifact repository is required")
	}
	g := &Gateway{
		tokens:   opts.Tokens,
		repo:     opts.Repo,
		blobs:    opts.Blobs,
		renderer: opts.Renderer,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if g.renderer == nil {
		g.renderer = export.NewRenderer(export.Options{})
	}
	if g.clock == nil {
		g.clock = clock.Real()
	}
	if g.logger == nil {
		l := zerolog.New(io.Discard)
		g.logger = &l
	}
	return g, nil
}

// Save consumes token and writes the artifact as a record owned by
// identity. The token is spent even if a later step fails; the caller must
// regenerate in that case.
func (g *Gateway) Save(ctx context.Context, token, identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", domain.NewCodedError(domain.CodeUnauthorized, "sign in to save artifacts", domain.ErrUnauthorized)
	}

	entry, err := g.tokens.Consume(ctx, token)
	if err != nil {
		return "", TokenError(err)
	}
	a := entry.Artifact

	content, err := domain.MarshalArtifact(a)
	if err != nil {
		return "", fmt.Errorf("persistence: snapshot artifact: %w", err)
	}
	rec := &domain.ArtifactRecord{
		ID:        uuid.NewString(),
		OwnerID:   identity,
		Kind:      a.Kind(),
		Title:     a.Title(),
		Content:   content,
		Markdown:  a.Markdown(),
		Metadata:  a.Metadata(),
		CreatedAt: g.clock.Now().UTC(),
	}

	if g.blobs != nil {
		doc, err := g.renderer.Bundle(a)
		if err != nil {
			return "", fmt.Errorf("persistence: render export: %w", err)
		}
		key := path.Join("exports", identity, rec.ID, doc.Filename)
		stored, err := g.blobs.Put(ctx, key, doc.Data, doc.ContentType)
		if err != nil {
			return "", fmt.Errorf("persistence: upload export: %w", err)
		}
		rec.ExportKey = stored
	}

	if err := g.repo.Create(ctx, rec); err != nil {
		if rec.ExportKey != "" {
			if derr := g.blobs.Delete(context.WithoutCancel(ctx), rec.ExportKey); derr != nil {
				g.logger.Error().Err(derr).Str("export_key", rec.ExportKey).Msg("orphaned export left in storage")
			}
		}
		return "", fmt.Errorf("persistence: create record: %w", err)
	}

	g.logger.Info().
		Str("record_id", rec.ID).
		Str("owner_id", identity).
		Str("kind", string(rec.Kind)).
		Str("job_id", rec.Metadata.JobID).
		Msg("artifact saved")
	return rec.ID, nil
}

// TokenError attaches the stable code and a user-facing message to token
// store failures.
func TokenError(err error) error {
	switch {
	case errors.Is(err, tokenstore.ErrAlreadyConsumed):
		return domain.NewCodedError(domain.CodeTokenAlreadyConsumed, "this artifact has already been saved", err)
	case errors.Is(err, tokenstore.ErrExpired):
		return domain.NewCodedError(domain.CodeTokenExpired, "the artifact has expired, please regenerate it", err)
	case errors.Is(err, tokenstore.ErrNotFound):
		return domain.NewCodedError(domain.CodeTokenNotFound, "the artifact was not found, please regenerate it", err)
	}
	return fmt.Errorf("persistence: consume token: %w", err)
}
