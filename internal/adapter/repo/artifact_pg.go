package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"edugen/internal/domain"
	"edugen/internal/infra"
	"edugen/internal/sqlinline"
)

// pgUniqueViolation is the SQLSTATE for a duplicate key.
const pgUniqueViolation = "23505"

// ArtifactRepositoryPG implements domain.ArtifactRepository on PostgreSQL.
type ArtifactRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewArtifactRepository creates a repository that runs marked queries
// through sql.
func NewArtifactRepository(sql infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{sql: sql}
}

// EnsureSchema creates the artifacts table when it does not exist.
func (r *ArtifactRepositoryPG) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{sqlinline.QCreateArtifactsTable, sqlinline.QCreateArtifactsOwnerIndex} {
		if _, err := r.sql.Exec(ctx, q); err != nil {
			return fmt.Errorf("ensure artifacts schema: %w", err)
		}
	}
	return nil
}

// Create inserts rec.
func (r *ArtifactRepositoryPG) Create(ctx context.Context, rec *domain.ArtifactRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertArtifact,
		rec.ID,
		rec.OwnerID,
		string(rec.Kind),
		rec.Title,
		rec.Content,
		rec.Markdown,
		rec.ExportKey,
		meta,
		rec.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("artifact %s already exists: %w", rec.ID, err)
	}
	return err
}

// GetByID fetches a record by its identifier.
func (r *ArtifactRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ArtifactRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectArtifactByID, id)
	var (
		rec  domain.ArtifactRecord
		kind string
		meta []byte
	)
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&kind,
		&rec.Title,
		&rec.Content,
		&rec.Markdown,
		&rec.ExportKey,
		&meta,
		&rec.CreatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.Kind = domain.Kind(kind)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &rec, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
