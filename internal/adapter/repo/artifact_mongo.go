package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"edugen/internal/domain"
)

// artifactDocument is the stored shape of a record. Content is kept as the
// raw JSON snapshot so it round trips byte for byte.
type artifactDocument struct {
	ID        string           `bson:"_id"`
	OwnerID   string           `bson:"ownerId"`
	Kind      string           `bson:"kind"`
	Title     string           `bson:"title"`
	Content   string           `bson:"content"`
	Markdown  string           `bson:"markdown"`
	ExportKey string           `bson:"exportKey,omitempty"`
	Metadata  metadataDocument `bson:"metadata"`
	CreatedAt time.Time        `bson:"createdAt"`
}

type metadataDocument struct {
	JobID       string    `bson:"jobId"`
	Backend     string    `bson:"backend"`
	Model       string    `bson:"model,omitempty"`
	SourceRef   string    `bson:"sourceRef,omitempty"`
	DurationMS  int64     `bson:"durationMs"`
	GeneratedAt time.Time `bson:"generatedAt"`
}

func toDocument(rec *domain.ArtifactRecord) artifactDocument {
	return artifactDocument{
		ID:        rec.ID,
		OwnerID:   rec.OwnerID,
		Kind:      string(rec.Kind),
		Title:     rec.Title,
		Content:   string(rec.Content),
		Markdown:  rec.Markdown,
		ExportKey: rec.ExportKey,
		Metadata: metadataDocument{
			JobID:       rec.Metadata.JobID,
			Backend:     rec.Metadata.Backend,
			Model:       rec.Metadata.Model,
			SourceRef:   rec.Metadata.SourceRef,
			DurationMS:  rec.Metadata.Duration.Milliseconds(),
			GeneratedAt: rec.Metadata.GeneratedAt,
		},
		CreatedAt: rec.CreatedAt,
	}
}

func (d artifactDocument) record() *domain.ArtifactRecord {
	return &domain.ArtifactRecord{
		ID:        d.ID,
		OwnerID:   d.OwnerID,
		Kind:      domain.Kind(d.Kind),
		Title:     d.Title,
		Content:   []byte(d.Content),
		Markdown:  d.Markdown,
		ExportKey: d.ExportKey,
		Metadata: domain.Metadata{
			JobID:       d.Metadata.JobID,
			Backend:     d.Metadata.Backend,
			Model:       d.Metadata.Model,
			SourceRef:   d.Metadata.SourceRef,
			Duration:    time.Duration(d.Metadata.DurationMS) * time.Millisecond,
			GeneratedAt: d.Metadata.GeneratedAt,
		},
		CreatedAt: d.CreatedAt,
	}
}

// ArtifactRepositoryMongo implements domain.ArtifactRepository on a MongoDB
// collection.
type ArtifactRepositoryMongo struct {
	coll *mongo.Collection
}

// NewArtifactRepositoryMongo wraps coll.
func NewArtifactRepositoryMongo(coll *mongo.Collection) *ArtifactRepositoryMongo {
	return &ArtifactRepositoryMongo{coll: coll}
}

// EnsureIndexes creates the owner lookup index.
func (r *ArtifactRepositoryMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("owner_created"),
	})
	if err != nil {
		return fmt.Errorf("ensure artifact indexes: %w", err)
	}
	return nil
}

func (r *ArtifactRepositoryMongo) Create(ctx context.Context, rec *domain.ArtifactRecord) error {
	_, err := r.coll.InsertOne(ctx, toDocument(rec))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("artifact %s already exists: %w", rec.ID, err)
	}
	return err
}

func (r *ArtifactRepositoryMongo) GetByID(ctx context.Context, id string) (*domain.ArtifactRecord, error) {
	var doc artifactDocument
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.record(), nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryMongo)(nil)
