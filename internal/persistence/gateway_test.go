package persistence

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edugen/internal/adapter/repo"
	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/storage"
	"edugen/internal/tokenstore"
)

type fixture struct {
	clock   *clock.Fake
	tokens  *tokenstore.Memory
	repo    *repo.ArtifactRepositoryMemory
	blobs   *storage.FileStore
	gateway *Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC))
	blobs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	f := &fixture{
		clock:  clk,
		tokens: tokenstore.NewMemory(15*time.Minute, clk),
		repo:   repo.NewArtifactRepositoryMemory(),
		blobs:  blobs,
	}
	f.gateway, err = New(Options{Tokens: f.tokens, Repo: f.repo, Blobs: blobs, Clock: clk})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return f
}

func (f *fixture) mint(t *testing.T) string {
	t.Helper()
	q := &domain.Quiz{
		Name:      "Kiểm tra Vật lý",
		Questions: []domain.Question{{ID: 1, Type: domain.QuestionEssay, Question: "Phát biểu định luật Newton thứ nhất."}},
	}
	q.SetMetadata(domain.Metadata{JobID: "job-1", Backend: "test", GeneratedAt: f.clock.Now()})
	e, err := f.tokens.Put(context.Background(), q)
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	return e.Token
}

func TestSaveWritesRecordAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	token := f.mint(t)

	id, err := f.gateway.Save(ctx, token, "teacher-9")
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	rec, err := f.repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if rec.OwnerID != "teacher-9" || rec.Kind != domain.KindQuiz || rec.Metadata.JobID != "job-1" {
		t.Fatalf("record = %+v", rec)
	}
	back, err := domain.UnmarshalArtifact(rec.Content)
	if err != nil || back.Title() != "Kiểm tra Vật lý" {
		t.Fatalf("record content = %v, %v", back, err)
	}

	data, err := f.blobs.Get(ctx, rec.ExportKey)
	if err != nil {
		t.Fatalf("export %q not stored: %v", rec.ExportKey, err)
	}
	if _, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("export is not a zip: %v", err)
	}

	if _, err := f.tokens.Get(ctx, token); !errors.Is(err, tokenstore.ErrAlreadyConsumed) {
		t.Fatalf("token still readable after save: %v", err)
	}
}

func TestSaveErrors(t *testing.T) {
	cases := []struct {
		name     string
		setup    func(t *testing.T, f *fixture) string
		identity string
		code     string
	}{
		{
			name: "second save conflicts",
			setup: func(t *testing.T, f *fixture) string {
				token := f.mint(t)
				if _, err := f.gateway.Save(context.Background(), token, "teacher-1"); err != nil {
					t.Fatalf("first Save() error: %v", err)
				}
				return token
			},
			identity: "teacher-1",
			code:     domain.CodeTokenAlreadyConsumed,
		},
		{
			name: "expired",
			setup: func(t *testing.T, f *fixture) string {
				token := f.mint(t)
				f.clock.Advance(16 * time.Minute)
				return token
			},
			identity: "teacher-1",
			code:     domain.CodeTokenExpired,
		},
		{
			name:     "unknown",
			setup:    func(t *testing.T, f *fixture) string { return "no-such-token" },
			identity: "teacher-1",
			code:     domain.CodeTokenNotFound,
		},
		{
			name:     "anonymous",
			setup:    func(t *testing.T, f *fixture) string { return f.mint(t) },
			identity: "  ",
			code:     domain.CodeUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			token := tc.setup(t, f)
			before := f.repo.Len()
			_, err := f.gateway.Save(context.Background(), token, tc.identity)
			if got := domain.CodeOf(err); got != tc.code {
				t.Fatalf("Save() code = %q (%v), want %q", got, err, tc.code)
			}
			if f.repo.Len() != before {
				t.Fatal("failed save wrote a record")
			}
		})
	}
}

func TestAnonymousSaveLeavesTokenUsable(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t)
	if _, err := f.gateway.Save(context.Background(), token, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := f.gateway.Save(context.Background(), token, "teacher-2"); err != nil {
		t.Fatalf("Save() after sign-in error: %v", err)
	}
}

func TestConcurrentSavesPersistOnce(t *testing.T) {
	f := newFixture(t)
	token := f.mint(t)

	var (
		wg        sync.WaitGroup
		ok        atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gateway.Save(context.Background(), token, "teacher-3")
			switch {
			case err == nil:
				ok.Add(1)
			case domain.CodeOf(err) == domain.CodeTokenAlreadyConsumed:
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok.Load() != 1 || conflicts.Load() != 7 || f.repo.Len() != 1 {
		t.Fatalf("ok=%d conflicts=%d records=%d", ok.Load(), conflicts.Load(), f.repo.Len())
	}
}

type failingRepo struct {
	domain.ArtifactRepository
	err error
}

func (r failingRepo) Create(context.Context, *domain.ArtifactRecord) error { return r.err }

// keyRecorder remembers the keys Put returned.
type keyRecorder struct {
	domain.BlobStore
	keys []string
}

func (k *keyRecorder) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	stored, err := k.BlobStore.Put(ctx, key, data, contentType)
	if err == nil {
		k.keys = append(k.keys, stored)
	}
	return stored, err
}

func TestSaveRemovesExportWhenRecordFails(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("insert failed")
	blobs := &keyRecorder{BlobStore: f.blobs}
	gw, err := New(Options{
		Tokens: f.tokens,
		Repo:   failingRepo{ArtifactRepository: f.repo, err: boom},
		Blobs:  blobs,
		Clock:  f.clock,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := gw.Save(context.Background(), f.mint(t), "teacher-4"); !errors.Is(err, boom) {
		t.Fatalf("Save() error = %v, want %v", err, boom)
	}
	if len(blobs.keys) != 1 {
		t.Fatalf("uploaded %d exports, want 1", len(blobs.keys))
	}
	if _, err := f.blobs.Get(context.Background(), blobs.keys[0]); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("export %q left behind: %v", blobs.keys[0], err)
	}
}
