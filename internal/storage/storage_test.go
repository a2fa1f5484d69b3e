package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"edugen/internal/domain"
)

func TestFileStorePutGet(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error: %v", err)
	}
	ctx := context.Background()
	key, err := store.Put(ctx, "/exports/user-1/../user-1/quiz.zip", []byte("PK"), "application/zip")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if key != "exports/user-1/quiz.zip" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Get(ctx, key)
	if err != nil || string(data) != "PK" {
		t.Fatalf("Get() = %q, %v", data, err)
	}
	if _, err := store.Get(ctx, "exports/missing.zip"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, key); err != nil {
			t.Fatalf("Delete() #%d error: %v", i, err)
		}
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() after Delete error = %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a/b.md", "a/b.md", true},
		{"./a//b.md", "a/b.md", true},
		{`a\b.md`, "a/b.md", true},
		{"../etc/passwd", "", false},
		{"..", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.in)
		if (err == nil) != tc.ok || got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, %v", tc.in, got, err)
		}
	}
}

// fakeS3 serves path-style PutObject and GetObject.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StorePutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	store, err := NewS3Store(ctx, S3Config{
		Bucket:          "exports",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "edugen",
	})
	if err != nil {
		t.Fatalf("NewS3Store() error: %v", err)
	}
	key, err := store.Put(ctx, "user-1/rubric.zip", []byte("zip bytes"), "application/zip")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if key != "edugen/user-1/rubric.zip" {
		t.Fatalf("key = %q", key)
	}
	if got := fake.types["/exports/edugen/user-1/rubric.zip"]; got != "application/zip" {
		t.Fatalf("stored content type = %q (objects: %v)", got, fake.objects)
	}
	data, err := store.Get(ctx, key)
	if err != nil || string(data) != "zip bytes" {
		t.Fatalf("Get() = %q, %v", data, err)
	}
	if _, err := store.Get(ctx, "edugen/none.zip"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Get(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() after Delete error = %v", err)
	}
}
