package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"edugen/internal/domain"
	"edugen/internal/middleware"
	"edugen/internal/stream"
)

// fakeAPI accepts only the "fresh" access token; the refresh cookie "r1"
// exchanges for it.
type fakeAPI struct {
	refreshes atomic.Int32
	saved     atomic.Int32
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/v1/auth/refresh" {
		ck, err := r.Cookie("refresh_token")
		if err != nil || ck.Value != "r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.refreshes.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer fresh" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"sign in"}}`))
		return
	}
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/generations":
		if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("kind") != "quiz" || r.FormValue("subject") != "Toán" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "j1", "events_url": "/v1/generations/j1/events"})
	case r.URL.Path == "/v1/generations/j1/events":
		sw, err := stream.NewWriter(w)
		if err != nil {
			return
		}
		events := []domain.StreamEvent{
			{Seq: 1, Kind: domain.EventProgress, Payload: map[string]any{"stage": "generate", "state": "started"}},
			{Seq: 2, Kind: domain.EventChunk, Payload: map[string]any{"text": `{"a":`}},
			{Seq: 3, Kind: domain.EventChunk, Payload: map[string]any{"text": `1}`}},
			{Seq: 4, Kind: domain.EventDone, Payload: map[string]any{"token": "tok", "download_url": "/v1/artifacts/tok/download"}},
		}
		for _, ev := range events {
			_ = sw.Event(ev)
		}
	case r.Method == http.MethodPost && r.URL.Path == "/v1/artifacts/tok/save":
		if f.saved.Add(1) > 1 {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"code":"TOKEN_ALREADY_CONSUMED","message":"already saved"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"record_id":"rec-1"}`))
	case r.URL.Path == "/v1/artifacts/tok/download":
		w.Header().Set("Content-Disposition", `attachment; filename="../quiz.md"`)
		_, _ = w.Write([]byte("# Quiz\n"))
	default:
		http.NotFound(w, r)
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestGenerateFollowsStreamAndSaves(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()
	out := filepath.Join(t.TempDir(), "quiz.json")

	code, stdout, stderr := runCLI(t, "generate",
		"--server", srv.URL, "--token", "stale", "--refresh-token", "r1",
		"-k", "quiz", "-p", "subject=Toán", "--out", out, "--save", "-q")
	if code != 0 {
		t.Fatalf("exit = %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "token: tok") || !strings.Contains(stdout, "saved: rec-1") {
		t.Fatalf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("reassembled = %q", data)
	}
	if n := api.refreshes.Load(); n != 1 {
		t.Fatalf("refreshes = %d, want 1", n)
	}

	code, _, stderr = runCLI(t, "save", "--server", srv.URL, "--token", "fresh", "tok")
	if code != 1 || !strings.Contains(stderr, "TOKEN_ALREADY_CONSUMED") {
		t.Fatalf("second save exit = %d, stderr = %q", code, stderr)
	}
}

func TestDownloadUsesSafeServerFilename(t *testing.T) {
	srv := httptest.NewServer(&fakeAPI{})
	defer srv.Close()
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	code, stdout, stderr := runCLI(t, "download", "--server", srv.URL, "--token", "fresh", "tok")
	if code != 0 {
		t.Fatalf("exit = %d\nstderr: %s", code, stderr)
	}
	if !strings.Contains(stdout, "wrote quiz.md") {
		t.Fatalf("stdout = %q", stdout)
	}
	data, err := os.ReadFile(filepath.Join(dir, "quiz.md"))
	if err != nil || string(data) != "# Quiz\n" {
		t.Fatalf("downloaded = %q, %v", data, err)
	}
}

func TestMintToken(t *testing.T) {
	code, stdout, stderr := runCLI(t, "mint-token", "--secret", "s3cret", "--subject", "teacher-1", "--type", "refresh")
	if code != 0 {
		t.Fatalf("exit = %d\nstderr: %s", code, stderr)
	}
	claims, err := middleware.VerifyJWT("s3cret", strings.TrimSpace(stdout), middleware.TokenRefresh)
	if err != nil {
		t.Fatalf("minted token invalid: %v", err)
	}
	if claims.Subject != "teacher-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestUsageErrors(t *testing.T) {
	cases := []struct {
		args []string
		code int
	}{
		{nil, 2},
		{[]string{"frobnicate"}, 2},
		{[]string{"help"}, 0},
		{[]string{"generate", "--server", "http://localhost:1"}, 1},
		{[]string{"mint-token", "--secret", "x", "--subject", "u", "--type", "session"}, 1},
		{[]string{"download", "--server", "http://localhost:1"}, 1},
	}
	for _, tc := range cases {
		if code, _, _ := runCLI(t, tc.args...); code != tc.code {
			t.Fatalf("run(%v) = %d, want %d", tc.args, code, tc.code)
		}
	}
}

func TestAttachmentName(t *testing.T) {
	cases := map[string]string{
		`attachment; filename="kiem-tra.pdf"`: "kiem-tra.pdf",
		`attachment; filename="../../etc/passwd"`: "passwd",
		`garbage;;`: "artifact.md",
		``:          "artifact.md",
	}
	for header, want := range cases {
		if got := attachmentName(header, "artifact.md"); got != want {
			t.Fatalf("attachmentName(%q) = %q, want %q", header, got, want)
		}
	}
}
