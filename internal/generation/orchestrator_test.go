package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/stream"
	"edugen/internal/tokenstore"
)

const quizOutput = "```json\n" + `{
  "name": "Kiểm tra Hóa học",
  "subject": "Hóa học",
  "grade": 10,
  "time_limit": 45,
  "question_count": 2,
  "questions": [
    {"id": 1, "type": "multiple choice", "question": "Công thức của nước là gì?",
     "options": {"A": "H2O", "B": "CO2", "C": "NaCl", "D": "O2"},
     "correct_answer": "A", "explanation": "Nước gồm hai nguyên tử hydro và một nguyên tử oxy {H2O}."},
    {"id": 2, "type": "essay", "question": "Trình bày tính chất của axit.",
     "correct_answer": "Axit làm quỳ tím hóa đỏ.", "explanation": ""}
  ]
}` + "\n```"

type recordingSink struct {
	mu     sync.Mutex
	events []domain.StreamEvent
	closed map[string]int
	forgot map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{closed: map[string]int{}, forgot: map[string]bool{}}
}

func (s *recordingSink) Publish(ev domain.StreamEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Close(jobID string) {
	s.mu.Lock()
	s.closed[jobID]++
	s.mu.Unlock()
}

func (s *recordingSink) Forget(jobID string) {
	s.mu.Lock()
	s.forgot[jobID] = true
	s.mu.Unlock()
}

func (s *recordingSink) snapshot() []domain.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.StreamEvent(nil), s.events...)
}

// splitRunes breaks s into pieces of at most n runes.
func splitRunes(s string, n int) []string {
	r := []rune(s)
	var out []string
	for len(r) > 0 {
		k := n
		if k > len(r) {
			k = len(r)
		}
		out = append(out, string(r[:k]))
		r = r[k:]
	}
	return out
}

func scriptedBackend(output string) BackendFunc {
	return BackendFunc{
		BackendName:  "scripted",
		BackendModel: "scripted-1",
		Fn: func(ctx context.Context, p Prompt, emit func(string) error) error {
			for _, piece := range splitRunes(output, 13) {
				if err := emit(piece); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newTestOrchestrator(t *testing.T, backend Backend, clk clock.Clock) (*Orchestrator, *tokenstore.Memory, *recordingSink) {
	t.Helper()
	if clk == nil {
		clk = clock.Real()
	}
	tokens := tokenstore.NewMemory(time.Minute, clk)
	sink := newRecordingSink()
	o, err := New(Options{Backend: backend, Tokens: tokens, Sink: sink, Clock: clk})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return o, tokens, sink
}

func quizRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Kind: domain.KindQuiz,
		Params: map[string]string{
			"name":          "Kiểm tra Hóa học",
			"subject":       "Hóa học",
			"grade":         "10",
			"num_questions": "2",
			"topic":         "Axit và bazơ",
		},
	}
}

func TestQuizJobCompletesWithOneToken(t *testing.T) {
	o, tokens, sink := newTestOrchestrator(t, scriptedBackend(quizOutput), nil)

	jobID, err := o.Accept(context.Background(), quizRequest())
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	o.Wait()

	snap, err := o.Job(jobID)
	if err != nil {
		t.Fatalf("Job() error: %v", err)
	}
	if snap.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if !tokenstore.ValidToken(snap.Token) {
		t.Fatalf("token %q is not well formed", snap.Token)
	}
	if tokens.Len() != 1 {
		t.Fatalf("token store holds %d entries, want 1", tokens.Len())
	}

	events := sink.snapshot()
	var chunks int
	for i, ev := range events {
		if ev.Seq != uint64(i+1) {
			t.Fatalf("event %d has seq %d", i, ev.Seq)
		}
		if ev.JobID != jobID {
			t.Fatalf("event %d has job id %q", i, ev.JobID)
		}
		if ev.Kind == domain.EventChunk {
			chunks++
		}
		if ev.Kind.Terminal() && i != len(events)-1 {
			t.Fatalf("terminal event at position %d of %d", i, len(events))
		}
	}
	if chunks < 2 {
		t.Fatalf("expected streamed chunks, got %d", chunks)
	}
	last := events[len(events)-1]
	if last.Kind != domain.EventDone || last.PayloadString("token") != snap.Token {
		t.Fatalf("last event = %+v", last)
	}
	if sink.closed[jobID] != 1 {
		t.Fatalf("sink closed %d times", sink.closed[jobID])
	}

	text := stream.Assemble(events)
	if text != quizOutput {
		t.Fatalf("assembled chunks differ from backend output:\n%s", text)
	}

	entry, err := tokens.Get(context.Background(), snap.Token)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	schemas, err := LoadSchemas()
	if err != nil {
		t.Fatalf("LoadSchemas() error: %v", err)
	}
	fromChunks, err := schemas.Decode(domain.KindQuiz, text)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if entry.Artifact.Markdown() != fromChunks.Markdown() {
		t.Fatalf("stored artifact differs from streamed content")
	}
	meta := entry.Artifact.Metadata()
	if meta.JobID != jobID || meta.Backend != "scripted" || meta.Model != "scripted-1" {
		t.Fatalf("metadata = %+v", meta)
	}
}

func TestProgressEventsBracketStages(t *testing.T) {
	o, _, sink := newTestOrchestrator(t, scriptedBackend(quizOutput), nil)
	if _, err := o.Accept(context.Background(), quizRequest()); err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	o.Wait()

	var got []string
	for _, ev := range sink.snapshot() {
		if ev.Kind == domain.EventProgress {
			got = append(got, ev.PayloadString("stage")+":"+ev.PayloadString("state"))
		}
	}
	want := []string{
		"build_input:started", "build_input:finished",
		"generate:started", "generate:finished",
		"assemble:started", "assemble:finished",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("progress = %v, want %v", got, want)
	}
}

func TestFailedJobsMintNoToken(t *testing.T) {
	cases := []struct {
		name     string
		backend  Backend
		wantCode string
	}{
		{
			name: "backend unavailable",
			backend: BackendFunc{BackendName: "down", Fn: func(ctx context.Context, p Prompt, emit func(string) error) error {
				return fmt.Errorf("dial: %w", domain.ErrProviderFailure)
			}},
			wantCode: domain.CodeBackendUnavailable,
		},
		{
			name: "backend breaks mid-stream",
			backend: BackendFunc{BackendName: "flaky", Fn: func(ctx context.Context, p Prompt, emit func(string) error) error {
				_ = emit(`{"name":`)
				return errors.New("stream reset")
			}},
			wantCode: domain.CodeGenerationFailed,
		},
		{
			name:     "empty output",
			backend:  scriptedBackend("   "),
			wantCode: domain.CodeGenerationFailed,
		},
		{
			name:     "not json",
			backend:  scriptedBackend("Xin lỗi, tôi không thể tạo đề kiểm tra."),
			wantCode: domain.CodeArtifactInvalid,
		},
		{
			name:     "schema mismatch",
			backend:  scriptedBackend(`{"name":"x","questions":[]}`),
			wantCode: domain.CodeArtifactInvalid,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o, tokens, sink := newTestOrchestrator(t, tc.backend, nil)
			jobID, err := o.Accept(context.Background(), quizRequest())
			if err != nil {
				t.Fatalf("Accept() error: %v", err)
			}
			o.Wait()

			snap, _ := o.Job(jobID)
			if snap.Status != domain.JobStatusFailed {
				t.Fatalf("status = %s, want failed", snap.Status)
			}
			if snap.Token != "" || tokens.Len() != 0 {
				t.Fatalf("failed job minted a token")
			}
			events := sink.snapshot()
			last := events[len(events)-1]
			if last.Kind != domain.EventError || last.PayloadString("code") != tc.wantCode {
				t.Fatalf("last event = %+v, want error %s", last, tc.wantCode)
			}
			if last.PayloadString("message") == "" {
				t.Fatal("error event has no message")
			}
		})
	}
}

func TestAcceptRejectsInvalidRequests(t *testing.T) {
	cases := []struct {
		name     string
		req      domain.GenerationRequest
		wantCode string
	}{
		{
			name:     "unknown kind",
			req:      domain.GenerationRequest{Kind: "poem"},
			wantCode: domain.CodeValidationFailed,
		},
		{
			name:     "too many questions",
			req:      domain.GenerationRequest{Kind: domain.KindQuiz, Params: map[string]string{"num_questions": "51"}},
			wantCode: domain.CodeValidationFailed,
		},
		{
			name:     "bad difficulty",
			req:      domain.GenerationRequest{Kind: domain.KindQuiz, Params: map[string]string{"difficulty": "brutal"}},
			wantCode: domain.CodeValidationFailed,
		},
		{
			name:     "too many criteria",
			req:      domain.GenerationRequest{Kind: domain.KindRubric, Params: map[string]string{"number_of_criteria": "11"}},
			wantCode: domain.CodeValidationFailed,
		},
		{
			name: "oversized attachment",
			req: domain.GenerationRequest{Kind: domain.KindQuiz, Attachment: &domain.Attachment{
				Filename: "notes.txt",
				Data:     []byte(strings.Repeat("a", 2048)),
			}},
			wantCode: domain.CodeAttachmentTooLarge,
		},
		{
			name: "unsupported attachment",
			req: domain.GenerationRequest{Kind: domain.KindQuiz, Attachment: &domain.Attachment{
				Filename: "photo.png",
				Data:     []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"),
			}},
			wantCode: domain.CodeAttachmentUnsupported,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tokens := tokenstore.NewMemory(time.Minute, nil)
			sink := newRecordingSink()
			o, err := New(Options{
				Backend: scriptedBackend(quizOutput),
				Tokens:  tokens,
				Sink:    sink,
				Config:  Config{AttachmentMaxBytes: 1024},
			})
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			jobID, err := o.Accept(context.Background(), tc.req)
			if err == nil {
				t.Fatalf("Accept() = %q, want error", jobID)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error %v is not a validation error", err)
			}
			if got := domain.CodeOf(err); got != tc.wantCode {
				t.Fatalf("code = %s, want %s", got, tc.wantCode)
			}
			o.Wait()
			if len(o.jobs) != 0 || len(sink.snapshot()) != 0 || tokens.Len() != 0 {
				t.Fatal("rejected request left a job, event or token behind")
			}
		})
	}
}

func TestCancelEndsJobCancelled(t *testing.T) {
	started := make(chan struct{})
	backend := BackendFunc{BackendName: "slow", Fn: func(ctx context.Context, p Prompt, emit func(string) error) error {
		if err := emit("{"); err != nil {
			return err
		}
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}
	o, tokens, sink := newTestOrchestrator(t, backend, nil)
	jobID, err := o.Accept(context.Background(), quizRequest())
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	<-started
	if err := o.Cancel(jobID); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}
	o.Wait()

	snap, _ := o.Job(jobID)
	if snap.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", snap.Status)
	}
	if tokens.Len() != 0 {
		t.Fatal("cancelled job minted a token")
	}
	events := sink.snapshot()
	if code := events[len(events)-1].PayloadString("code"); code != domain.CodeGenerationCancelled {
		t.Fatalf("terminal code = %s", code)
	}
	if err := o.Cancel(jobID); err != nil {
		t.Fatalf("Cancel() on finished job: %v", err)
	}
}

func TestJobWaitsForConsumer(t *testing.T) {
	tokens := tokenstore.NewMemory(time.Minute, nil)
	sink := newRecordingSink()
	o, err := New(Options{
		Backend: scriptedBackend(quizOutput),
		Tokens:  tokens,
		Sink:    sink,
		Config:  Config{AttachWait: time.Hour},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	jobID, err := o.Accept(context.Background(), quizRequest())
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if snap, _ := o.Job(jobID); snap.Status != domain.JobStatusPending || snap.LastSeq != 0 {
		t.Fatalf("job started before a consumer attached: %+v", snap)
	}
	o.Attached(jobID)
	o.Wait()
	if snap, _ := o.Job(jobID); snap.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
}

func TestConcurrencyLimitKeepsJobsPending(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	running := 0
	backend := BackendFunc{BackendName: "gated", Fn: func(ctx context.Context, p Prompt, emit func(string) error) error {
		mu.Lock()
		running++
		mu.Unlock()
		<-release
		return emit(quizOutput)
	}}
	o, err := New(Options{
		Backend: backend,
		Tokens:  tokenstore.NewMemory(time.Minute, nil),
		Config:  Config{MaxConcurrent: 1},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	first, _ := o.Accept(context.Background(), quizRequest())
	second, _ := o.Accept(context.Background(), quizRequest())

	deadline := time.Now().Add(time.Second)
	for {
		a, _ := o.Job(first)
		b, _ := o.Job(second)
		if a.Status == domain.JobStatusStreaming || b.Status == domain.JobStatusStreaming {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no job started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	if running != 1 {
		t.Fatalf("%d backends running, want 1", running)
	}
	mu.Unlock()
	pending := 0
	for _, id := range []string{first, second} {
		if s, _ := o.Job(id); s.Status == domain.JobStatusPending {
			pending++
		}
	}
	if pending != 1 {
		t.Fatalf("%d jobs pending, want 1", pending)
	}
	close(release)
	o.Wait()
}

func TestReapRemovesFinishedJobs(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC))
	o, _, sink := newTestOrchestrator(t, scriptedBackend(quizOutput), clk)
	jobID, err := o.Accept(context.Background(), quizRequest())
	if err != nil {
		t.Fatalf("Accept() error: %v", err)
	}
	o.Wait()

	if n := o.Reap(clk.Now().Add(DefaultRetention - time.Second)); n != 0 {
		t.Fatalf("reaped %d jobs before retention elapsed", n)
	}
	if n := o.Reap(clk.Now().Add(DefaultRetention)); n != 1 {
		t.Fatalf("reaped %d jobs, want 1", n)
	}
	if _, err := o.Job(jobID); domain.CodeOf(err) != domain.CodeJobNotFound {
		t.Fatalf("Job() after reap error = %v", err)
	}
	if !sink.forgot[jobID] {
		t.Fatal("sink was not told to forget the job")
	}
}
