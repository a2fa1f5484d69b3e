package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"edugen/internal/attachment"
	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/infra"
	"edugen/internal/tokenstore"
)

// Pipeline stages reported in progress events.
const (
	StageParseAttachment = "parse_attachment"
	StageBuildInput      = "build_input"
	StageGenerate        = "generate"
	StageAssemble        = "assemble"
)

const (
	DefaultMaxConcurrent = 16
	DefaultRetention     = 10 * time.Minute
)

// Sink receives every event a job emits, in sequence order.
type Sink interface {
	Publish(ev domain.StreamEvent)
	// Close is called once the job's terminal event has been published.
	Close(jobID string)
	// Forget is called when the job is reaped.
	Forget(jobID string)
}

// Config tunes the orchestrator. Zero values select defaults.
type Config struct {
	MaxConcurrent      int
	AttachmentMaxBytes int64
	// AttachWait is how long a new job waits for its first consumer before
	// starting. Zero starts immediately.
	AttachWait time.Duration
	// Retention is how long terminal jobs stay queryable.
	Retention time.Duration
	// DownloadURL builds the download link published with done events.
	DownloadURL func(token string) string
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Backend Backend
	Tokens  tokenstore.Store
	Sink    Sink
	Prompts *PromptSet
	Schemas *Schemas
	Clock   clock.Clock
	Logger  *infra.Logger
	Config  Config
}

// Orchestrator accepts generation requests and runs each as an independent
// job. Jobs share nothing but the token store.
type Orchestrator struct {
	backend Backend
	tokens  tokenstore.Store
	sink    Sink
	prompts *PromptSet
	schemas *Schemas
	clock   clock.Clock
	logger  *infra.Logger
	cfg     Config
	slots   chan struct{}

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup
}

// New constructs an orchestrator. Prompts and schemas default to the
// embedded sets.
func New(opts Options) (*Orchestrator, error) {
	if opts.Backend == nil {
		return nil, errors.New("generation: backend is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("generation: token store is required")
	}
	if opts.Sink == nil {
		opts.Sink = discardSink{}
	}
	if opts.Prompts == nil {
		p, err := LoadPrompts()
		if err != nil {
			return nil, err
		}
		opts.Prompts = p
	}
	if opts.Schemas == nil {
		s, err := LoadSchemas()
		if err != nil {
			return nil, err
		}
		opts.Schemas = s
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		opts.Logger = &l
	}
	cfg := opts.Config
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.AttachmentMaxBytes <= 0 {
		cfg.AttachmentMaxBytes = attachment.DefaultMaxBytes
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.DownloadURL == nil {
		cfg.DownloadURL = func(token string) string { return "/v1/artifacts/" + token + "/download" }
	}
	return &Orchestrator{
		backend: opts.Backend,
		tokens:  opts.Tokens,
		sink:    opts.Sink,
		prompts: opts.Prompts,
		schemas: opts.Schemas,
		clock:   opts.Clock,
		logger:  opts.Logger,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		jobs:    make(map[string]*Job),
	}, nil
}

// Accept validates req and starts a job for it. Validation failures are
// returned before any job exists.
func (o *Orchestrator) Accept(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := domain.NewArtifact(req.Kind); err != nil {
		return "", domain.Invalid(domain.CodeValidationFailed, "unsupported kind %q", req.Kind)
	}
	params, err := NormalizeParams(req.Kind, req.Params)
	if err != nil {
		return "", err
	}
	var format attachment.Format
	if req.Attachment != nil {
		format, err = attachment.Validate(req.Attachment, o.cfg.AttachmentMaxBytes)
		if err != nil {
			return "", err
		}
	}
	if _, ok := o.prompts.templates[templateName(req.Kind, params)]; !ok {
		return "", domain.Invalid(domain.CodeValidationFailed, "no prompt template for %s", req.Kind)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		CreatedAt: o.clock.Now(),
		status:    domain.JobStatusPending,
		cancel:    cancel,
		attached:  make(chan struct{}),
		sink:      o.sink,
		clock:     o.clock,
	}

	o.mu.Lock()
	o.jobs[job.ID] = job
	o.mu.Unlock()

	o.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(req.Kind)).
		Bool("attachment", req.Attachment != nil).
		Msg("generation: job accepted")

	o.wg.Add(1)
	go o.run(jobCtx, job, req, params, format)
	return job.ID, nil
}

func (o *Orchestrator) lookup(jobID string) (*Job, error) {
	o.mu.RLock()
	job, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, domain.NewCodedError(domain.CodeJobNotFound, "job not found", domain.ErrNotFound)
	}
	return job, nil
}

// Job returns a snapshot of the job's state.
func (o *Orchestrator) Job(jobID string) (Snapshot, error) {
	job, err := o.lookup(jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// Events returns a copy of every event the job has emitted so far.
func (o *Orchestrator) Events(jobID string) ([]domain.StreamEvent, error) {
	job, err := o.lookup(jobID)
	if err != nil {
		return nil, err
	}
	return job.Events(), nil
}

// Attached signals that a consumer is listening to the job so it may start.
func (o *Orchestrator) Attached(jobID string) {
	if job, err := o.lookup(jobID); err == nil {
		job.markAttached()
	}
}

// Cancel requests cooperative cancellation. Cancelling a terminal job is a
// no-op.
func (o *Orchestrator) Cancel(jobID string) error {
	job, err := o.lookup(jobID)
	if err != nil {
		return err
	}
	job.cancel()
	return nil
}

// Reap removes terminal jobs that finished at least the retention period
// before now and returns how many were removed.
func (o *Orchestrator) Reap(now time.Time) int {
	o.mu.Lock()
	var reaped []string
	for id, job := range o.jobs {
		if job.expired(now, o.cfg.Retention) {
			delete(o.jobs, id)
			reaped = append(reaped, id)
		}
	}
	o.mu.Unlock()
	for _, id := range reaped {
		o.sink.Forget(id)
	}
	if len(reaped) > 0 {
		o.logger.Debug().Int("count", len(reaped)).Msg("generation: reaped finished jobs")
	}
	return len(reaped)
}

// Wait blocks until every running job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Shutdown cancels every live job and waits for them to end or ctx to
// expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.RLock()
	for _, job := range o.jobs {
		job.cancel()
	}
	o.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) run(ctx context.Context, job *Job, req domain.GenerationRequest, params map[string]string, format attachment.Format) {
	defer o.wg.Done()
	defer job.cancel()

	log := o.logger.With().Str("job_id", job.ID).Str("kind", string(job.Kind)).Logger()

	if err := o.waitForConsumer(ctx, job); err != nil {
		o.finishFailed(job, "", err, &log)
		return
	}
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		o.finishFailed(job, "", ctx.Err(), &log)
		return
	}
	defer func() { <-o.slots }()

	started := o.clock.Now()
	if err := job.transition(domain.JobStatusRunning); err != nil {
		log.Error().Err(err).Msg("generation: unexpected transition")
		return
	}

	var source string
	if req.Attachment != nil {
		err := o.stage(ctx, job, StageParseAttachment, "Reading attachment", func() error {
			text, err := attachment.Extract(ctx, req.Attachment, format)
			source = text
			return err
		})
		if err != nil {
			o.finishFailed(job, StageParseAttachment, err, &log)
			return
		}
	}

	var prompt Prompt
	err := o.stage(ctx, job, StageBuildInput, "Preparing prompt", func() error {
		p, err := o.prompts.Render(req.Kind, params, source)
		if err != nil {
			return domain.NewCodedError(domain.CodeGenerationFailed, "could not build prompt", err)
		}
		p.Model = req.Model
		if req.Locale == "en" {
			p.System += "\n\nWrite every text value in English. Keep the JSON keys unchanged."
		}
		prompt = p
		return nil
	})
	if err != nil {
		o.finishFailed(job, StageBuildInput, err, &log)
		return
	}

	var output strings.Builder
	err = o.stage(ctx, job, StageGenerate, "Generating content", func() error {
		if err := job.transition(domain.JobStatusStreaming); err != nil {
			return err
		}
		err := o.backend.Stream(ctx, prompt, func(delta string) error {
			if delta == "" {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			output.WriteString(delta)
			job.emit(domain.EventChunk, map[string]any{"text": delta})
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			code := domain.CodeGenerationFailed
			if errors.Is(err, domain.ErrProviderFailure) {
				code = domain.CodeBackendUnavailable
			}
			return domain.NewCodedError(code, "model backend failed", err)
		}
		if strings.TrimSpace(output.String()) == "" {
			return domain.NewCodedError(domain.CodeGenerationFailed, "model returned no content", domain.ErrGenerationFailed)
		}
		return nil
	})
	if err != nil {
		o.finishFailed(job, StageGenerate, err, &log)
		return
	}

	var artifact domain.Artifact
	err = o.stage(ctx, job, StageAssemble, "Validating result", func() error {
		a, err := o.schemas.Decode(req.Kind, output.String())
		if err != nil {
			return domain.NewCodedError(domain.CodeArtifactInvalid, "generated content is not a valid "+string(req.Kind), err)
		}
		model := prompt.Model
		if model == "" {
			model = o.backend.Model()
		}
		meta := domain.Metadata{
			JobID:       job.ID,
			Backend:     o.backend.Name(),
			Model:       model,
			Duration:    o.clock.Now().Sub(started),
			GeneratedAt: o.clock.Now(),
		}
		if req.Attachment != nil {
			meta.SourceRef = req.Attachment.Filename
		}
		a.SetMetadata(meta)
		artifact = a
		return nil
	})
	if err != nil {
		o.finishFailed(job, StageAssemble, err, &log)
		return
	}

	entry, err := o.tokens.Put(ctx, artifact)
	if err != nil {
		o.finishFailed(job, StageAssemble, domain.NewCodedError(domain.CodeGenerationFailed, "could not store artifact", err), &log)
		return
	}
	job.complete(entry, domain.EventDone, map[string]any{
		"token":        entry.Token,
		"kind":         string(artifact.Kind()),
		"summary":      artifact.Summary(),
		"download_url": o.cfg.DownloadURL(entry.Token),
		"expires_at":   entry.ExpiresAt.UTC().Format(time.RFC3339),
	})
	o.sink.Close(job.ID)

	log.Info().
		Dur("duration", o.clock.Now().Sub(started)).
		Str("backend", o.backend.Name()).
		Msg("generation: job completed")
}

func (o *Orchestrator) waitForConsumer(ctx context.Context, job *Job) error {
	if o.cfg.AttachWait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.cfg.AttachWait)
	defer timer.Stop()
	select {
	case <-job.attached:
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// stage wraps fn with started and finished progress events.
func (o *Orchestrator) stage(ctx context.Context, job *Job, name, message string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	job.emit(domain.EventProgress, map[string]any{"stage": name, "state": "started", "message": message})
	if err := fn(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	job.emit(domain.EventProgress, map[string]any{"stage": name, "state": "finished", "message": message})
	return nil
}

func (o *Orchestrator) finishFailed(job *Job, stage string, err error, log *zerolog.Logger) {
	status := domain.JobStatusFailed
	code := domain.CodeOf(err)
	message := domain.MessageOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = domain.JobStatusCancelled
		code = domain.CodeGenerationCancelled
		message = "generation cancelled"
	} else if code == domain.CodeInternal {
		code = domain.CodeGenerationFailed
	}
	payload := map[string]any{"code": code, "message": message}
	if stage != "" {
		payload["stage"] = stage
	}
	if !job.fail(status, code, payload) {
		return
	}
	o.sink.Close(job.ID)

	ev := log.Warn()
	if status == domain.JobStatusFailed {
		ev = log.Error()
	}
	ev.Err(err).Str("stage", stage).Str("code", code).Msgf("generation: job %s", status)
}

type discardSink struct{}

func (discardSink) Publish(domain.StreamEvent) {}
func (discardSink) Close(string) {}
func (discardSink) Forget(string) {}
