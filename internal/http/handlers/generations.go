package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"edugen/internal/attachment"
	"edugen/internal/domain"
	"edugen/internal/middleware"
)

// formOverhead is the allowance for non-file form fields on top of the
// attachment limit.
const formOverhead = 1 << 20

type generationJSON struct {
	Kind       string          `json:"kind"`
	Model      string          `json:"model"`
	Params     map[string]any  `json:"params"`
	Attachment *attachmentJSON `json:"attachment"`
}

type attachmentJSON struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type generationAccepted struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	EventsURL string `json:"events_url"`
	StatusURL string `json:"status_url"`
}

func (a *App) maxAttachment() int64 {
	if a.AttachmentMaxBytes > 0 {
		return a.AttachmentMaxBytes
	}
	return attachment.DefaultMaxBytes
}

// CreateGeneration accepts a multipart form (fields plus optional "file")
// or a JSON body and starts a generation job.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	limit := a.maxAttachment()

	var (
		req domain.GenerationRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
		req, err = parseGenerationForm(r, limit)
	default:
		// JSON carries the attachment base64 encoded.
		r.Body = http.MaxBytesReader(w, r.Body, int64(base64.StdEncoding.EncodedLen(int(limit)))+formOverhead)
		req, err = parseGenerationJSON(r)
	}
	if err != nil {
		if isTooLarge(err) {
			err = domain.Invalid(domain.CodeAttachmentTooLarge, "request exceeds the %d byte attachment limit", limit)
		}
		a.writeError(w, r, err)
		return
	}
	req.RequesterID = middleware.UserIDFromContext(r.Context())
	req.Locale = middleware.LocaleFromContext(r.Context())

	jobID, err := a.Orchestrator.Accept(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, generationAccepted{
		JobID:     jobID,
		Status:    string(domain.JobStatusPending),
		EventsURL: "/v1/generations/" + jobID + "/events",
		StatusURL: "/v1/generations/" + jobID,
	})
}

func parseGenerationForm(r *http.Request, limit int64) (domain.GenerationRequest, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			return domain.GenerationRequest{}, err
		}
		return domain.GenerationRequest{}, domain.Invalid(domain.CodeValidationFailed, "invalid form: %v", err)
	}
	kind, err := domain.ParseKind(r.FormValue("kind"))
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	req := domain.GenerationRequest{Kind: kind, Model: strings.TrimSpace(r.FormValue("model")), Params: map[string]string{}}
	for key, values := range r.Form {
		if key == "kind" || key == "model" || len(values) == 0 {
			continue
		}
		req.Params[key] = values[0]
	}

	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return req, nil
	case err != nil:
		return req, domain.Invalid(domain.CodeValidationFailed, "invalid file field: %v", err)
	}
	defer file.Close()
	if header.Size > limit {
		return req, domain.Invalid(domain.CodeAttachmentTooLarge,
			"attachment %q is %d bytes, limit is %d", header.Filename, header.Size, limit)
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return req, fmt.Errorf("read attachment: %w", err)
	}
	req.Attachment = &domain.Attachment{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	return req, nil
}

func parseGenerationJSON(r *http.Request) (domain.GenerationRequest, error) {
	var body generationJSON
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		if isTooLarge(err) {
			return domain.GenerationRequest{}, err
		}
		return domain.GenerationRequest{}, domain.Invalid(domain.CodeValidationFailed, "invalid payload")
	}
	kind, err := domain.ParseKind(body.Kind)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	req := domain.GenerationRequest{Kind: kind, Model: strings.TrimSpace(body.Model), Params: make(map[string]string, len(body.Params))}
	for key, v := range body.Params {
		s, err := paramString(v)
		if err != nil {
			return req, domain.Invalid(domain.CodeValidationFailed, "param %q: %v", key, err)
		}
		req.Params[key] = s
	}
	if body.Attachment != nil {
		req.Attachment = &domain.Attachment{
			Filename:    body.Attachment.Filename,
			ContentType: body.Attachment.ContentType,
			Data:        body.Attachment.Data,
		}
	}
	return req, nil
}

// paramString flattens a JSON scalar into the form representation.
func paramString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", errors.New("must be a string, number or boolean")
}

// GenerationStatus returns the job snapshot.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Orchestrator.Job(chi.URLParam(r, "jobID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

// CancelGeneration requests cancellation of a running job.
func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := a.Orchestrator.Cancel(jobID); err != nil {
		a.writeError(w, r, err)
		return
	}
	snap, err := a.Orchestrator.Job(jobID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, snap)
}
