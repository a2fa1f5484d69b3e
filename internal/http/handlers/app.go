package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"edugen/internal/clock"
	"edugen/internal/domain"
	"edugen/internal/export"
	"edugen/internal/generation"
	"edugen/internal/infra"
	"edugen/internal/middleware"
	"edugen/internal/persistence"
	"edugen/internal/stream"
	"edugen/internal/tokenstore"
)

// App holds the collaborators every handler needs.
type App struct {
	Orchestrator *generation.Orchestrator
	Hub          *stream.Hub
	Tokens       tokenstore.Store
	Gateway      *persistence.Gateway
	Renderer     *export.Renderer
	Logger       *infra.Logger
	Clock        clock.Clock

	JWTSecret          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	CookieSecure       bool
	AttachmentMaxBytes int64
	StreamIdleTimeout  time.Duration
	StreamKeepAlive    time.Duration
	CancelOnDisconnect bool
}

// NewApp fills defaults for the optional fields of a.
func NewApp(a App) *App {
	if a.Renderer == nil {
		a.Renderer = export.NewRenderer(export.Options{})
	}
	if a.Clock == nil {
		a.Clock = clock.Real()
	}
	if a.Logger == nil {
		l := zerolog.New(io.Discard)
		a.Logger = &l
	}
	if a.AccessTokenTTL <= 0 {
		a.AccessTokenTTL = 15 * time.Minute
	}
	if a.RefreshTokenTTL <= 0 {
		a.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	return &a
}

// Mount registers the API routes on r.
func (a *App) Mount(r chi.Router) {
	r.Get("/v1/healthz", a.Health)
	r.Get("/v1/openapi.json", a.OpenAPIJSON)
	r.Get("/v1/docs", a.OpenAPIDocs)
	r.Post("/v1/auth/refresh", a.AuthRefresh)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.OptionalAuth(a.JWTSecret)).Post("/", a.CreateGeneration)
		r.Get("/{jobID}", a.GenerationStatus)
		r.Delete("/{jobID}", a.CancelGeneration)
		r.Get("/{jobID}/events", a.GenerationEvents)
	})

	r.Route("/v1/artifacts/{token}", func(r chi.Router) {
		r.Get("/download", a.DownloadArtifact)
		r.With(middleware.AuthJWT(a.JWTSecret)).Post("/save", a.SaveArtifact)
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps err onto an HTTP status and the stable error code.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	message := domain.MessageOf(err)
	if status == http.StatusInternalServerError {
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		code, message = domain.CodeInternal, "internal error"
	}
	a.error(w, status, code, message)
}

func statusFor(code string) int {
	switch code {
	case domain.CodeValidationFailed:
		return http.StatusBadRequest
	case domain.CodeAttachmentTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.CodeAttachmentUnsupported:
		return http.StatusUnsupportedMediaType
	case domain.CodeAttachmentUnreadable:
		return http.StatusUnprocessableEntity
	case domain.CodeJobNotFound, domain.CodeTokenNotFound:
		return http.StatusNotFound
	case domain.CodeTokenExpired:
		return http.StatusGone
	case domain.CodeTokenAlreadyConsumed:
		return http.StatusConflict
	case domain.CodeUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// isTooLarge reports whether err came from an http.MaxBytesReader limit.
func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
