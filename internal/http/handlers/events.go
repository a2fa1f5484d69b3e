package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"edugen/internal/middleware"
	"edugen/internal/stream"
)

// GenerationEvents streams the job's events as Server-Sent Events. A
// reconnect replaces the previous consumer and receives only newer events.
// For a job that already ended, the final event is written once.
func (a *App) GenerationEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if _, err := a.Orchestrator.Job(jobID); err != nil {
		a.writeError(w, r, err)
		return
	}

	consumer := a.Hub.Attach(jobID)
	defer a.Hub.Detach(consumer)
	a.Orchestrator.Attached(jobID)

	// Streams outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sw, err := stream.NewWriter(w)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	log := a.Logger.With().
		Str("job_id", jobID).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Logger()

	snap, err := a.Orchestrator.Job(jobID)
	if err == nil && snap.Status.Terminal() {
		if snap.Final != nil {
			if err := sw.Event(*snap.Final); err != nil {
				log.Debug().Err(err).Msg("stream: write final event failed")
			}
		}
		log.Debug().Str("status", string(snap.Status)).Msg("stream: job already finished")
		return
	}

	reason, err := stream.Serve(r.Context(), sw, consumer, stream.ServeOptions{
		IdleTimeout: a.StreamIdleTimeout,
		KeepAlive:   a.StreamKeepAlive,
	})
	ev := log.Debug()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("reason", string(reason)).Msg("stream: consumer ended")

	if reason == stream.EndClientGone && a.CancelOnDisconnect {
		if err := a.Orchestrator.Cancel(jobID); err != nil {
			log.Warn().Err(err).Msg("stream: cancel after disconnect failed")
		}
	}
}
