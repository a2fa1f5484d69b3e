package handlers

import (
	"net/http"
	"time"
)

// Health answers liveness probes with the server clock so skew against
// token expiry times is visible.
func (a *App) Health(w http.ResponseWriter, _ *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   a.Clock.Now().UTC().Format(time.RFC3339),
	})
}
