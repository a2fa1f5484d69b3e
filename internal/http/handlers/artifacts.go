package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"edugen/internal/export"
	"edugen/internal/middleware"
	"edugen/internal/persistence"
)

// DownloadArtifact renders the artifact behind a token. It can be called
// any number of times until the token expires or is saved.
func (a *App) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.Tokens.Get(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		a.writeError(w, r, persistence.TokenError(err))
		return
	}
	doc, err := a.Renderer.Render(entry.Artifact, format)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

type saveResponse struct {
	RecordID string `json:"record_id"`
}

// SaveArtifact persists the artifact for the signed-in user and spends the
// token.
func (a *App) SaveArtifact(w http.ResponseWriter, r *http.Request) {
	id, err := a.Gateway.Save(r.Context(), chi.URLParam(r, "token"), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, saveResponse{RecordID: id})
}
