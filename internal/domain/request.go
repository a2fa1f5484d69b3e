package domain

import (
	"strings"
	"time"
)

// Attachment is an optional source document supplied with a request.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GenerationRequest describes what to generate. Params holds the raw
// kind-specific form values; the orchestrator normalizes them.
type GenerationRequest struct {
	Kind        Kind
	Params      map[string]string
	Attachment  *Attachment
	RequesterID string
	Locale      string
	Model       string
}

// Param returns a trimmed parameter value.
func (r GenerationRequest) Param(key string) string {
	if r.Params == nil {
		return ""
	}
	return strings.TrimSpace(r.Params[key])
}

// ArtifactRecord is the durable form of a saved artifact.
type ArtifactRecord struct {
	ID        string
	OwnerID   string
	Kind      Kind
	Title     string
	Content   []byte
	Markdown  string
	ExportKey string
	Metadata  Metadata
	CreatedAt time.Time
}
