// Package export renders artifacts into downloadable documents.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"edugen/internal/domain"
	"edugen/pkg/zip"
)

// Format is a downloadable representation.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// ParseFormat accepts the format names used in download URLs. An empty
// string selects Markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return FormatMarkdown, nil
	case "html", "htm":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "json":
		return FormatJSON, nil
	}
	return "", domain.Invalid(domain.CodeValidationFailed, "unsupported export format %q", s)
}

var contentTypes = map[Format]string{
	FormatMarkdown: "text/markdown; charset=utf-8",
	FormatHTML:     "text/html; charset=utf-8",
	FormatPDF:      "application/pdf",
	FormatJSON:     "application/json",
}

// Document is a rendered file ready to be served or stored.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Options configures a Renderer.
type Options struct {
	// FontPath points to a UTF-8 TrueType font for PDF output. Without one,
	// PDFs use a core font and text is folded to ASCII.
	FontPath string
}

// Renderer turns artifacts into documents. It is safe for concurrent use.
type Renderer struct {
	fontPath string
}

func NewRenderer(opts Options) *Renderer {
	return &Renderer{fontPath: strings.TrimSpace(opts.FontPath)}
}

// Render produces a in format f.
func (r *Renderer) Render(a domain.Artifact, f Format) (Document, error) {
	if a == nil {
		return Document{}, fmt.Errorf("export: nil artifact")
	}
	var (
		data []byte
		err  error
	)
	switch f {
	case FormatMarkdown:
		data = []byte(a.Markdown())
	case FormatHTML:
		data, err = renderHTML(a)
	case FormatPDF:
		data, err = r.renderPDF(a)
	case FormatJSON:
		data, err = renderJSON(a)
	default:
		return Document{}, fmt.Errorf("export: unsupported format %q", f)
	}
	if err != nil {
		return Document{}, err
	}
	return Document{
		Filename:    Filename(a, f),
		ContentType: contentTypes[f],
		Data:        data,
	}, nil
}

// Bundle archives the Markdown, HTML and JSON renderings of a into one zip
// document.
func (r *Renderer) Bundle(a domain.Artifact) (Document, error) {
	var entries []zip.Entry
	for _, f := range []Format{FormatMarkdown, FormatHTML, FormatJSON} {
		doc, err := r.Render(a, f)
		if err != nil {
			return Document{}, err
		}
		entries = append(entries, zip.Entry{Filename: doc.Filename, Data: doc.Data})
	}
	modified := a.Metadata().GeneratedAt
	if modified.IsZero() {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	data, err := zip.Archive(entries, modified)
	if err != nil {
		return Document{}, fmt.Errorf("export: bundle: %w", err)
	}
	return Document{
		Filename:    baseName(a) + ".zip",
		ContentType: "application/zip",
		Data:        data,
	}, nil
}

func renderJSON(a domain.Artifact) ([]byte, error) {
	raw, err := domain.MarshalArtifact(a)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("export: indent json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Filename derives an ASCII file name from the artifact title.
func Filename(a domain.Artifact, f Format) string {
	return baseName(a) + "." + string(f)
}

func baseName(a domain.Artifact) string {
	slug := Slug(a.Title())
	if slug == "" {
		return string(a.Kind())
	}
	return slug
}
