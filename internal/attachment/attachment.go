// Package attachment validates uploaded source documents and extracts their
// text for prompt construction.
package attachment

import (
	"archive/zip"
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"edugen/internal/domain"
)

// DefaultMaxBytes caps attachment size when no limit is configured.
const DefaultMaxBytes = 10 << 20

// MaxTextRunes bounds the extracted text passed to the model.
const MaxTextRunes = 10000

// Format is a supported attachment format.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDOCX     Format = "docx"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZip  = "application/zip"
	mimeText = "text/plain"
)

// Validate checks size and content type. It sniffs the bytes rather than
// trusting the declared content type. Failures are validation errors.
func Validate(a *domain.Attachment, maxBytes int64) (Format, error) {
	if a == nil {
		return "", domain.Invalid(domain.CodeValidationFailed, "attachment is missing")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(a.Data) == 0 {
		return "", domain.Invalid(domain.CodeValidationFailed, "attachment %q is empty", a.Filename)
	}
	if int64(len(a.Data)) > maxBytes {
		return "", domain.Invalid(domain.CodeAttachmentTooLarge,
			"attachment %q is %d bytes, limit is %d", a.Filename, len(a.Data), maxBytes)
	}
	mt := mimetype.Detect(a.Data)
	switch {
	case mt.Is(mimePDF):
		return FormatPDF, nil
	case mt.Is(mimeDOCX), mt.Is(mimeZip) && hasDocumentPart(a.Data):
		return FormatDOCX, nil
	case mt.Is(mimeText):
		if !utf8.Valid(a.Data) {
			return "", domain.Invalid(domain.CodeAttachmentUnsupported, "attachment %q is not UTF-8 text", a.Filename)
		}
		switch strings.ToLower(filepath.Ext(a.Filename)) {
		case ".md", ".markdown":
			return FormatMarkdown, nil
		}
		return FormatText, nil
	}
	return "", domain.Invalid(domain.CodeAttachmentUnsupported,
		"attachment %q has unsupported type %s; use PDF, DOCX or text", a.Filename, mt.String())
}

func hasDocumentPart(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			return true
		}
	}
	return false
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
