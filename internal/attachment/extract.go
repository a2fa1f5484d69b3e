package attachment

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"edugen/internal/domain"
)

const docxBodyPart = "word/document.xml"

// Extract returns the attachment's plain text truncated to MaxTextRunes.
// Errors carry CodeAttachmentUnreadable.
func Extract(ctx context.Context, a *domain.Attachment, format Format) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var (
		text string
		err  error
	)
	switch format {
	case FormatText, FormatMarkdown:
		text = string(a.Data)
	case FormatDOCX:
		text, err = extractDOCX(a.Data)
	case FormatPDF:
		text, err = extractPDF(a.Data)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return "", domain.NewCodedError(domain.CodeAttachmentUnreadable,
			fmt.Sprintf("could not read attachment %q", a.Filename), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.NewCodedError(domain.CodeAttachmentUnreadable,
			fmt.Sprintf("attachment %q contains no text", a.Filename), domain.ErrGenerationFailed)
	}
	return Truncate(text, MaxTextRunes), nil
}

// extractDOCX walks word/document.xml collecting run text, one line per
// paragraph.
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx: %s missing", docxBodyPart)
	}
	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("docx: open body: %w", err)
	}
	defer rc.Close()

	var (
		b      strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docx: parse body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func extractPDF(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf: malformed document: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf: open: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf: read text: %w", err)
	}
	raw, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf: read text: %w", err)
	}
	return string(raw), nil
}
