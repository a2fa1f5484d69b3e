package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"edugen/internal/domain"
)

const pdfUnicodeFamily = "body"

// renderPDF lays out the Markdown rendering line by line. Headings, bullets
// and table rows are recognized; inline emphasis markers are dropped.
func (r *Renderer) renderPDF(a domain.Artifact) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")
	pdf.SetTitle(a.Title(), true)

	family := "Arial"
	text := Fold
	if r.fontPath != "" {
		pdf.SetFontLocation(filepath.Dir(r.fontPath))
		pdf.AddUTF8Font(pdfUnicodeFamily, "", filepath.Base(r.fontPath))
		pdf.AddUTF8Font(pdfUnicodeFamily, "B", filepath.Base(r.fontPath))
		family = pdfUnicodeFamily
		text = func(s string) string { return s }
	}

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(family, "", 9)
		pdf.SetTextColor(108, 117, 125)
		pdf.CellFormat(0, 10, fmt.Sprintf("%s - %d/{nb}", KindLabel(a.Kind()), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	pdf.SetTextColor(33, 37, 41)

	for _, line := range strings.Split(a.Markdown(), "\n") {
		line = strings.TrimRight(line, " ")
		switch {
		case line == "":
			pdf.Ln(3)
		case strings.HasPrefix(line, "# "):
			pdf.SetFont(family, "B", 18)
			pdf.MultiCell(0, 9, text(stripInline(line[2:])), "", "L", false)
			pdf.Ln(2)
		case strings.HasPrefix(line, "## "):
			pdf.SetFont(family, "B", 14)
			pdf.MultiCell(0, 8, text(stripInline(line[3:])), "", "L", false)
		case strings.HasPrefix(line, "### "):
			pdf.SetFont(family, "B", 12)
			pdf.MultiCell(0, 7, text(stripInline(line[4:])), "", "L", false)
		case strings.HasPrefix(line, "|"):
			if isTableRule(line) {
				continue
			}
			pdf.SetFont(family, "", 9)
			pdf.MultiCell(0, 5, text(tableRow(line)), "B", "L", false)
		case strings.HasPrefix(line, "- "):
			pdf.SetFont(family, "", 11)
			pdf.MultiCell(0, 6, text("  - "+stripInline(line[2:])), "", "L", false)
		default:
			pdf.SetFont(family, "", 11)
			pdf.MultiCell(0, 6, text(stripInline(line)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var inlineMarkers = strings.NewReplacer("**", "", "*", "", "`", "", `\|`, "|")

func stripInline(s string) string {
	return inlineMarkers.Replace(s)
}

func isTableRule(line string) bool {
	return strings.Trim(line, "|-: ") == ""
}

func tableRow(line string) string {
	cells := strings.Split(strings.Trim(line, "|"), " | ")
	out := make([]string, 0, len(cells))
	for _, c := range cells {
		if c = strings.TrimSpace(stripInline(c)); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, "  /  ")
}
