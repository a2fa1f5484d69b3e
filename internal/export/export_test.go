package export

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"

	"edugen/internal/domain"
)

func sampleQuiz() *domain.Quiz {
	q := &domain.Quiz{
		Name:      "Bài Kiểm Tra Đại số",
		Subject:   "Toán",
		Grade:     "8",
		TimeLimit: 45,
		Questions: []domain.Question{
			{ID: 1, Type: domain.QuestionMultipleChoice, Question: "2 + 2 = ?", Options: map[string]string{"A": "3", "B": "4"}, CorrectAnswer: "B"},
			{ID: 2, Type: domain.QuestionEssay, Question: "Giải phương trình x + 1 = 3."},
		},
	}
	q.SetMetadata(domain.Metadata{JobID: "job-1", Backend: "test", GeneratedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)})
	return q
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatMarkdown, "MD": FormatMarkdown, "html": FormatHTML, "pdf": FormatPDF, "json": FormatJSON}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("docx"); domain.CodeOf(err) != domain.CodeValidationFailed {
		t.Fatalf("ParseFormat(docx) error = %v", err)
	}
}

func TestRenderFormats(t *testing.T) {
	r := NewRenderer(Options{})
	a := sampleQuiz()

	md, err := r.Render(a, FormatMarkdown)
	if err != nil {
		t.Fatalf("Render(md) error: %v", err)
	}
	if md.Filename != "bai-kiem-tra-dai-so.md" || !strings.HasPrefix(md.ContentType, "text/markdown") {
		t.Fatalf("md document = %s %s", md.Filename, md.ContentType)
	}
	if string(md.Data) != a.Markdown() {
		t.Fatal("markdown export differs from artifact markdown")
	}

	html, err := r.Render(a, FormatHTML)
	if err != nil {
		t.Fatalf("Render(html) error: %v", err)
	}
	for _, want := range []string{"<title>Quiz: Bài Kiểm Tra Đại số</title>", "<h1>Bài Kiểm Tra Đại số</h1>", "<h2>Multiple choice</h2>"} {
		if !strings.Contains(string(html.Data), want) {
			t.Fatalf("html missing %q:\n%s", want, html.Data)
		}
	}

	pdf, err := r.Render(a, FormatPDF)
	if err != nil {
		t.Fatalf("Render(pdf) error: %v", err)
	}
	if !bytes.HasPrefix(pdf.Data, []byte("%PDF-")) || pdf.ContentType != "application/pdf" {
		t.Fatalf("pdf document is not a PDF: %q", pdf.Data[:8])
	}

	js, err := r.Render(a, FormatJSON)
	if err != nil {
		t.Fatalf("Render(json) error: %v", err)
	}
	back, err := domain.UnmarshalArtifact(js.Data)
	if err != nil {
		t.Fatalf("json export does not round trip: %v", err)
	}
	if back.Markdown() != a.Markdown() || back.Metadata().JobID != "job-1" {
		t.Fatal("json export lost content")
	}
}

func TestBundle(t *testing.T) {
	doc, err := NewRenderer(Options{}).Bundle(sampleQuiz())
	if err != nil {
		t.Fatalf("Bundle() error: %v", err)
	}
	if doc.Filename != "bai-kiem-tra-dai-so.zip" {
		t.Fatalf("bundle filename = %s", doc.Filename)
	}
	zr, err := zip.NewReader(bytes.NewReader(doc.Data), int64(len(doc.Data)))
	if err != nil {
		t.Fatalf("bundle is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if strings.Join(names, ",") != "bai-kiem-tra-dai-so.md,bai-kiem-tra-dai-so.html,bai-kiem-tra-dai-so.json" {
		t.Fatalf("bundle files = %v", names)
	}
}

func TestSlugAndFold(t *testing.T) {
	cases := map[string]string{
		"Bài Kiểm Tra":             "bai-kiem-tra",
		"Đánh giá dự án STEM lớp 8": "danh-gia-du-an-stem-lop-8",
		"  ***  ":                  "",
		"Rubric: Thuyết trình!":    "rubric-thuyet-trinh",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
	if got := Fold("Hóa học"); got != "Hoa hoc" {
		t.Fatalf("Fold() = %q", got)
	}
	if got := KindLabel(domain.KindLessonPlan); got != "Lesson Plan" {
		t.Fatalf("KindLabel() = %q", got)
	}
}
