package domain

import (
	"strings"
	"testing"
	"time"
)

func TestUnmarshalArtifactAcceptsNumericLabels(t *testing.T) {
	snapshot := []byte(`{"kind":"quiz","metadata":{"job_id":"job-1","backend":"synthetic"},"content":{
		"name":"Physics midterm","subject":"Physics","grade":12,"time_limit":45,"question_count":2,
		"questions":[
			{"id":1,"type":"multiple choice","question":"Unit of force?","options":{"B":"Joule","A":"Newton"},"correct_answer":"A","explanation":"SI"},
			{"id":2,"type":"essay","question":"State Newton's second law.","correct_answer":"F = ma","explanation":""}
		]}}`)
	a, err := UnmarshalArtifact(snapshot)
	if err != nil {
		t.Fatalf("UnmarshalArtifact() error: %v", err)
	}
	q, ok := a.(*Quiz)
	if !ok {
		t.Fatalf("expected *Quiz, got %T", a)
	}
	if q.Grade != "12" {
		t.Fatalf("grade = %q, want 12", q.Grade)
	}
	if a.Metadata().JobID != "job-1" {
		t.Fatalf("metadata job id = %q", a.Metadata().JobID)
	}
	md := a.Markdown()
	mc := strings.Index(md, "## Multiple choice")
	essay := strings.Index(md, "## Essay")
	if mc < 0 || essay < 0 || mc > essay {
		t.Fatalf("expected multiple choice section before essay section:\n%s", md)
	}
	if strings.Index(md, "**A.** Newton") > strings.Index(md, "**B.** Joule") {
		t.Fatalf("options not sorted:\n%s", md)
	}
	sum := a.Summary()
	if sum.Items != 2 || !strings.Contains(sum.Description, "1 multiple choice, 1 essay") {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestMarshalArtifactKeepsMetadata(t *testing.T) {
	r := &Rubric{
		RubricTitle: "Lab report",
		Criteria: []Criterion{
			{Name: "Method", WeightPercent: 60},
			{Name: "Analysis", WeightPercent: 40},
		},
		Scale: RubricScale{Type: "points", MaxScore: 10},
	}
	meta := Metadata{JobID: "job-9", Backend: "gemini", Duration: 3 * time.Second}
	r.SetMetadata(meta)
	data, err := MarshalArtifact(r)
	if err != nil {
		t.Fatalf("MarshalArtifact() error: %v", err)
	}
	back, err := UnmarshalArtifact(data)
	if err != nil {
		t.Fatalf("UnmarshalArtifact() error: %v", err)
	}
	if back.Kind() != KindRubric || back.Title() != "Lab report" {
		t.Fatalf("unexpected artifact %s %q", back.Kind(), back.Title())
	}
	if back.Metadata().Duration != meta.Duration || back.Metadata().Backend != "gemini" {
		t.Fatalf("metadata mismatch: %+v", back.Metadata())
	}
}

func TestRubricCheckWeights(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		wantErr bool
	}{
		{"exact", []float64{25, 25, 50}, false},
		{"fractional", []float64{33.3333333, 33.3333333, 33.3333334}, false},
		{"under", []float64{30, 30, 30}, true},
		{"over", []float64{60, 50}, true},
		{"negative", []float64{120, -20}, true},
		{"empty", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Rubric{RubricTitle: "r"}
			for i, w := range tc.weights {
				r.Criteria = append(r.Criteria, Criterion{Name: string(rune('a' + i)), WeightPercent: w})
			}
			err := r.Check()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Check() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestLessonPlanPhasesOrder(t *testing.T) {
	l := &LessonPlan{
		Header:           LessonHeader{Title: "Fractions"},
		Objectives:       []string{"compare fractions"},
		PracticeActivity: &Activity{Name: "practice"},
		StartActivity:    &Activity{Name: "warm up"},
	}
	phases := l.Phases()
	if len(phases) != 2 || phases[0].Name != "warm up" || phases[1].Name != "practice" {
		t.Fatalf("unexpected phases %+v", phases)
	}
	if err := l.Check(); err != nil {
		t.Fatalf("Check() error: %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"quiz": KindQuiz, "Lesson-Plan": KindLessonPlan, " rubric ": KindRubric} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("essay"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
