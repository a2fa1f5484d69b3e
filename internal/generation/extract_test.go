package generation

import (
	"strings"
	"testing"

	"edugen/internal/domain"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		err   bool
	}{
		{name: "plain", input: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "leading prose", input: "Đây là kết quả: {\"a\":{\"b\":2}} cảm ơn", want: `{"a":{"b":2}}`},
		{name: "braces in strings", input: `{"s":"}{\"}"} trailing {"x":1}`, want: `{"s":"}{\"}"}`},
		{name: "unbalanced", input: `{"a":{"b":1}`, err: true},
		{name: "no object", input: "no json here", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.input)
			if tc.err {
				if err == nil {
					t.Fatalf("ExtractJSON() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON() error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("ExtractJSON() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNormalizeParamsDefaults(t *testing.T) {
	got, err := NormalizeParams(domain.KindQuiz, map[string]string{"difficulty": " hard "})
	if err != nil {
		t.Fatalf("NormalizeParams() error: %v", err)
	}
	want := map[string]string{
		"name":          "Bài Kiểm Tra",
		"difficulty":    "Hard",
		"num_questions": "10",
		"time_limit":    "45",
		"percentage":    "70",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}
	if _, ok := got["grade"]; ok {
		t.Fatalf("grade should stay unset, got %q", got["grade"])
	}

	lesson, err := NormalizeParams(domain.KindLessonPlan, map[string]string{"title": "Phép cộng"})
	if err != nil {
		t.Fatalf("NormalizeParams() error: %v", err)
	}
	if lesson["template"] != TemplateK12 || lesson["method"] != "CTGDPT 2018" || lesson["duration"] != "45 phút" {
		t.Fatalf("lesson defaults = %v", lesson)
	}
}

func TestNormalizeParamsRanges(t *testing.T) {
	cases := []struct {
		kind   domain.Kind
		params map[string]string
		ok     bool
	}{
		{domain.KindQuiz, map[string]string{"num_questions": "1"}, true},
		{domain.KindQuiz, map[string]string{"num_questions": "50"}, true},
		{domain.KindQuiz, map[string]string{"num_questions": "0"}, false},
		{domain.KindQuiz, map[string]string{"time_limit": "9"}, false},
		{domain.KindQuiz, map[string]string{"time_limit": "180"}, true},
		{domain.KindQuiz, map[string]string{"percentage": "101"}, false},
		{domain.KindQuiz, map[string]string{"grade": "13"}, false},
		{domain.KindQuiz, map[string]string{"num_questions": "ten"}, false},
		{domain.KindRubric, map[string]string{"number_of_criteria": "10"}, true},
		{domain.KindRubric, map[string]string{"number_of_criteria": "0"}, false},
		{domain.KindLessonPlan, map[string]string{"title": "x", "template": "university"}, false},
		{domain.KindLessonPlan, map[string]string{"template": "custom", "title": "x"}, false},
		{domain.KindLessonPlan, map[string]string{}, false},
		{domain.KindLessonPlan, map[string]string{"template": "Kindergarten", "prompt": "Bé khám phá nước"}, true},
	}
	for _, tc := range cases {
		_, err := NormalizeParams(tc.kind, tc.params)
		if (err == nil) != tc.ok {
			t.Fatalf("NormalizeParams(%s, %v) error = %v, want ok=%v", tc.kind, tc.params, err, tc.ok)
		}
		if err != nil && domain.CodeOf(err) != domain.CodeValidationFailed {
			t.Fatalf("code = %s", domain.CodeOf(err))
		}
	}
}

func TestRenderPrompts(t *testing.T) {
	set, err := LoadPrompts()
	if err != nil {
		t.Fatalf("LoadPrompts() error: %v", err)
	}
	params, _ := NormalizeParams(domain.KindQuiz, map[string]string{"subject": "Vật lý", "num_questions": "12"})
	p, err := set.Render(domain.KindQuiz, params, "Định luật Newton")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"12 câu hỏi", "Môn học: Vật lý", "Định luật Newton"} {
		if !strings.Contains(p.User, want) {
			t.Fatalf("user prompt missing %q:\n%s", want, p.User)
		}
	}
	if strings.Contains(p.User, "<no value>") || strings.Contains(p.User, "Chủ đề") {
		t.Fatalf("user prompt renders unset params:\n%s", p.User)
	}
	if p.System == "" {
		t.Fatal("system prompt is empty")
	}

	for _, tmpl := range []string{TemplateK12, TemplateKindergarten, TemplateCustom} {
		params, err := NormalizeParams(domain.KindLessonPlan, map[string]string{"template": tmpl, "prompt": "Bài 1"})
		if err != nil {
			t.Fatalf("NormalizeParams(%s) error: %v", tmpl, err)
		}
		if _, err := set.Render(domain.KindLessonPlan, params, ""); err != nil {
			t.Fatalf("Render(%s) error: %v", tmpl, err)
		}
	}
}
