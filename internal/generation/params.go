package generation

import (
	"strconv"
	"strings"

	"edugen/internal/domain"
)

// Lesson plan templates.
const (
	TemplateK12          = "k12"
	TemplateKindergarten = "kindergarten"
	TemplateCustom       = "custom"
)

type intRange struct {
	min, max, def int
}

var intParams = map[domain.Kind]map[string]intRange{
	domain.KindQuiz: {
		"num_questions": {1, 50, 10},
		"time_limit":    {10, 180, 45},
		"percentage":    {0, 100, 70},
		"grade":         {1, 12, 0},
	},
	domain.KindRubric: {
		"number_of_criteria": {1, 10, 4},
	},
}

var stringDefaults = map[domain.Kind]map[string]string{
	domain.KindLessonPlan: {
		"method":   "CTGDPT 2018",
		"duration": "45 phút",
		"template": TemplateK12,
	},
	domain.KindQuiz: {
		"name":       "Bài Kiểm Tra",
		"difficulty": "Medium",
	},
	domain.KindRubric: {
		"assessment_type": "Dự án học tập",
	},
}

var difficulties = map[string]string{
	"easy":   "Easy",
	"medium": "Medium",
	"hard":   "Hard",
}

// NormalizeParams validates raw request parameters for kind and fills in
// defaults. Unknown keys are passed through untouched.
func NormalizeParams(kind domain.Kind, raw map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(raw)+4)
	for k, v := range raw {
		out[k] = strings.TrimSpace(v)
	}
	for k, def := range stringDefaults[kind] {
		if out[k] == "" {
			out[k] = def
		}
	}
	for k, r := range intParams[kind] {
		v := out[k]
		if v == "" {
			if r.def != 0 {
				out[k] = strconv.Itoa(r.def)
			}
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.Invalid(domain.CodeValidationFailed, "%s must be an integer, got %q", k, v)
		}
		if n < r.min || n > r.max {
			return nil, domain.Invalid(domain.CodeValidationFailed, "%s must be between %d and %d, got %d", k, r.min, r.max, n)
		}
		out[k] = strconv.Itoa(n)
	}

	switch kind {
	case domain.KindQuiz:
		d, ok := difficulties[strings.ToLower(out["difficulty"])]
		if !ok {
			return nil, domain.Invalid(domain.CodeValidationFailed, "difficulty must be Easy, Medium or Hard, got %q", out["difficulty"])
		}
		out["difficulty"] = d
	case domain.KindLessonPlan:
		t := strings.ToLower(out["template"])
		switch t {
		case TemplateK12, TemplateKindergarten, TemplateCustom:
			out["template"] = t
		default:
			return nil, domain.Invalid(domain.CodeValidationFailed, "template must be k12, kindergarten or custom, got %q", out["template"])
		}
		if t == TemplateCustom && out["prompt"] == "" {
			return nil, domain.Invalid(domain.CodeValidationFailed, "prompt is required for the custom template")
		}
		if out["title"] == "" && out["prompt"] == "" {
			return nil, domain.Invalid(domain.CodeValidationFailed, "title or prompt is required")
		}
	}
	return out, nil
}
