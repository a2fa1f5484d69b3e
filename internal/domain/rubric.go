package domain

import (
	"fmt"
	"math"
	"strings"
)

// RubricLevel describes one performance level of a criterion.
type RubricLevel struct {
	Label       string `json:"label"`
	ScoreRange  string `json:"score_range"`
	Description string `json:"description"`
}

// Criterion is a weighted rubric dimension.
type Criterion struct {
	Name          string        `json:"name"`
	WeightPercent float64       `json:"weight_percent"`
	Levels        []RubricLevel `json:"levels"`
}

// RubricScale describes how scores are reported.
type RubricScale struct {
	Type     string   `json:"type"`
	MaxScore float64  `json:"max_score"`
	Levels   []string `json:"levels"`
}

// Rubric is a generated assessment rubric.
type Rubric struct {
	RubricTitle    string      `json:"rubric_title"`
	Subject        Label       `json:"subject"`
	GradeLevel     Label       `json:"grade_level"`
	AssessmentType string      `json:"assessment_type"`
	Criteria       []Criterion `json:"criteria"`
	Scale          RubricScale `json:"scale"`

	Meta Metadata `json:"-"`
}

func (r *Rubric) Kind() Kind { return KindRubric }
func (r *Rubric) Title() string { return r.RubricTitle }
func (r *Rubric) Metadata() Metadata { return r.Meta }
func (r *Rubric) SetMetadata(m Metadata) { r.Meta = m }

func (r *Rubric) Summary() Summary {
	return Summary{
		Kind:        KindRubric,
		Title:       r.RubricTitle,
		Items:       len(r.Criteria),
		Description: fmt.Sprintf("%d criteria, %s scale", len(r.Criteria), r.Scale.Type),
	}
}

// Check requires criteria weights to sum to 100.
func (r *Rubric) Check() error {
	if len(r.Criteria) == 0 {
		return fmt.Errorf("rubric: no criteria")
	}
	var total float64
	for _, c := range r.Criteria {
		if c.WeightPercent < 0 {
			return fmt.Errorf("rubric: criterion %q has negative weight", c.Name)
		}
		total += c.WeightPercent
	}
	if math.Abs(total-100) > 1e-6 {
		return fmt.Errorf("rubric: criteria weights sum to %.2f, want 100", total)
	}
	return nil
}

func (r *Rubric) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.RubricTitle)
	if r.Subject != "" {
		fmt.Fprintf(&b, "- Subject: %s\n", r.Subject)
	}
	if r.GradeLevel != "" {
		fmt.Fprintf(&b, "- Grade level: %s\n", r.GradeLevel)
	}
	if r.AssessmentType != "" {
		fmt.Fprintf(&b, "- Assessment: %s\n", r.AssessmentType)
	}
	if r.Scale.Type != "" {
		fmt.Fprintf(&b, "- Scale: %s (max %g)\n", r.Scale.Type, r.Scale.MaxScore)
	}
	b.WriteString("\n## Criteria\n\n")
	b.WriteString("| Criterion | Weight | Level | Score | Description |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, c := range r.Criteria {
		for i, lvl := range c.Levels {
			name, weight := "", ""
			if i == 0 {
				name, weight = c.Name, fmt.Sprintf("%g%%", c.WeightPercent)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(name), weight, cell(lvl.Label), cell(lvl.ScoreRange), cell(lvl.Description))
		}
		if len(c.Levels) == 0 {
			fmt.Fprintf(&b, "| %s | %g%% |  |  |  |\n", cell(c.Name), c.WeightPercent)
		}
	}
	return b.String()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
