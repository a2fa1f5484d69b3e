package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Question types produced by the quiz generator.
const (
	QuestionMultipleChoice = "multiple choice"
	QuestionEssay          = "essay"
)

// Question is a single quiz item.
type Question struct {
	ID            int               `json:"id"`
	Type          string            `json:"type"`
	Question      string            `json:"question"`
	Options       map[string]string `json:"options,omitempty"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
	Difficulty    int               `json:"difficulty,omitempty"`
	Taxonomy      string            `json:"taxonomy,omitempty"`
	Keywords      []string          `json:"keywords,omitempty"`
	Topic         string            `json:"topic,omitempty"`
}

// IsEssay reports whether the question expects a written answer.
func (q Question) IsEssay() bool {
	return strings.EqualFold(strings.TrimSpace(q.Type), QuestionEssay)
}

// Quiz is a generated assessment with multiple-choice and essay sections.
type Quiz struct {
	Name             string     `json:"name"`
	Subject          Label      `json:"subject"`
	Grade            Label      `json:"grade"`
	TimeLimit        int        `json:"time_limit"`
	QuestionCount    int        `json:"question_count"`
	Questions        []Question `json:"questions"`
	StudySuggestions []string   `json:"study_suggestions,omitempty"`
	References       []string   `json:"references,omitempty"`
	SearchTerms      []string   `json:"search_terms,omitempty"`

	Meta Metadata `json:"-"`
}

func (q *Quiz) Kind() Kind { return KindQuiz }
func (q *Quiz) Title() string { return q.Name }
func (q *Quiz) Metadata() Metadata { return q.Meta }
func (q *Quiz) SetMetadata(m Metadata) { q.Meta = m }

func (q *Quiz) Summary() Summary {
	var essays int
	for _, item := range q.Questions {
		if item.IsEssay() {
			essays++
		}
	}
	return Summary{
		Kind:  KindQuiz,
		Title: q.Name,
		Items: len(q.Questions),
		Description: fmt.Sprintf("%d multiple choice, %d essay, %d minutes",
			len(q.Questions)-essays, essays, q.TimeLimit),
	}
}

func (q *Quiz) Check() error {
	if strings.TrimSpace(q.Name) == "" {
		return fmt.Errorf("quiz: name is empty")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz: no questions")
	}
	for i, item := range q.Questions {
		if strings.TrimSpace(item.Question) == "" {
			return fmt.Errorf("quiz: question %d has no text", i+1)
		}
		if !item.IsEssay() && len(item.Options) == 0 {
			return fmt.Errorf("quiz: question %d has no options", i+1)
		}
	}
	return nil
}

// Markdown lists multiple-choice questions first and essay questions in a
// separate section after them.
func (q *Quiz) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", q.Name)
	if q.Subject != "" {
		fmt.Fprintf(&b, "- Subject: %s\n", q.Subject)
	}
	if q.Grade != "" {
		fmt.Fprintf(&b, "- Grade: %s\n", q.Grade)
	}
	fmt.Fprintf(&b, "- Questions: %d\n", len(q.Questions))
	if q.TimeLimit > 0 {
		fmt.Fprintf(&b, "- Time limit: %d minutes\n", q.TimeLimit)
	}
	b.WriteString("\n")

	var choice, essay []Question
	for _, item := range q.Questions {
		if item.IsEssay() {
			essay = append(essay, item)
		} else {
			choice = append(choice, item)
		}
	}
	if len(choice) > 0 {
		b.WriteString("## Multiple choice\n\n")
		for _, item := range choice {
			fmt.Fprintf(&b, "### Question %d: %s\n\n", item.ID, item.Question)
			keys := make([]string, 0, len(item.Options))
			for k := range item.Options {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- **%s.** %s\n", k, item.Options[k])
			}
			fmt.Fprintf(&b, "\n**Answer:** %s\n\n", item.CorrectAnswer)
			if item.Explanation != "" {
				fmt.Fprintf(&b, "*Explanation:* %s\n\n", item.Explanation)
			}
		}
	}
	if len(essay) > 0 {
		b.WriteString("## Essay\n\n")
		for _, item := range essay {
			fmt.Fprintf(&b, "### Question %d: %s\n\n", item.ID, item.Question)
			if item.CorrectAnswer != "" {
				fmt.Fprintf(&b, "**Answer:** %s\n\n", item.CorrectAnswer)
			}
			if item.Explanation != "" {
				fmt.Fprintf(&b, "*Explanation:* %s\n\n", item.Explanation)
			}
		}
	}
	writeList(&b, "Study suggestions", q.StudySuggestions)
	writeList(&b, "References", q.References)
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}
