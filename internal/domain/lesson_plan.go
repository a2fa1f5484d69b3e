package domain

import (
	"fmt"
	"strings"
)

// LessonHeader carries the lesson plan's identifying fields.
type LessonHeader struct {
	Title    string `json:"title"`
	Subject  Label  `json:"subject"`
	Grade    Label  `json:"grade"`
	Duration string `json:"duration"`
	Method   string `json:"method,omitempty"`
}

// Activity is one teaching phase with teacher and student actions.
type Activity struct {
	Name           string   `json:"name"`
	Goal           string   `json:"goal"`
	Content        string   `json:"content,omitempty"`
	Product        string   `json:"product,omitempty"`
	TeacherActions []string `json:"teacher_actions"`
	StudentActions []string `json:"student_actions"`
}

// LessonPlan is a generated lesson plan. The k12 template fills the four
// named phases; other templates use Activities.
type LessonPlan struct {
	Header                     LessonHeader `json:"meta"`
	Objectives                 []string     `json:"objectives"`
	Resources                  []string     `json:"resources"`
	StartActivity              *Activity    `json:"start_activity,omitempty"`
	KnowledgeFormationActivity *Activity    `json:"knowledge_formation_activity,omitempty"`
	PracticeActivity           *Activity    `json:"practice_activity,omitempty"`
	ExtendActivity             *Activity    `json:"extend_activity,omitempty"`
	Activities                 []Activity   `json:"activities,omitempty"`

	Meta Metadata `json:"-"`
}

func (l *LessonPlan) Kind() Kind { return KindLessonPlan }
func (l *LessonPlan) Title() string { return l.Header.Title }
func (l *LessonPlan) Metadata() Metadata { return l.Meta }
func (l *LessonPlan) SetMetadata(m Metadata) { l.Meta = m }

// Phases returns the activities in teaching order.
func (l *LessonPlan) Phases() []Activity {
	var out []Activity
	for _, a := range []*Activity{l.StartActivity, l.KnowledgeFormationActivity, l.PracticeActivity, l.ExtendActivity} {
		if a != nil {
			out = append(out, *a)
		}
	}
	return append(out, l.Activities...)
}

func (l *LessonPlan) Summary() Summary {
	phases := l.Phases()
	return Summary{
		Kind:        KindLessonPlan,
		Title:       l.Header.Title,
		Items:       len(phases),
		Description: fmt.Sprintf("%d objectives, %d activities, %s", len(l.Objectives), len(phases), l.Header.Duration),
	}
}

func (l *LessonPlan) Check() error {
	if strings.TrimSpace(l.Header.Title) == "" {
		return fmt.Errorf("lesson plan: title is empty")
	}
	if len(l.Objectives) == 0 {
		return fmt.Errorf("lesson plan: no objectives")
	}
	if len(l.Phases()) == 0 {
		return fmt.Errorf("lesson plan: no activities")
	}
	return nil
}

func (l *LessonPlan) Markdown() string {
	var b strings.Builder
	h := l.Header
	fmt.Fprintf(&b, "# %s\n\n", h.Title)
	if h.Subject != "" {
		fmt.Fprintf(&b, "- Subject: %s\n", h.Subject)
	}
	if h.Grade != "" {
		fmt.Fprintf(&b, "- Grade: %s\n", h.Grade)
	}
	if h.Duration != "" {
		fmt.Fprintf(&b, "- Duration: %s\n", h.Duration)
	}
	if h.Method != "" {
		fmt.Fprintf(&b, "- Method: %s\n", h.Method)
	}
	b.WriteString("\n")
	writeList(&b, "Objectives", l.Objectives)
	writeList(&b, "Resources", l.Resources)
	for i, a := range l.Phases() {
		fmt.Fprintf(&b, "## Activity %d: %s\n\n", i+1, a.Name)
		if a.Goal != "" {
			fmt.Fprintf(&b, "**Goal:** %s\n\n", a.Goal)
		}
		if a.Content != "" {
			fmt.Fprintf(&b, "**Content:** %s\n\n", a.Content)
		}
		if a.Product != "" {
			fmt.Fprintf(&b, "**Product:** %s\n\n", a.Product)
		}
		writeSteps(&b, "Teacher", a.TeacherActions)
		writeSteps(&b, "Students", a.StudentActions)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSteps(b *strings.Builder, who string, steps []string) {
	if len(steps) == 0 {
		return
	}
	fmt.Fprintf(b, "**%s:**\n\n", who)
	for _, s := range steps {
		fmt.Fprintf(b, "1. %s\n", s)
	}
	b.WriteString("\n")
}
