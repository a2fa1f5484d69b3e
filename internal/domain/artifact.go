package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the artifact variant a generation produces.
type Kind string

const (
	KindLessonPlan Kind = "lesson_plan"
	KindQuiz       Kind = "quiz"
	KindRubric     Kind = "rubric"
)

// Kinds lists every supported artifact kind.
var Kinds = []Kind{KindLessonPlan, KindQuiz, KindRubric}

// ParseKind normalizes s into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))))
	switch k {
	case KindLessonPlan, KindQuiz, KindRubric:
		return k, nil
	case "lessonplan":
		return KindLessonPlan, nil
	}
	return "", Invalid(CodeValidationFailed, "unsupported kind %q", s)
}

// Metadata records how an artifact was produced.
type Metadata struct {
	JobID       string        `json:"job_id"`
	Backend     string        `json:"backend"`
	Model       string        `json:"model,omitempty"`
	SourceRef   string        `json:"source_ref,omitempty"`
	Duration    time.Duration `json:"duration"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Summary is the short description published with a done event.
type Summary struct {
	Kind        Kind   `json:"kind"`
	Title       string `json:"title"`
	Items       int    `json:"items"`
	Description string `json:"description"`
}

// Artifact is implemented by every generated variant. Per-kind formatting
// lives on the variants so callers never switch on Kind.
type Artifact interface {
	Kind() Kind
	Title() string
	Summary() Summary
	// Markdown renders the exportable document.
	Markdown() string
	Metadata() Metadata
	SetMetadata(Metadata)
	// Check enforces invariants a schema cannot express.
	Check() error
}

// NewArtifact returns an empty variant for kind, ready to be decoded into.
func NewArtifact(kind Kind) (Artifact, error) {
	switch kind {
	case KindLessonPlan:
		return &LessonPlan{}, nil
	case KindQuiz:
		return &Quiz{}, nil
	case KindRubric:
		return &Rubric{}, nil
	}
	return nil, fmt.Errorf("unknown artifact kind %q", kind)
}

type envelope struct {
	Kind     Kind            `json:"kind"`
	Metadata Metadata        `json:"metadata"`
	Content  json.RawMessage `json:"content"`
}

// MarshalArtifact produces the self-describing snapshot used by token
// stores and durable records.
func MarshalArtifact(a Artifact) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("marshal artifact: nil artifact")
	}
	content, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal artifact content: %w", err)
	}
	return json.Marshal(envelope{Kind: a.Kind(), Metadata: a.Metadata(), Content: content})
}

// UnmarshalArtifact restores a snapshot produced by MarshalArtifact.
func UnmarshalArtifact(data []byte) (Artifact, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal artifact: %w", err)
	}
	a, err := NewArtifact(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Content, a); err != nil {
		return nil, fmt.Errorf("unmarshal %s content: %w", env.Kind, err)
	}
	a.SetMetadata(env.Metadata)
	return a, nil
}

// Label is a free-form text field that models sometimes emit as a number,
// e.g. a grade of 10 or "Lớp 10".
type Label string

func (l *Label) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*l = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*l = Label(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("label: unsupported value %s", s)
	}
	*l = Label(s)
	return nil
}

func (l Label) String() string { return string(l) }
