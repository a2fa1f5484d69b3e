package generation

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"edugen/internal/domain"
)

//go:embed prompts.yaml
var promptsYAML []byte

type promptSpec struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type promptTemplate struct {
	system string
	user   *template.Template
}

// PromptSet renders the system and user prompts for each artifact kind.
type PromptSet struct {
	templates map[string]promptTemplate
}

// LoadPrompts parses the embedded prompt templates.
func LoadPrompts() (*PromptSet, error) {
	return ParsePrompts(promptsYAML)
}

// ParsePrompts parses a YAML document mapping template names to system and
// user prompts.
func ParsePrompts(data []byte) (*PromptSet, error) {
	var specs map[string]promptSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	set := &PromptSet{templates: make(map[string]promptTemplate, len(specs))}
	for name, spec := range specs {
		tmpl, err := template.New(name).Option("missingkey=zero").Parse(spec.User)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		set.templates[name] = promptTemplate{system: strings.TrimSpace(spec.System), user: tmpl}
	}
	return set, nil
}

func templateName(kind domain.Kind, params map[string]string) string {
	if kind == domain.KindLessonPlan {
		t := params["template"]
		if t == "" {
			t = TemplateK12
		}
		return string(kind) + "." + t
	}
	return string(kind)
}

// Render builds the prompt for kind from normalized params and the text
// extracted from an attachment.
func (s *PromptSet) Render(kind domain.Kind, params map[string]string, source string) (Prompt, error) {
	name := templateName(kind, params)
	t, ok := s.templates[name]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt template %q", name)
	}
	var b strings.Builder
	data := struct {
		P      map[string]string
		Source string
	}{P: params, Source: source}
	if err := t.user.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	return Prompt{System: t.system, User: strings.TrimSpace(b.String()), Kind: kind, Params: params}, nil
}
