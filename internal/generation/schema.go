package generation

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"edugen/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schemas holds the compiled JSON schema of every artifact kind.
type Schemas struct {
	byKind map[domain.Kind]*gojsonschema.Schema
}

// LoadSchemas compiles the embedded schemas.
func LoadSchemas() (*Schemas, error) {
	s := &Schemas{byKind: make(map[domain.Kind]*gojsonschema.Schema, len(domain.Kinds))}
	for _, kind := range domain.Kinds {
		data, err := schemaFS.ReadFile("schemas/" + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", kind, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", kind, err)
		}
		s.byKind[kind] = schema
	}
	return s, nil
}

// Validate checks doc against the schema for kind.
func (s *Schemas) Validate(kind domain.Kind, doc string) error {
	schema, ok := s.byKind[kind]
	if !ok {
		return fmt.Errorf("no schema for %s", kind)
	}
	result, err := schema.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("%s does not match schema: %s", kind, strings.Join(msgs, "; "))
	}
	return nil
}

// Decode extracts the JSON object from raw model output, validates it and
// decodes it into the variant for kind.
func (s *Schemas) Decode(kind domain.Kind, raw string) (domain.Artifact, error) {
	doc, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(kind, doc); err != nil {
		return nil, err
	}
	a, err := domain.NewArtifact(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(doc), a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	if err := a.Check(); err != nil {
		return nil, err
	}
	return a, nil
}
