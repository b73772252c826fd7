package generation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema is a compiled JSON schema together with its source text.
type Schema struct {
	name     string
	raw      []byte
	compiled *jsonschema.Schema
}

// CompileSchema compiles raw as a JSON schema named name.
func CompileSchema(name string, raw []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := name + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("%w: add schema %s: %w", ErrInvalidConfig, name, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema %s: %w", ErrInvalidConfig, name, err)
	}
	return &Schema{name: name, raw: raw, compiled: compiled}, nil
}

// Name returns the schema name.
func (s *Schema) Name() string { return s.name }

// Raw returns the schema source.
func (s *Schema) Raw() []byte { return s.raw }

// Validate checks that data is a JSON document satisfying the schema.
func (s *Schema) Validate(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: not valid JSON: %w", ErrInvalidResponse, err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("%w: does not match %s schema: %w", ErrInvalidResponse, s.name, err)
	}
	return nil
}

func mustLoadSchema(name string) *Schema {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		panic(err)
	}
	s, err := CompileSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

var (
	unitSchema     = mustLoadSchema("unit")
	overviewSchema = mustLoadSchema("overview")
)

// UnitSchema returns the schema per-unit output must satisfy.
func UnitSchema() *Schema { return unitSchema }

// OverviewSchema returns the schema the repository overview must satisfy.
func OverviewSchema() *Schema { return overviewSchema }

// extractJSON strips a Markdown code fence that models commonly wrap JSON in.
func extractJSON(out []byte) []byte {
	s := strings.TrimSpace(string(out))
	if !strings.HasPrefix(s, "```") {
		return []byte(s)
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return []byte(strings.TrimSpace(s))
}
