package generation

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// UnitPromptData is the input to the unit prompt template.
type UnitPromptData struct {
	RepositoryName string
	Path           string
	Category       string
	Content        string
}

// UnitDigest is one successful unit output fed to the overview prompt.
type UnitDigest struct {
	Key    string
	Output string
}

// OverviewPromptData is the input to the overview prompt template.
type OverviewPromptData struct {
	RepositoryName string
	Units          []UnitDigest
}

// Prompts holds the parsed prompt templates.
type Prompts struct {
	system   string
	unit     *template.Template
	overview *template.Template
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() *Prompts {
	p, err := loadPrompts(func(name string) ([]byte, error) {
		return promptFS.ReadFile("prompts/" + name)
	})
	if err != nil {
		panic(err)
	}
	return p
}

// LoadPrompts reads system.tmpl, unit.tmpl and overview.tmpl from dir.
// Files missing from dir fall back to the built-in versions.
func LoadPrompts(dir string) (*Prompts, error) {
	if dir == "" {
		return DefaultPrompts(), nil
	}
	return loadPrompts(func(name string) ([]byte, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if os.IsNotExist(err) {
			return promptFS.ReadFile("prompts/" + name)
		}
		return b, err
	})
}

func loadPrompts(read func(name string) ([]byte, error)) (*Prompts, error) {
	system, err := read("system.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: read system prompt: %w", ErrInvalidConfig, err)
	}
	unit, err := parseTemplate(read, "unit.tmpl")
	if err != nil {
		return nil, err
	}
	overview, err := parseTemplate(read, "overview.tmpl")
	if err != nil {
		return nil, err
	}
	return &Prompts{system: string(system), unit: unit, overview: overview}, nil
}

func parseTemplate(read func(name string) ([]byte, error), name string) (*template.Template, error) {
	text, err := read(name)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(text))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, name, err)
	}
	return tmpl, nil
}

// System returns the system instruction shared by all requests.
func (p *Prompts) System() string { return p.system }

// RenderUnit renders the per-unit prompt.
func (p *Prompts) RenderUnit(data UnitPromptData) (string, error) {
	var buf bytes.Buffer
	if err := p.unit.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render unit prompt: %w", err)
	}
	return buf.String(), nil
}

// RenderOverview renders the repository overview prompt.
func (p *Prompts) RenderOverview(data OverviewPromptData) (string, error) {
	var buf bytes.Buffer
	if err := p.overview.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render overview prompt: %w", err)
	}
	return buf.String(), nil
}
