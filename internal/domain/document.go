package domain

import (
	"time"

	"github.com/google/uuid"
)

// DependencyDetail describes a dependency referenced by a unit.
type DependencyDetail struct {
	Usage       string `json:"usage"`
	Description string `json:"description"`
}

// SymbolDetail describes a symbol declared in a unit.
type SymbolDetail struct {
	Description string `json:"description"`
	Declaration string `json:"declaration"`
	Notes       string `json:"notes"`
}

// UnitResult is the structured documentation generated for one unit.
type UnitResult struct {
	Path         string                      `json:"path"`
	Summary      string                      `json:"summary"`
	Dependencies map[string]DependencyDetail `json:"dependencies"`
	Symbols      map[string]SymbolDetail     `json:"symbols"`
}

// RepositoryOverview is the repository-level output of the overview step.
type RepositoryOverview struct {
	Summary            string            `json:"summary"`
	Functionalities    map[string]string `json:"functionalities"`
	ProjectComponents  map[string]string `json:"project_components"`
	DatabaseComponents map[string]string `json:"database_components"`
	TechStack          map[string]string `json:"tech_stack"`
}

// Document is the aggregate of all generated output for one repository.
// Units is keyed by the plain unit key; escaping for storage happens in the
// store implementations.
type Document struct {
	RepositoryID      string                `json:"repository_id"`
	RepositoryName    string                `json:"repository_name"`
	RepositorySummary string                `json:"repository_summary,omitempty"`
	Overview          *RepositoryOverview   `json:"overview,omitempty"`
	Units             map[string]UnitResult `json:"units"`
	Generation        uuid.UUID             `json:"generation"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// NewDocument creates an empty aggregate for a repository.
func NewDocument(repositoryID string, generation uuid.UUID) *Document {
	now := time.Now().UTC()
	return &Document{
		RepositoryID:   repositoryID,
		RepositoryName: RepositoryName(repositoryID),
		Units:          make(map[string]UnitResult),
		Generation:     generation,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Normalize replaces nil maps with empty ones so encoded output is stable.
func (r *UnitResult) Normalize() {
	if r.Dependencies == nil {
		r.Dependencies = map[string]DependencyDetail{}
	}
	if r.Symbols == nil {
		r.Symbols = map[string]SymbolDetail{}
	}
}

// Normalize replaces nil maps with empty ones so encoded output is stable.
func (o *RepositoryOverview) Normalize() {
	if o.Functionalities == nil {
		o.Functionalities = map[string]string{}
	}
	if o.ProjectComponents == nil {
		o.ProjectComponents = map[string]string{}
	}
	if o.DatabaseComponents == nil {
		o.DatabaseComponents = map[string]string{}
	}
	if o.TechStack == nil {
		o.TechStack = map[string]string{}
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Units = make(map[string]UnitResult, len(d.Units))
	for k, v := range d.Units {
		cp.Units[k] = v.Clone()
	}
	if d.Overview != nil {
		ov := d.Overview.clone()
		cp.Overview = &ov
	}
	return &cp
}

// Clone returns a deep copy of the result.
func (r UnitResult) Clone() UnitResult {
	cp := r
	if r.Dependencies != nil {
		cp.Dependencies = make(map[string]DependencyDetail, len(r.Dependencies))
		for k, v := range r.Dependencies {
			cp.Dependencies[k] = v
		}
	}
	if r.Symbols != nil {
		cp.Symbols = make(map[string]SymbolDetail, len(r.Symbols))
		for k, v := range r.Symbols {
			cp.Symbols[k] = v
		}
	}
	return cp
}

func (o RepositoryOverview) clone() RepositoryOverview {
	cp := o
	cp.Functionalities = cloneStrings(o.Functionalities)
	cp.ProjectComponents = cloneStrings(o.ProjectComponents)
	cp.DatabaseComponents = cloneStrings(o.DatabaseComponents)
	cp.TechStack = cloneStrings(o.TechStack)
	return cp
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
