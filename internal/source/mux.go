package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Mux dispatches to a provider by repository ID scheme. IDs without a
// scheme use the "file" provider.
type Mux struct {
	providers map[string]Provider
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{providers: make(map[string]Provider)}
}

// Handle registers p for scheme. Not safe to call concurrently with ListUnits.
func (m *Mux) Handle(scheme string, p Provider) {
	m.providers[strings.ToLower(scheme)] = p
}

// ListUnits forwards to the provider registered for the ID's scheme.
func (m *Mux) ListUnits(ctx context.Context, repositoryID string, filter Filter) ([]Unit, error) {
	scheme := schemeOf(repositoryID)
	p, ok := m.providers[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
	return p.ListUnits(ctx, repositoryID, filter)
}

func schemeOf(repositoryID string) string {
	if !strings.Contains(repositoryID, "://") {
		return "file"
	}
	u, err := url.Parse(repositoryID)
	if err != nil || u.Scheme == "" {
		return "file"
	}
	return strings.ToLower(u.Scheme)
}
