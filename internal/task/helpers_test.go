package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/events"
	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/phrazzld/docgen-api/internal/platform/memory"
	"github.com/phrazzld/docgen-api/internal/source"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// MockGenerator is a function-field fake of Generator that records calls.
type MockGenerator struct {
	GenerateUnitFn     func(ctx context.Context, in generation.UnitInput) (*generation.UnitOutput, error)
	GenerateOverviewFn func(ctx context.Context, name string, units []generation.UnitDigest) (*domain.RepositoryOverview, error)

	mu            sync.Mutex
	unitCalls     []string
	overviewCalls [][]generation.UnitDigest

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *MockGenerator) GenerateUnit(ctx context.Context, in generation.UnitInput) (*generation.UnitOutput, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.unitCalls = append(m.unitCalls, in.Key)
	m.mu.Unlock()

	if m.GenerateUnitFn != nil {
		return m.GenerateUnitFn(ctx, in)
	}
	return unitOutput(in.Key), nil
}

func (m *MockGenerator) GenerateOverview(
	ctx context.Context,
	name string,
	units []generation.UnitDigest,
) (*domain.RepositoryOverview, error) {
	m.mu.Lock()
	m.overviewCalls = append(m.overviewCalls, units)
	m.mu.Unlock()

	if m.GenerateOverviewFn != nil {
		return m.GenerateOverviewFn(ctx, name, units)
	}
	return &domain.RepositoryOverview{Summary: fmt.Sprintf("%s has %d units", name, len(units))}, nil
}

func (m *MockGenerator) UnitCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.unitCalls...)
}

func (m *MockGenerator) OverviewCalls() [][]generation.UnitDigest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]generation.UnitDigest(nil), m.overviewCalls...)
}

func unitOutput(key string) *generation.UnitOutput {
	raw, _ := json.Marshal(map[string]string{"summary": "about " + key})
	return &generation.UnitOutput{
		Raw:    raw,
		Result: domain.UnitResult{Path: key, Summary: "about " + key},
	}
}

var errExhausted = fmt.Errorf("%w: all backends failed", generation.ErrGenerationExhausted)

func failingKeys(keys ...string) func(context.Context, generation.UnitInput) (*generation.UnitOutput, error) {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return func(_ context.Context, in generation.UnitInput) (*generation.UnitOutput, error) {
		if set[in.Key] {
			return nil, errExhausted
		}
		return unitOutput(in.Key), nil
	}
}

func makeUnits(n int) []source.Unit {
	units := make([]source.Unit, n)
	for i := range units {
		units[i] = source.Unit{
			Key:      fmt.Sprintf("pkg/unit%02d.py", i),
			Category: "python",
			Content:  fmt.Sprintf("x = %d", i),
		}
	}
	return units
}

func staticSource(units []source.Unit) source.Provider {
	return source.ProviderFunc(func(context.Context, string, source.Filter) ([]source.Unit, error) {
		return units, nil
	})
}

var errListing = errors.New("connection refused")

func unavailableSource() source.Provider {
	return source.ProviderFunc(func(context.Context, string, source.Filter) ([]source.Unit, error) {
		return nil, fmt.Errorf("%w: %w", source.ErrSourceUnavailable, errListing)
	})
}

// harness wires a memory store to a notification hub the way the server does.
type harness struct {
	store *memory.Store
	hub   *events.Hub
}

func newHarness() *harness {
	emitter := events.NewBroadcaster(setupTestLogger())
	hub := events.NewHub()
	emitter.Register(hub)
	return &harness{
		store: memory.NewStore(emitter, setupTestLogger()),
		hub:   hub,
	}
}
