package builder

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
)

type harness struct {
	t      *testing.T
	w      *source.Workspace
	m      *domain.Metamodel
	p      *Processor
	events [][]domain.EndpointEvent
}

func newHarness(t *testing.T, types ...source.TypeSpec) *harness {
	t.Helper()
	w := source.NewWorkspace(nil)
	return newHarnessWith(t, w, w, types...)
}

func newHarnessWith(t *testing.T, w *source.Workspace, a source.Analyzer, types ...source.TypeSpec) *harness {
	t.Helper()
	h := &harness{t: t, w: w}
	h.m = domain.NewMetamodel(a, domain.WithListener(domain.EndpointListenerFunc(
		func(_ context.Context, events []domain.EndpointEvent) {
			h.events = append(h.events, events)
		})))
	t.Cleanup(func() { _ = h.m.Close() })
	h.p = NewProcessor(h.m)
	if len(types) > 0 {
		h.load(types...)
	}
	return h
}

// load replaces the program and applies the resulting changes.
func (h *harness) load(types ...source.TypeSpec) []domain.Delta {
	h.t.Helper()
	deltas, err := h.tryLoad(types...)
	require.NoError(h.t, err)
	return deltas
}

func (h *harness) tryLoad(types ...source.TypeSpec) ([]domain.Delta, error) {
	next := source.MustProgram(types...)
	prev := h.w.Swap(next)
	return h.p.Apply(context.Background(), source.Diff(prev, next))
}

func (h *harness) lastEvents() []domain.EndpointEvent {
	h.t.Helper()
	require.NotEmpty(h.t, h.events)
	return h.events[len(h.events)-1]
}

func (h *harness) templates() []string {
	return templates(h.m.Endpoints())
}

func templates(endpoints []*domain.Endpoint) []string {
	result := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		result = append(result, e.DisplayTemplate())
	}
	return result
}

// signatures describes endpoints by content, leaving out identity.
func signatures(endpoints []*domain.Endpoint) []string {
	result := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		methods := make([]string, len(e.Methods))
		for i, m := range e.Methods {
			methods[i] = m.String()
		}
		result = append(result, fmt.Sprintf("%s via %s app=%s agg=%v path=%v consumes=%v produces=%v",
			e.DisplayTemplate(), strings.Join(methods, ","), e.Application, e.Aggregators,
			e.PathParams, e.Consumes, e.Produces))
	}
	return result
}
