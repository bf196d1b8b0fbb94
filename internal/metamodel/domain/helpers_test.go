package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/wsmodel/internal/source"
)

func newModel(t *testing.T, types ...source.TypeSpec) (*Metamodel, *source.Workspace) {
	t.Helper()
	w := source.NewWorkspace(source.MustProgram(types...))
	m := NewMetamodel(w)
	t.Cleanup(func() { _ = m.Close() })
	return m, w
}

func joinResource(t *testing.T, m *Metamodel, name string) (*Resource, ChangeSet) {
	t.Helper()
	r, err := BuildResource(context.Background(), m.Analyzer(), source.TypeHandle(name), m)
	require.NoError(t, err)
	require.NotNil(t, r, "%s should qualify as a resource", name)
	return r, r.Join(m)
}

func joinAggregator(t *testing.T, m *Metamodel, name string) (*ParameterAggregator, ChangeSet) {
	t.Helper()
	pa, err := BuildParameterAggregator(context.Background(), m.Analyzer(), source.TypeHandle(name), m)
	require.NoError(t, err)
	require.NotNil(t, pa, "%s should qualify as a parameter aggregator", name)
	return pa, pa.Join(m)
}

func kindsOf(deltas []Delta) []string {
	result := make([]string, len(deltas))
	for i, d := range deltas {
		result[i] = d.Kind.String() + " " + d.Element.Handle().String()
	}
	return result
}
