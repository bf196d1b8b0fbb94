package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/wsmodel/internal/metamodel/builder"
	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
	"github.com/conduit-lang/wsmodel/internal/testing/fixtures"
)

func writeProgram(t *testing.T, path string, types ...source.TypeSpec) {
	t.Helper()
	data, err := yaml.Marshal(source.ProgramSpec{Types: types})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newSynchronizer(t *testing.T, path string) (*Synchronizer, *domain.Metamodel) {
	t.Helper()
	ws := source.NewWorkspace(nil)
	m := domain.NewMetamodel(ws)
	t.Cleanup(func() { _ = m.Close() })
	return NewSynchronizer(path, ws, builder.NewProcessor(m), nil), m
}

func TestSynchronizerSync(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "program.yaml")
	writeProgram(t, path, fixtures.ItemResourceSpec())
	s, m := newSynchronizer(t, path)
	assert.Equal(t, path, s.Path())

	result, err := s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []source.Change{{Handle: source.TypeHandle(fixtures.ItemResource), Kind: source.Added}}, result.Changes)
	assert.NotEmpty(t, result.Deltas)
	require.Len(t, m.Endpoints(), 1)
	assert.Equal(t, "GET /items", m.Endpoints()[0].DisplayTemplate())

	result, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
	assert.Empty(t, result.Deltas)

	writeProgram(t, path, fixtures.Application("/api"), fixtures.ItemResourceSpec())
	result, err = s.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, []source.Change{{Handle: source.TypeHandle(fixtures.RestApplication), Kind: source.Added}}, result.Changes)
	assert.Equal(t, "GET /api/items", m.Endpoints()[0].DisplayTemplate())
}

func TestSynchronizerKeepsProgramOnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "program.yaml")
	writeProgram(t, path, fixtures.ItemResourceSpec())
	s, m := newSynchronizer(t, path)
	_, err := s.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("types: [\n"), 0o644))
	_, err = s.Sync(ctx)
	assert.Error(t, err)
	assert.Len(t, m.Endpoints(), 1)

	_, ok := s.workspace.Program().Spec(fixtures.ItemResource)
	assert.True(t, ok)

	require.NoError(t, os.Remove(path))
	_, err = s.Sync(ctx)
	assert.Error(t, err)
}

func TestSynchronizerWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.yaml")
	writeProgram(t, path, fixtures.ItemResourceSpec())
	s, m := newSynchronizer(t, path)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	var (
		mu      sync.Mutex
		results []*SyncResult
	)
	fw, err := s.Watch(context.Background(), Options{Patterns: []string{"*.yaml"}, Debounce: 20 * time.Millisecond},
		func(r *SyncResult, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				results = append(results, r)
			}
		})
	require.NoError(t, err)
	defer fw.Stop()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	writeProgram(t, path, fixtures.ItemResourceSpec(), fixtures.UnrelatedServiceSpec())

	require.Eventually(t, func() bool {
		return len(m.Endpoints()) == 2
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, results)
}
