package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	mu   sync.Mutex
	seen [][]string
}

func (b *batches) record(files []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, files)
	return nil
}

func (b *batches) all() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.seen...)
}

func startWatcher(t *testing.T, opts Options, b *batches) *FileWatcher {
	t.Helper()
	fw, err := NewFileWatcher(opts, b.record)
	require.NoError(t, err)
	require.NoError(t, fw.Start())
	t.Cleanup(func() { _ = fw.Stop() })
	// let the backend settle before producing events
	time.Sleep(100 * time.Millisecond)
	return fw
}

func TestFileWatcher_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	program := filepath.Join(dir, "program.yaml")
	require.NoError(t, os.WriteFile(program, []byte("types: []\n"), 0o644))

	b := &batches{}
	startWatcher(t, Options{Dirs: []string{dir}, Patterns: []string{"*.yaml"}, Debounce: 50 * time.Millisecond}, b)

	require.NoError(t, os.WriteFile(program, []byte("types: []\n# modified\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	require.Eventually(t, func() bool { return len(b.all()) > 0 }, 2*time.Second, 20*time.Millisecond)
	for _, files := range b.all() {
		assert.Equal(t, []string{program}, files)
	}
}

func TestFileWatcher_CoalescesBatch(t *testing.T) {
	dir := t.TempDir()
	b := &batches{}
	startWatcher(t, Options{Dirs: []string{dir}, Debounce: 200 * time.Millisecond}, b)

	second := filepath.Join(dir, "b.yaml")
	first := filepath.Join(dir, "a.yaml")
	require.NoError(t, os.WriteFile(second, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(first, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("2"), 0o644))

	require.Eventually(t, func() bool { return len(b.all()) > 0 }, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, [][]string{{first, second}}, b.all())
}

func TestFileWatcher_StartMissingDir(t *testing.T) {
	fw, err := NewFileWatcher(Options{Dirs: []string{filepath.Join(t.TempDir(), "missing")}}, func([]string) error { return nil })
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.Start())
}

func TestFileWatcher_Stop(t *testing.T) {
	fw, err := NewFileWatcher(Options{Dirs: []string{t.TempDir()}}, func([]string) error { return nil })
	require.NoError(t, err)
	require.NoError(t, fw.Start())

	assert.NoError(t, fw.Stop())
	assert.NoError(t, fw.Stop())
}

func TestFilter_Match(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		path   string
		want   bool
	}{
		{"base name", Filter{Include: []string{"*.yaml"}}, "program.yaml", true},
		{"base name in dir", Filter{Include: []string{"*.yaml"}}, "dir/program.yaml", true},
		{"other extension", Filter{Include: []string{"*.yaml"}}, "program.json", false},
		{"second pattern", Filter{Include: []string{"*.yaml", "*.yml"}}, "program.yml", true},
		{"globstar", Filter{Include: []string{"models/**/*.yaml"}}, "models/v1/program.yaml", true},
		{"no patterns", Filter{}, "anything.txt", true},
		{"hidden", Filter{}, ".DS_Store", false},
		{"backup", Filter{}, "program.yaml~", false},
		{"excluded", Filter{Exclude: []string{"*.swp"}}, "program.yaml.swp", false},
		{"excluded dir", Filter{Include: []string{"*.yaml"}, Exclude: []string{"**/tmp/**"}}, "work/tmp/program.yaml", false},
		{"not excluded", Filter{Include: []string{"*.yaml"}, Exclude: []string{"**/tmp/**"}}, "work/program.yaml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.path))
		})
	}
}
