package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/wsmodel/internal/metamodel/builder"
	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/source"
)

// SyncResult holds the result of a synchronization
type SyncResult struct {
	Changes  []source.Change
	Deltas   []domain.Delta
	Duration time.Duration
}

// Synchronizer reloads a program description and applies the type-level
// differences to the metamodel, so that only changed types are reanalyzed.
type Synchronizer struct {
	path      string
	workspace *source.Workspace
	processor *builder.Processor
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewSynchronizer creates a synchronizer for the program file at path. The
// workspace must be the analyzer of the processor's metamodel.
func NewSynchronizer(path string, ws *source.Workspace, p *builder.Processor, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{path: path, workspace: ws, processor: p, logger: logger.Named("sync")}
}

// Path returns the program file path.
func (s *Synchronizer) Path() string {
	return s.path
}

// Sync loads the program file and applies what changed since the last
// successful call. On failure the workspace keeps the previous program.
func (s *Synchronizer) Sync(ctx context.Context) (*SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	next, err := source.LoadProgram(s.path)
	if err != nil {
		return nil, err
	}

	changes, deltas, err := s.processor.Load(ctx, s.workspace, next)
	if err != nil {
		return nil, fmt.Errorf("failed to synchronize %s: %w", s.path, err)
	}
	result := &SyncResult{Changes: changes}
	if len(changes) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Deltas = deltas
	result.Duration = time.Since(start)

	s.logger.Info("program synchronized",
		zap.String("program", s.path),
		zap.Int("changes", len(result.Changes)),
		zap.Int("deltas", len(result.Deltas)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// Watch starts a file watcher on the directory of the program file and
// synchronizes whenever the file changes. onResult is called after each
// attempt. The returned watcher must be stopped by the caller.
func (s *Synchronizer) Watch(ctx context.Context, opts Options, onResult func(*SyncResult, error)) (*FileWatcher, error) {
	target, err := filepath.Abs(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", s.path, err)
	}
	if len(opts.Dirs) == 0 {
		opts.Dirs = []string{filepath.Dir(target)}
	}
	fw, err := NewFileWatcher(opts, func(files []string) error {
		if !containsFile(files, target) {
			return nil
		}
		result, err := s.Sync(ctx)
		if onResult != nil {
			onResult(result, err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := fw.Start(); err != nil {
		fw.Stop()
		return nil, err
	}
	return fw, nil
}

func containsFile(files []string, target string) bool {
	for _, f := range files {
		if abs, err := filepath.Abs(f); err == nil && abs == target {
			return true
		}
	}
	return false
}
