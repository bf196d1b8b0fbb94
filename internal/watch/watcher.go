package watch

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period used when none is configured.
const DefaultDebounce = 100 * time.Millisecond

// Options configures a FileWatcher.
type Options struct {
	// Dirs are the directories to watch. Defaults to the current directory.
	Dirs []string
	// Patterns select the files of interest. An empty list matches
	// everything.
	Patterns []string
	// Ignored files are dropped even when they match Patterns.
	Ignored []string
	// Debounce is the quiet period before a batch of changes is reported.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Filter selects files with doublestar patterns. A pattern matches when it
// matches either the base name or the slash-separated path. Hidden files
// and editor backups never match.
type Filter struct {
	Include []string
	Exclude []string
}

// Match reports whether path passes the filter.
func (f Filter) Match(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	slashed := filepath.ToSlash(filepath.Clean(path))
	if matchAny(f.Exclude, base, slashed) {
		return false
	}
	return len(f.Include) == 0 || matchAny(f.Include, base, slashed)
}

func matchAny(patterns []string, names ...string) bool {
	for _, pattern := range patterns {
		for _, name := range names {
			if ok, _ := doublestar.Match(pattern, name); ok {
				return true
			}
		}
	}
	return false
}

// FileWatcher reports batches of changed files. Changes are coalesced until
// no event arrived for the debounce period; the callback receives every
// file of the batch once, sorted, and runs on the watcher goroutine.
type FileWatcher struct {
	fsw      *fsnotify.Watcher
	dirs     []string
	filter   Filter
	quiet    time.Duration
	onChange func([]string) error
	logger   *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
	stopErr  error
	wg       sync.WaitGroup
}

// NewFileWatcher creates a watcher. Nothing is watched until Start.
func NewFileWatcher(opts Options, onChange func([]string) error) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if len(opts.Dirs) == 0 {
		opts.Dirs = []string{"."}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FileWatcher{
		fsw:      fsw,
		dirs:     opts.Dirs,
		filter:   Filter{Include: opts.Patterns, Exclude: opts.Ignored},
		quiet:    opts.Debounce,
		onChange: onChange,
		logger:   opts.Logger.Named("watch"),
		done:     make(chan struct{}),
	}, nil
}

// Start adds the directories and starts the event loop.
func (fw *FileWatcher) Start() error {
	for _, dir := range fw.dirs {
		if err := fw.fsw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
		fw.logger.Debug("watching directory", zap.String("dir", dir))
	}
	fw.wg.Add(1)
	go fw.loop()
	return nil
}

// Stop ends the event loop and releases the watcher. Pending changes are
// discarded. It is safe to call more than once.
func (fw *FileWatcher) Stop() error {
	fw.stopOnce.Do(func() {
		close(fw.done)
		fw.wg.Wait()
		fw.stopErr = fw.fsw.Close()
	})
	return fw.stopErr
}

func (fw *FileWatcher) loop() {
	defer fw.wg.Done()

	pending := make(map[string]struct{})
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-fw.fsw.Events:
			if !ok {
				return
			}
			// editors often replace files instead of writing them in place
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !fw.filter.Match(ev.Name) {
				continue
			}
			fw.logger.Debug("file changed", zap.String("file", ev.Name), zap.Stringer("op", ev.Op))
			pending[ev.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(fw.quiet)
			} else {
				timer.Reset(fw.quiet)
			}
			fire = timer.C

		case err, ok := <-fw.fsw.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("watch error", zap.Error(err))

		case <-fire:
			fire = nil
			fw.flush(pending)
			pending = make(map[string]struct{})

		case <-fw.done:
			return
		}
	}
}

func (fw *FileWatcher) flush(pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	sort.Strings(files)
	if err := fw.onChange(files); err != nil {
		fw.logger.Error("error handling file changes", zap.Strings("files", files), zap.Error(err))
	}
}
