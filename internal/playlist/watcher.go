// Package playlist provides real-time folder monitoring for the media
// directory. It is the catalog's filesystem listing provider and raises a
// debounced change notification when files come and go.
package playlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"mediadeck/internal/media"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
)

// ErrUnavailable is returned when the media folder cannot be listed.
var ErrUnavailable = errors.New("media folder unavailable")

// DefaultDebounce collapses bursts of events (a copy of many files) into a
// single notification.
const DefaultDebounce = 500 * time.Millisecond

// OnChangeFunc is invoked, debounced, after the folder contents changed.
type OnChangeFunc func()

// Watcher monitors a directory for file system events and lists the
// playable media files it contains.
type Watcher struct {
	mu       sync.RWMutex
	dir      string
	files    []media.File
	watcher  *fsnotify.Watcher
	onChange OnChangeFunc
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
	stopOnce sync.Once
	log      hclog.Logger
}

// NewWatcher creates a new Watcher for the given directory. A zero debounce
// uses DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, onChange OnChangeFunc, logger hclog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	w := &Watcher{
		dir:      dir,
		watcher:  fw,
		onChange: onChange,
		debounce: debounce,
		stopCh:   make(chan struct{}),
		log:      logger,
	}

	if _, err := w.ListMediaFiles(); err != nil {
		w.log.Warn("initial scan failed", "dir", dir, "error", err)
	}

	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// ListMediaFiles reads the directory and returns the supported media files
// sorted by path. Files that differ from an earlier entry only by case are
// dropped. The result is also kept for Files.
func (w *Watcher) ListMediaFiles() ([]media.File, error) {
	files, err := Scan(w.dir)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.files = files
	w.mu.Unlock()

	w.log.Debug("scanned media files", "count", len(files), "dir", w.dir)
	return files, nil
}

// Scan lists the supported media files of dir.
func Scan(dir string) ([]media.File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seen := make(map[string]bool, len(entries))
	files := make([]media.File, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		class := media.Detect(entry.Name())
		if class == media.Unknown {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		key := media.Key(path)
		if seen[key] {
			continue
		}
		seen[key] = true

		var modified time.Time
		if info, err := entry.Info(); err == nil {
			modified = info.ModTime()
		}

		files = append(files, media.File{
			Path:           path,
			LastModified:   modified,
			Classification: class,
		})
	}

	return files, nil
}

// Files returns the result of the most recent scan.
func (w *Watcher) Files() []media.File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	dst := make([]media.File, len(w.files))
	copy(dst, w.files)
	return dst
}

// Start begins watching the directory for changes. It blocks until
// Stop() is called or the watcher encounters a fatal error.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	w.log.Info("monitoring", "dir", w.dir)

	for {
		select {
		case <-w.stopCh:
			w.log.Info("stopped", "dir", w.dir)
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if isRelevantEvent(event) {
				w.log.Debug("event", "op", event.Op.String(), "name", event.Name)
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// schedule (re)arms the debounce timer.
func (w *Watcher) schedule() {
	if w.onChange == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.onChange()
	})
}

// Stop halts the watcher loop and releases the fsnotify resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)

		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.watcher.Close()
	})
}

// isRelevantEvent filters for events that change the listing or a file's
// contents (and therefore its thumbnail).
func isRelevantEvent(e fsnotify.Event) bool {
	if e.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
		return false
	}
	return media.IsSupported(e.Name)
}
