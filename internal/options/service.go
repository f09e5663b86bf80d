package options

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"gopkg.in/yaml.v3"
)

const (
	watchDebounce = 200 * time.Millisecond
	watchRetry    = 500 * time.Millisecond
)

// Handler receives the new options after a field it subscribed to changed.
type Handler func(o Options)

// ApplyFunc installs options read from the file. An error leaves the edit
// pending and Watch tries again.
type ApplyFunc func(o Options) error

// Service owns the current options and fans changes out per field.
type Service struct {
	path string
	log  hclog.Logger

	mu       sync.RWMutex
	cur      Options
	defaults Options
	pinned   Patch
	subs     map[Field][]Handler
}

// NewService creates a service backed by the YAML file at path. An empty
// path keeps options in memory only.
func NewService(path string, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		path: path,
		log:  logger,
		cur:      Default(),
		defaults: Default(),
		subs:     make(map[Field][]Handler),
	}
}

// SetDefaults sets the values used for keys the file leaves out. Call it
// before Load.
func (s *Service) SetDefaults(o Options) {
	o = o.Sanitize()
	s.mu.Lock()
	s.defaults = o
	s.cur = s.pinned.Apply(o).Sanitize()
	s.mu.Unlock()
}

// Pin fixes fields to the patch's values whenever the file is read, so a
// command-line override survives later edits of the file.
func (s *Service) Pin(p Patch) {
	s.mu.Lock()
	s.pinned = p
	s.mu.Unlock()
}

// Path returns the backing file.
func (s *Service) Path() string { return s.path }

// Load reads the file without notifying subscribers. A missing file leaves
// the defaults in place.
func (s *Service) Load() error {
	o, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cur = o
	s.mu.Unlock()
	return nil
}

func (s *Service) read() (Options, error) {
	s.mu.RLock()
	o, pinned := s.defaults, s.pinned
	s.mu.RUnlock()
	if s.path == "" {
		return pinned.Apply(o).Sanitize(), nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("no options file, using defaults", "path", s.path)
		return pinned.Apply(o).Sanitize(), nil
	}
	if err != nil {
		return o, fmt.Errorf("read options: %w", err)
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("parse options %s: %w", s.path, err)
	}
	return pinned.Apply(o).Sanitize(), nil
}

// Current returns a copy of the options.
func (s *Service) Current() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Subscribe registers fn for changes of field.
func (s *Service) Subscribe(field Field, fn Handler) {
	s.mu.Lock()
	s.subs[field] = append(s.subs[field], fn)
	s.mu.Unlock()
}

// Update replaces the options and notifies subscribers of each field that
// actually changed. It returns those fields.
func (s *Service) Update(next Options) []Field {
	return s.update(func(Options) Options { return next })
}

// Apply updates the options with a partial patch.
func (s *Service) Apply(p Patch) []Field {
	return s.update(p.Apply)
}

// update derives the next options from the current ones under the lock.
func (s *Service) update(fn func(cur Options) Options) []Field {
	s.mu.Lock()
	next := fn(s.cur).Sanitize()
	changed := Diff(s.cur, next)
	s.cur = next
	var calls []Handler
	for _, f := range changed {
		calls = append(calls, s.subs[f]...)
	}
	s.mu.Unlock()

	if len(changed) > 0 {
		s.log.Info("options changed", "fields", changed)
	}
	for _, fn := range calls {
		fn(next)
	}
	return changed
}

// Save writes the current options to the backing file.
func (s *Service) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.Current())
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create options dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write options: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Watch reloads the file whenever it is edited, until ctx is done. The new
// options go through apply, or straight to Update when apply is nil.
func (s *Service) Watch(ctx context.Context, apply ApplyFunc) error {
	if apply == nil {
		apply = func(o Options) error {
			s.Update(o)
			return nil
		}
	}
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("options watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory: editors replace files rather than write them.
	dir := filepath.Dir(s.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.log.Debug("watching options file", "path", s.path)

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	schedule := func(d time.Duration) {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(d, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			schedule(watchDebounce)
		case <-reload:
			o, err := s.read()
			if err != nil {
				s.log.Warn("options file unreadable, keeping current", "error", err)
				continue
			}
			if err := apply(o); err != nil {
				s.log.Debug("options edit deferred", "error", err)
				schedule(watchRetry)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("options watcher error", "error", err)
		}
	}
}
