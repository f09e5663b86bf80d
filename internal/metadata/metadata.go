// Package metadata computes per-item metadata (title, duration) and
// thumbnails off the interactive path. A single background worker drains a
// FIFO queue and publishes each result onto its target as one value.
package metadata

import (
	"context"
	"errors"
	"sync"
	"time"

	"mediadeck/internal/media"
)

var (
	// ErrProbe marks a metadata read failure.
	ErrProbe = errors.New("metadata probe failed")
	// ErrThumbnail marks a thumbnail generation failure.
	ErrThumbnail = errors.New("thumbnail generation failed")
)

// Info is what a probe learns about a file.
type Info struct {
	Title    string
	Duration time.Duration
}

// Result is the computed state published onto a target. It is immutable once
// published; a new computation replaces it whole.
type Result struct {
	Info      Info
	Thumbnail []byte
	ProbeErr  error
	ThumbErr  error
}

// HasThumbnail reports whether a thumbnail was produced.
func (r *Result) HasThumbnail() bool {
	return r != nil && len(r.Thumbnail) > 0
}

// Target is something the queue computes metadata for.
type Target interface {
	Path() string
	Classification() media.Classification
	Publish(r *Result)
}

// Prober reads title and duration for a file.
type Prober interface {
	Probe(ctx context.Context, path string, class media.Classification) (Info, error)
}

// Thumbnailer renders a small JPEG for a file.
type Thumbnailer interface {
	Generate(ctx context.Context, path string, class media.Classification) ([]byte, error)
}

// Store remembers probe results by path so a reload can name new items
// without waiting for the worker.
type Store struct {
	mu    sync.RWMutex
	infos map[string]Info
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{infos: make(map[string]Info)}
}

// Lookup returns the info recorded for path.
func (s *Store) Lookup(path string) (Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.infos[media.Key(path)]
	return info, ok
}

// Put records info for path.
func (s *Store) Put(path string, info Info) {
	s.mu.Lock()
	s.infos[media.Key(path)] = info
	s.mu.Unlock()
}

// Forget drops the record for path.
func (s *Store) Forget(path string) {
	s.mu.Lock()
	delete(s.infos, media.Key(path))
	s.mu.Unlock()
}

// Observer records pipeline metrics. Implementations are provided by the
// metrics package to keep this package free of Prometheus.
type Observer interface {
	ObserveQueueDepth(depth int)
	ObserveProbe(class string, durationSeconds float64, err error)
	ObserveThumbnail(class string, durationSeconds float64, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveQueueDepth(int)                  {}
func (nopObserver) ObserveProbe(string, float64, error)     {}
func (nopObserver) ObserveThumbnail(string, float64, error) {}
