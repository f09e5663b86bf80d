// Package playback decides what may play on the audience display. The
// Coordinator owns the single transition slot and drives a Surface; it is
// not safe for concurrent use and lives on the operator loop.
package playback

import (
	"context"
	"errors"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/media"

	"github.com/google/uuid"
)

var (
	// ErrBusy means another item is starting or stopping.
	ErrBusy = errors.New("a transition is in progress")
	// ErrConflict means a different video or audio item is playing.
	ErrConflict = errors.New("another video or audio item is playing")
	// ErrNotFound means the item is no longer in the catalog.
	ErrNotFound = catalog.ErrNotFound
	// ErrNotAllowed means the command does not apply to the item in its
	// current state or configuration.
	ErrNotAllowed = errors.New("not allowed")
)

// Media is the part of an item a surface needs. It is a copy, safe to hand
// to another goroutine.
type Media struct {
	ID             uuid.UUID
	Path           string
	Name           string
	Classification media.Classification
	Duration       time.Duration
	Position       time.Duration
	BlankScreen    bool
}

// MediaOf copies the surface-relevant fields of it.
func MediaOf(it *catalog.Item) Media {
	return Media{
		ID:             it.ID,
		Path:           it.Path(),
		Name:           it.Name,
		Classification: it.Classification(),
		Duration:       it.Duration(),
		Position:       it.Position,
		BlankScreen:    it.BlankScreen,
	}
}

// Surface renders media. Calls block until the surface has acted and are
// made off the operator loop.
type Surface interface {
	Start(ctx context.Context, m Media) error
	Stop(ctx context.Context, m Media) error
	Pause(ctx context.Context, m Media) error
	Resume(ctx context.Context, m Media) error
	// Seek moves playback to m.Position.
	Seek(ctx context.Context, m Media) error
}

// Dispatcher runs fn on the operator loop.
type Dispatcher interface {
	Post(fn func())
}

// Items is the view of the catalog the coordinator needs.
type Items interface {
	Get(id uuid.UUID) (*catalog.Item, bool)
	Items() []*catalog.Item
}

// Observer records playback metrics.
type Observer interface {
	ObserveTransition(kind string, seconds float64, err error)
	ObserveRejected(reason string)
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string, float64, error) {}
func (nopObserver) ObserveRejected(string)                  {}

// Reason maps a coordinator error to a short label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotAllowed):
		return "not_allowed"
	case err == nil:
		return ""
	}
	return "error"
}
