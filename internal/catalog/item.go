package catalog

import (
	"sync/atomic"
	"time"

	"mediadeck/internal/media"
	"mediadeck/internal/metadata"

	"github.com/google/uuid"
)

// BlankScreenName is the display name of the blank-screen sentinel.
const BlankScreenName = "Blank Screen"

// Item is one entry of the catalog.
//
// The exported state fields belong to the operator loop and must only be
// touched there. Title, duration and thumbnail are computed by the metadata
// worker and published as a single value, so they may be read from anywhere.
type Item struct {
	ID           uuid.UUID
	LastModified time.Time
	BlankScreen  bool

	path  string
	class media.Classification

	Name             string
	Active           bool
	Paused           bool
	Changing         bool
	Visible          bool
	PauseOnLastFrame bool
	PlayEnabled      bool
	Position         time.Duration
	AllowPause       bool
	AllowSeek        bool

	computed atomic.Pointer[metadata.Result]
}

func newItem(f media.File) *Item {
	return &Item{
		ID:           uuid.New(),
		LastModified: f.LastModified,
		path:         f.Path,
		class:        f.Classification,
		Visible:      true,
	}
}

// Path returns the file the item shows.
func (it *Item) Path() string { return it.path }

// Classification returns the media kind.
func (it *Item) Classification() media.Classification { return it.class }

// Publish replaces the computed state. Called by the metadata worker.
func (it *Item) Publish(r *metadata.Result) {
	it.computed.Store(r)
}

// Result returns the last published computation, or nil.
func (it *Item) Result() *metadata.Result {
	return it.computed.Load()
}

// Title is the internal media title, if one was read.
func (it *Item) Title() string {
	if r := it.computed.Load(); r != nil {
		return r.Info.Title
	}
	return ""
}

// Duration is zero for images and for media whose probe failed.
func (it *Item) Duration() time.Duration {
	if !it.class.HasDuration() {
		return 0
	}
	if r := it.computed.Load(); r != nil {
		return r.Info.Duration
	}
	return 0
}

// Thumbnail returns the JPEG thumbnail, or nil.
func (it *Item) Thumbnail() []byte {
	if r := it.computed.Load(); r != nil {
		return r.Thumbnail
	}
	return nil
}

// clearThumbnail publishes a copy of the current result without its
// thumbnail. Metadata that was already read is kept.
func (it *Item) clearThumbnail() {
	cur := it.computed.Load()
	if cur == nil || cur.Thumbnail == nil {
		return
	}
	next := *cur
	next.Thumbnail = nil
	it.computed.Store(&next)
}

// seedInfo publishes previously cached metadata so a new item has its
// duration before the worker reaches it.
func (it *Item) seedInfo(info metadata.Info) {
	it.computed.CompareAndSwap(nil, &metadata.Result{Info: info})
}

// Snapshot is a copy of an item's state for readers outside the loop.
type Snapshot struct {
	ID               uuid.UUID            `json:"id"`
	Path             string               `json:"path"`
	Name             string               `json:"name"`
	Title            string               `json:"title,omitempty"`
	Classification   media.Classification `json:"classification"`
	BlankScreen      bool                 `json:"blankScreen"`
	LastModified     time.Time            `json:"lastModified"`
	Duration         time.Duration        `json:"duration"`
	HasThumbnail     bool                 `json:"hasThumbnail"`
	Active           bool                 `json:"active"`
	Paused           bool                 `json:"paused"`
	Changing         bool                 `json:"changing"`
	Visible          bool                 `json:"visible"`
	PauseOnLastFrame bool                 `json:"pauseOnLastFrame"`
	PlayEnabled      bool                 `json:"playEnabled"`
	Position         time.Duration        `json:"position"`
	AllowPause       bool                 `json:"allowPause"`
	AllowSeek        bool                 `json:"allowSeek"`
}

// Snapshot copies the item. Call it on the operator loop.
func (it *Item) Snapshot() Snapshot {
	return Snapshot{
		ID:               it.ID,
		Path:             it.path,
		Name:             it.Name,
		Title:            it.Title(),
		Classification:   it.class,
		BlankScreen:      it.BlankScreen,
		LastModified:     it.LastModified,
		Duration:         it.Duration(),
		HasThumbnail:     len(it.Thumbnail()) > 0,
		Active:           it.Active,
		Paused:           it.Paused,
		Changing:         it.Changing,
		Visible:          it.Visible,
		PauseOnLastFrame: it.PauseOnLastFrame,
		PlayEnabled:      it.PlayEnabled,
		Position:         it.Position,
		AllowPause:       it.AllowPause,
		AllowSeek:        it.AllowSeek,
	}
}
