// Package operator is the interactive side of mediadeck. It owns the catalog
// and the playback coordinator and runs every command against them on one
// goroutine, the Loop. Background work (folder watching, metadata, surface
// calls, option edits) only posts back to it.
package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/display"
	"mediadeck/internal/logging"
	"mediadeck/internal/media"
	"mediadeck/internal/metadata"
	"mediadeck/internal/metrics"
	"mediadeck/internal/options"
	"mediadeck/internal/playback"
	"mediadeck/internal/playlist"
	"mediadeck/internal/store"

	"github.com/hashicorp/go-hclog"
)

// ErrNoThumbnail means the item has no thumbnail yet.
var ErrNoThumbnail = errors.New("thumbnail not available")

// Surface is the rendering engine the operator drives.
type Surface interface {
	playback.Surface
	SetMonitor(mon display.Monitor) error
}

// Thumbnails is the thumbnail cache.
type Thumbnails interface {
	SetSize(size int)
	Purge() error
	OnPurged(fn func())
}

// FolderWatcher lists the media folder and reports changes to it.
type FolderWatcher interface {
	catalog.Lister
	Dir() string
	// Files is the result of the latest listing.
	Files() []media.File
	// Start blocks until Stop.
	Start() error
	Stop()
}

// WatchFunc creates a watcher for dir that calls onChange after the folder
// changed.
type WatchFunc func(dir string, onChange func()) (FolderWatcher, error)

// PlaylistWatch returns a WatchFunc backed by playlist.Watcher.
func PlaylistWatch(debounce time.Duration, logger hclog.Logger) WatchFunc {
	return func(dir string, onChange func()) (FolderWatcher, error) {
		return playlist.NewWatcher(dir, debounce, onChange, logger)
	}
}

// Deps are the collaborators of an Operator. Options, Surface, Queue,
// Thumbnails and Watch are required.
type Deps struct {
	Options          *options.Service
	Layout           *display.Layout
	Surface          Surface
	Queue            *metadata.Queue
	Thumbnails       Thumbnails
	MetadataStore    *metadata.Store
	State            *store.Store
	Watch            WatchFunc
	BlankScreenImage string
	Logger           hclog.Logger
}

// Status summarises the player for the control API and heartbeats.
type Status struct {
	Items           int               `json:"items"`
	Hidden          int               `json:"hidden"`
	Frozen          int               `json:"frozen"`
	Loading         bool              `json:"loading"`
	Changing        bool              `json:"changing"`
	ChangingID      string            `json:"changingId,omitempty"`
	MonitorSelected bool              `json:"monitorSelected"`
	MonitorID       string            `json:"monitorId,omitempty"`
	MediaFolder     string            `json:"mediaFolder"`
	FolderFiles     int               `json:"folderFiles"`
	QueueDepth      int               `json:"queueDepth"`
	Current         *catalog.Snapshot `json:"current,omitempty"`
	NextImage       *catalog.Snapshot `json:"nextImage,omitempty"`
}

// Operator wires the catalog, the coordinator and their collaborators.
type Operator struct {
	loop    *Loop
	opts    *options.Service
	layout  *display.Layout
	surface Surface
	queue   *metadata.Queue
	thumbs  Thumbnails
	watch   WatchFunc
	log     hclog.Logger

	cat   *catalog.Catalog
	coord *playback.Coordinator

	// loop only
	watcher FolderWatcher
	loading bool
}

// New builds an operator. Hidden and frozen paths are loaded from the state
// store when one is given and saved back on every change.
func New(ctx context.Context, d Deps) (*Operator, error) {
	switch {
	case d.Options == nil:
		return nil, errors.New("operator: options service is required")
	case d.Surface == nil:
		return nil, errors.New("operator: surface is required")
	case d.Queue == nil:
		return nil, errors.New("operator: metadata queue is required")
	case d.Thumbnails == nil:
		return nil, errors.New("operator: thumbnails are required")
	case d.Watch == nil:
		return nil, errors.New("operator: watch func is required")
	}
	logger := logging.OrNull(d.Logger)

	o := &Operator{
		loop:    NewLoop(),
		opts:    d.Options,
		layout:  d.Layout,
		surface: d.Surface,
		queue:   d.Queue,
		thumbs:  d.Thumbnails,
		watch:   d.Watch,
		log:     logger,
	}

	hidden, frozen := catalog.NewPathSet(), catalog.NewPathSet()
	if d.State != nil {
		if err := seed(ctx, d.State, store.Hidden, hidden); err != nil {
			return nil, err
		}
		if err := seed(ctx, d.State, store.Frozen, frozen); err != nil {
			return nil, err
		}
		hidden.OnChange(d.State.Saver(store.Hidden))
		frozen.OnChange(d.State.Saver(store.Frozen))
	}

	cur := d.Options.Current()

	var lister catalog.Lister = noFolder{}
	if cur.MediaFolder != "" {
		w, err := d.Watch(cur.MediaFolder, o.folderChanged)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", cur.MediaFolder, err)
		}
		o.watcher = w
		lister = w
	}

	o.cat = catalog.New(lister, d.Queue, hidden, frozen,
		catalog.WithLogger(logger.Named("catalog")),
		catalog.WithListener(o),
		catalog.WithMetadataStore(d.MetadataStore),
		catalog.WithBlankScreenImage(d.BlankScreenImage),
		catalog.WithSettings(settingsFrom(cur)),
	)

	o.coord = playback.New(o.cat, d.Surface, o.loop,
		playback.WithLogger(logger.Named("playback")),
		playback.WithObserver(metrics.NewPlaybackObserver()),
		playback.WithContext(ctx),
		playback.WithMonitor(o.configureMonitor(cur.MediaMonitorID)),
	)

	d.Queue.OnResult = func(metadata.Target, *metadata.Result) {
		o.loop.Post(o.refreshNames)
	}
	d.Thumbnails.OnPurged(func() {
		o.loop.Post(func() {
			n := o.cat.RequeueAll()
			o.log.Info("thumbnail cache purged, regenerating", "items", n)
		})
	})
	o.subscribe()

	return o, nil
}

func seed(ctx context.Context, st *store.Store, set store.Set, ps *catalog.PathSet) error {
	paths, err := st.Load(ctx, set)
	if err != nil {
		return fmt.Errorf("load %s: %w", set, err)
	}
	ps.Init(paths)
	return nil
}

func settingsFrom(o options.Options) catalog.Settings {
	return catalog.Settings{
		MaxItemCount:       o.MaxItemCount,
		IncludeBlankScreen: o.IncludeBlankScreenItem,
		PermanentBackdrop:  o.PermanentBackdrop,
		AllowPause:         o.AllowVideoPause,
		AllowSeek:          o.AllowVideoPositionSeeking,
		UseInternalTitles:  o.UseInternalMediaTitles,
	}
}

// noFolder stands in for the watcher while no media folder is configured.
type noFolder struct{}

func (noFolder) ListMediaFiles() ([]media.File, error) {
	return nil, fmt.Errorf("no media folder configured: %w", playlist.ErrUnavailable)
}

// Loop returns the operator loop.
func (o *Operator) Loop() *Loop { return o.loop }

// Run starts the folder watcher, loads the catalog and processes commands
// until ctx is cancelled.
func (o *Operator) Run(ctx context.Context) {
	if o.watcher != nil {
		o.startWatcher(o.watcher)
	}
	o.loop.Post(o.reload)

	o.loop.Run(ctx)

	if o.watcher != nil {
		o.watcher.Stop()
	}
	o.log.Info("operator stopped")
}

func (o *Operator) startWatcher(w FolderWatcher) {
	go func() {
		if err := w.Start(); err != nil {
			o.log.Error("folder watcher failed", "dir", w.Dir(), "error", err)
		}
	}()
}

func (o *Operator) folderChanged() {
	o.loop.Post(o.reload)
}

func (o *Operator) reload() {
	n, err := o.cat.Reload()
	if err != nil {
		o.log.Warn("catalog reload failed", "items", n, "error", err)
	}
}

func (o *Operator) refreshNames() {
	if o.cat.RefreshNames() {
		o.cat.Resort()
	}
}

// LoadingStarted implements catalog.Listener.
func (o *Operator) LoadingStarted() {
	o.loading = true
	metrics.SetLoading(true)
}

// LoadingFinished implements catalog.Listener.
func (o *Operator) LoadingFinished(count int) {
	o.loading = false
	metrics.SetLoading(false)
	metrics.RecordCatalog(o.cat.Stats())
	o.coord.RecomputePlayEnabled()
	o.log.Info("catalog loaded", "items", count)
}

// ItemsRemoved implements catalog.Listener.
func (o *Operator) ItemsRemoved(items []*catalog.Item) {
	o.coord.Forget(items...)
}

// PositionChanged receives surface position updates.
func (o *Operator) PositionChanged(pos time.Duration) {
	o.loop.Post(func() { o.coord.OnPositionChanged(pos) })
}

// NearEnd receives the surface's near-end notice.
func (o *Operator) NearEnd() {
	o.loop.Post(o.coord.OnNearEnd)
}

// Completed receives the surface's end-of-media notice.
func (o *Operator) Completed() {
	o.loop.Post(o.coord.OnCompleted)
}

// configureMonitor points the surface at monitor id and reports whether it
// succeeded.
func (o *Operator) configureMonitor(id string) bool {
	if o.layout == nil || id == "" {
		o.log.Warn("no media monitor selected")
		return false
	}
	mon, ok := o.layout.Find(id)
	if !ok {
		o.log.Warn("media monitor not in layout", "id", id, "available", o.layout.IDs())
		return false
	}
	if err := o.surface.SetMonitor(mon); err != nil {
		o.log.Error("failed to select media monitor", "id", id, "error", err)
		return false
	}
	return true
}

// retarget switches the catalog to a new media folder.
func (o *Operator) retarget(dir string) {
	if o.watcher != nil {
		o.watcher.Stop()
		o.watcher = nil
	}

	var lister catalog.Lister = noFolder{}
	if dir != "" {
		w, err := o.watch(dir, o.folderChanged)
		if err != nil {
			o.log.Error("cannot watch media folder", "dir", dir, "error", err)
		} else {
			o.watcher = w
			lister = w
			o.startWatcher(w)
		}
	}
	o.log.Info("media folder changed", "dir", dir)
	o.cat.SetLister(lister)
	o.reload()
}
