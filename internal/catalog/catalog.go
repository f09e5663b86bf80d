// Package catalog keeps the ordered collection of media items consistent
// with the media folder.
//
// A Catalog is not safe for concurrent use. It is owned by the operator loop;
// the only state shared with other goroutines is each item's published
// metadata and the hidden/frozen path sets.
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"mediadeck/internal/media"
	"mediadeck/internal/metadata"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

var (
	// ErrNotFound is returned for an item ID that is not in the catalog.
	ErrNotFound = errors.New("item not found")
	// ErrNotVideo is returned when freezing anything but a video.
	ErrNotVideo = errors.New("only videos can be frozen")
)

// DefaultMaxItemCount bounds the catalog when no setting is given.
const DefaultMaxItemCount = 200

// Lister provides the current folder listing.
type Lister interface {
	ListMediaFiles() ([]media.File, error)
}

// Enqueuer accepts items for metadata computation.
type Enqueuer interface {
	Add(t metadata.Target) bool
}

// Listener observes reloads.
type Listener interface {
	LoadingStarted()
	LoadingFinished(count int)
	// ItemsRemoved is called with items dropped from the catalog, before
	// LoadingFinished.
	ItemsRemoved(items []*Item)
}

type nopListener struct{}

func (nopListener) LoadingStarted()      {}
func (nopListener) LoadingFinished(int)  {}
func (nopListener) ItemsRemoved([]*Item) {}

// Settings are the options the catalog reads.
type Settings struct {
	MaxItemCount       int
	IncludeBlankScreen bool
	PermanentBackdrop  bool
	AllowPause         bool
	AllowSeek          bool
	UseInternalTitles  bool
}

// DefaultSettings returns the settings used before options are loaded.
func DefaultSettings() Settings {
	return Settings{
		MaxItemCount:       DefaultMaxItemCount,
		IncludeBlankScreen: true,
		AllowPause:         true,
	}
}

func (s Settings) wantsBlankScreen() bool {
	return s.IncludeBlankScreen && !s.PermanentBackdrop
}

// Catalog is the ordered item collection.
type Catalog struct {
	lister   Lister
	queue    Enqueuer
	hidden   *PathSet
	frozen   *PathSet
	store    *metadata.Store
	listener Listener
	log      hclog.Logger

	settings  Settings
	blankPath string

	items []*Item
	byID  map[uuid.UUID]*Item
	blank *Item
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// WithListener receives reload notifications.
func WithListener(l Listener) Option {
	return func(c *Catalog) { c.listener = l }
}

// WithMetadataStore names and seeds new items from cached probe results.
func WithMetadataStore(s *metadata.Store) Option {
	return func(c *Catalog) { c.store = s }
}

// WithBlankScreenImage sets the image file shown by the blank-screen item.
func WithBlankScreenImage(path string) Option {
	return func(c *Catalog) { c.blankPath = path }
}

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(c *Catalog) { c.settings = s }
}

// New creates an empty catalog. Call Reload to populate it.
func New(lister Lister, queue Enqueuer, hidden, frozen *PathSet, opts ...Option) *Catalog {
	c := &Catalog{
		lister:   lister,
		queue:    queue,
		hidden:   hidden,
		frozen:   frozen,
		listener: nopListener{},
		log:      hclog.NewNullLogger(),
		settings: DefaultSettings(),
		byID:     make(map[uuid.UUID]*Item),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hidden == nil {
		c.hidden = NewPathSet()
	}
	if c.frozen == nil {
		c.frozen = NewPathSet()
	}
	if c.store == nil {
		c.store = metadata.NewStore()
	}
	return c
}

// Settings returns the current settings.
func (c *Catalog) Settings() Settings { return c.settings }

// Hidden returns the hidden path set.
func (c *Catalog) Hidden() *PathSet { return c.hidden }

// Frozen returns the frozen path set.
func (c *Catalog) Frozen() *PathSet { return c.frozen }

// SetLister swaps the listing provider, e.g. after the media folder changed.
// The next Reload reconciles against it.
func (c *Catalog) SetLister(l Lister) { c.lister = l }

// Reload reconciles the catalog with the folder listing and returns the
// resulting item count. When the listing fails the catalog is left as it was.
func (c *Catalog) Reload() (int, error) {
	c.listener.LoadingStarted()

	files, err := c.lister.ListMediaFiles()
	if err != nil {
		c.log.Error("reload failed, keeping current items", "error", err)
		c.listener.LoadingFinished(len(c.items))
		return len(c.items), fmt.Errorf("reload: %w", err)
	}

	listed := make(map[string]media.File, len(files))
	for _, f := range files {
		k := media.Key(f.Path)
		if _, dup := listed[k]; !dup {
			listed[k] = f
		}
	}

	var removed []*Item
	existing := make(map[string]*Item, len(c.items))
	kept := c.items[:0]
	for _, it := range c.items {
		if it.BlankScreen {
			kept = append(kept, it)
			continue
		}
		k := media.Key(it.path)
		f, ok := listed[k]
		if !ok {
			removed = append(removed, it)
			continue
		}
		if f.Path != it.path {
			// renamed by case only; the old path no longer opens
			c.log.Debug("file renamed, replacing item", "from", it.path, "to", f.Path)
			removed = append(removed, it)
			continue
		}
		if !f.LastModified.IsZero() && !f.LastModified.Equal(it.LastModified) {
			c.log.Debug("file modified, refreshing metadata", "path", it.path)
			it.LastModified = f.LastModified
			c.store.Forget(it.path)
			c.queue.Add(it)
		}
		existing[k] = it
		kept = append(kept, it)
	}
	clear(c.items[len(kept):])
	c.items = kept

	var added []*Item
	for _, f := range files {
		if f.Classification == media.Unknown {
			f.Classification = media.Detect(f.Path)
			if f.Classification == media.Unknown {
				continue
			}
		}
		k := media.Key(f.Path)
		if _, ok := existing[k]; ok {
			continue
		}
		it := c.newFileItem(f)
		// a second spelling of the same path is skipped
		existing[k] = it
		added = append(added, it)
		c.items = append(c.items, it)
	}

	c.sort()
	removed = append(removed, c.truncate()...)

	alive := make(map[*Item]bool, len(c.items))
	for _, it := range c.items {
		alive[it] = true
	}
	for _, it := range added {
		if alive[it] {
			c.byID[it.ID] = it
			c.queue.Add(it)
		}
	}

	c.applyMembership()
	if r := c.syncBlankScreen(); r != nil {
		removed = append(removed, r)
	}

	for _, it := range removed {
		delete(c.byID, it.ID)
		if !it.BlankScreen {
			c.store.Forget(it.path)
		}
	}
	if len(removed) > 0 {
		c.listener.ItemsRemoved(removed)
	}

	c.log.Debug("reloaded", "items", len(c.items), "removed", len(removed), "added", len(added))
	c.listener.LoadingFinished(len(c.items))
	return len(c.items), nil
}

func (c *Catalog) newFileItem(f media.File) *Item {
	it := newItem(f)
	it.AllowPause = c.settings.AllowPause
	it.AllowSeek = c.settings.AllowSeek
	if info, ok := c.store.Lookup(f.Path); ok {
		it.seedInfo(info)
	}
	it.Name = c.nameFor(it)
	return it
}

func (c *Catalog) nameFor(it *Item) string {
	if it.BlankScreen {
		return BlankScreenName
	}
	if c.settings.UseInternalTitles {
		if t := it.Title(); t != "" {
			return t
		}
		if info, ok := c.store.Lookup(it.path); ok && info.Title != "" {
			return info.Title
		}
	}
	return media.DisplayName(it.path)
}

// truncate drops file items past MaxItemCount and returns them.
func (c *Catalog) truncate() []*Item {
	max := c.settings.MaxItemCount
	if max <= 0 {
		return nil
	}

	var out []*Item
	n := 0
	kept := c.items[:0]
	for _, it := range c.items {
		if it.BlankScreen {
			kept = append(kept, it)
			continue
		}
		n++
		if n > max {
			out = append(out, it)
			continue
		}
		kept = append(kept, it)
	}
	clear(c.items[len(kept):])
	c.items = kept
	return out
}

func (c *Catalog) applyMembership() {
	for _, it := range c.items {
		if it.BlankScreen {
			continue
		}
		it.Visible = !c.hidden.Contains(it.path)
		it.PauseOnLastFrame = it.class == media.Video && c.frozen.Contains(it.path)
	}
}

// syncBlankScreen inserts or removes the sentinel. It returns the sentinel
// when it was removed.
func (c *Catalog) syncBlankScreen() *Item {
	want := c.settings.wantsBlankScreen()
	present := len(c.items) > 0 && c.items[0].BlankScreen

	switch {
	case want && !present:
		if c.blank == nil {
			c.blank = newItem(media.File{Path: c.blankPath, Classification: media.Image})
			c.blank.BlankScreen = true
			c.blank.Name = BlankScreenName
			c.queue.Add(c.blank)
		}
		c.blank.Visible = true
		c.items = append([]*Item{c.blank}, c.items...)
		c.byID[c.blank.ID] = c.blank
		return nil
	case !want && present:
		b := c.items[0]
		c.items = append(c.items[:0:0], c.items[1:]...)
		return b
	}
	return nil
}

func (c *Catalog) sort() {
	sort.SliceStable(c.items, func(i, j int) bool {
		return itemLess(c.items[i], c.items[j])
	})
}

func itemLess(a, b *Item) bool {
	if a.BlankScreen != b.BlankScreen {
		return a.BlankScreen
	}
	if c := media.Compare(a.Name, b.Name); c != 0 {
		return c < 0
	}
	return media.Key(a.path) < media.Key(b.path)
}

// Resort restores display order. It reports whether anything moved; calling
// it on a sorted catalog is a no-op.
func (c *Catalog) Resort() bool {
	if sort.SliceIsSorted(c.items, func(i, j int) bool {
		return itemLess(c.items[i], c.items[j])
	}) {
		return false
	}
	c.sort()
	return true
}

// RefreshNames recomputes display names from titles and settings. It reports
// whether any name changed; call Resort afterwards.
func (c *Catalog) RefreshNames() bool {
	changed := false
	for _, it := range c.items {
		if n := c.nameFor(it); n != it.Name {
			it.Name = n
			changed = true
		}
	}
	return changed
}

// ApplySettings updates the settings and the per-item options derived from
// them. Count and blank-screen changes take effect on the next Reload.
func (c *Catalog) ApplySettings(s Settings) {
	prev := c.settings
	c.settings = s

	if prev.AllowPause != s.AllowPause || prev.AllowSeek != s.AllowSeek {
		for _, it := range c.items {
			it.AllowPause = s.AllowPause
			it.AllowSeek = s.AllowSeek
		}
	}
	if prev.UseInternalTitles != s.UseInternalTitles {
		if c.RefreshNames() {
			c.Resort()
		}
	}
}

// RequeueAll clears every thumbnail and submits all items for metadata again.
func (c *Catalog) RequeueAll() int {
	for _, it := range c.items {
		it.clearThumbnail()
		c.queue.Add(it)
	}
	return len(c.items)
}

// Items returns the items in display order. The slice is a copy; the items
// are not.
func (c *Catalog) Items() []*Item {
	return append([]*Item(nil), c.items...)
}

// Len returns the number of items, including the blank screen.
func (c *Catalog) Len() int { return len(c.items) }

// Get looks an item up by ID.
func (c *Catalog) Get(id uuid.UUID) (*Item, bool) {
	it, ok := c.byID[id]
	return it, ok
}

// FindByPath looks an item up by path, case-insensitively.
func (c *Catalog) FindByPath(path string) (*Item, bool) {
	k := media.Key(path)
	for _, it := range c.items {
		if !it.BlankScreen && media.Key(it.path) == k {
			return it, true
		}
	}
	return nil, false
}

// BlankScreen returns the sentinel if it is in the catalog.
func (c *Catalog) BlankScreen() *Item {
	if len(c.items) > 0 && c.items[0].BlankScreen {
		return c.items[0]
	}
	return nil
}

// Hide marks an item hidden and records its path.
func (c *Catalog) Hide(id uuid.UUID) error {
	it, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("hide %s: %w", id, ErrNotFound)
	}
	it.Visible = false
	if !it.BlankScreen {
		c.hidden.Add(it.path)
	}
	return nil
}

// Unhide makes a single item visible again.
func (c *Catalog) Unhide(id uuid.UUID) error {
	it, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("unhide %s: %w", id, ErrNotFound)
	}
	it.Visible = true
	c.hidden.Remove(it.path)
	return nil
}

// UnhideAll clears the hidden set and makes every item visible.
func (c *Catalog) UnhideAll() {
	c.hidden.Clear()
	for _, it := range c.items {
		it.Visible = true
	}
}

// SetFrozen turns pause-on-last-frame on or off for a video. It takes effect
// the next time the video nears its end.
func (c *Catalog) SetFrozen(id uuid.UUID, on bool) error {
	it, ok := c.byID[id]
	if !ok {
		return fmt.Errorf("freeze %s: %w", id, ErrNotFound)
	}
	if it.class != media.Video || it.BlankScreen {
		return fmt.Errorf("freeze %s: %w", it.Name, ErrNotVideo)
	}
	it.PauseOnLastFrame = on
	if on {
		c.frozen.Add(it.path)
	} else {
		c.frozen.Remove(it.path)
	}
	return nil
}

// NextImage returns the first visible image after id in display order, or
// nil. Surfaces use it to pre-load the next slide.
func (c *Catalog) NextImage(id uuid.UUID) *Item {
	found := false
	for _, it := range c.items {
		if !found {
			found = it.ID == id
			continue
		}
		if it.class == media.Image && it.Visible && !it.BlankScreen {
			return it
		}
	}
	return nil
}

// Stats summarises the catalog by classification.
func (c *Catalog) Stats() map[media.Classification]int {
	out := make(map[media.Classification]int, 3)
	for _, it := range c.items {
		if !it.BlankScreen {
			out[it.class]++
		}
	}
	return out
}
