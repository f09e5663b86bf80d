package playback

import (
	"context"
	"fmt"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/media"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// DefaultSurfaceTimeout bounds a single surface call.
const DefaultSurfaceTimeout = 15 * time.Second

// Coordinator is the playback state machine.
//
//	Idle -> Starting -> Active -> Stopping -> Idle
//	Active <-> Paused (video and audio only)
//
// Starting and Stopping hold the transition slot; while it is held every
// start, stop and pause is refused with ErrBusy.
type Coordinator struct {
	items   Items
	surface Surface
	disp    Dispatcher
	obs     Observer
	log     hclog.Logger
	ctx     context.Context
	timeout time.Duration

	changing uuid.UUID
	monitor  bool

	listeners []func()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithObserver reports transitions and rejections to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.obs = o }
}

// WithContext sets the parent context of surface calls.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) { c.ctx = ctx }
}

// WithSurfaceTimeout bounds each surface call.
func WithSurfaceTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithMonitor sets whether a display is selected at startup.
func WithMonitor(selected bool) Option {
	return func(c *Coordinator) { c.monitor = selected }
}

// New creates an idle coordinator.
func New(items Items, surface Surface, disp Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		items:   items,
		surface: surface,
		disp:    disp,
		obs:     nopObserver{},
		log:     hclog.NewNullLogger(),
		ctx:     context.Background(),
		timeout: DefaultSurfaceTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnChange registers fn to run after any item's playback state changes.
func (c *Coordinator) OnChange(fn func()) {
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) changed() {
	c.RecomputePlayEnabled()
	for _, fn := range c.listeners {
		fn()
	}
}

// IsChanging reports whether a transition is in flight.
func (c *Coordinator) IsChanging() bool {
	return c.changing != uuid.Nil
}

// ChangingID returns the item holding the transition slot, or uuid.Nil.
func (c *Coordinator) ChangingID() uuid.UUID {
	return c.changing
}

// MonitorSelected reports whether a display is available for images and
// video.
func (c *Coordinator) MonitorSelected() bool {
	return c.monitor
}

// Current returns the active video or audio item, else the active image,
// else nil.
func (c *Coordinator) Current() *catalog.Item {
	var image *catalog.Item
	for _, it := range c.items.Items() {
		if !it.Active {
			continue
		}
		if it.Classification().HasDuration() {
			return it
		}
		if image == nil {
			image = it
		}
	}
	return image
}

func (c *Coordinator) reject(err error) error {
	c.obs.ObserveRejected(Reason(err))
	return err
}

func (c *Coordinator) lookup(op string, id uuid.UUID) (*catalog.Item, error) {
	it, ok := c.items.Get(id)
	if !ok {
		c.log.Error("command for unknown item", "op", op, "id", id)
		return nil, c.reject(fmt.Errorf("%s %s: %w", op, id, ErrNotFound))
	}
	return it, nil
}

// RequestStart shows an item. An image already on screen is replaced as part
// of the same transition.
func (c *Coordinator) RequestStart(id uuid.UUID) error {
	if c.IsChanging() {
		return c.reject(fmt.Errorf("start %s: %w", id, ErrBusy))
	}
	it, err := c.lookup("start", id)
	if err != nil {
		return err
	}
	if it.Active {
		return nil
	}

	class := it.Classification()
	if class.NeedsDisplay() && !c.monitor {
		return c.reject(fmt.Errorf("start %q: no display selected: %w", it.Name, ErrNotAllowed))
	}

	var prev *catalog.Item
	for _, other := range c.items.Items() {
		if other == it || !other.Active {
			continue
		}
		if other.Classification().HasDuration() {
			return c.reject(fmt.Errorf("start %q while %q plays: %w", it.Name, other.Name, ErrConflict))
		}
		prev = other
	}

	it.Active = true
	it.Changing = true
	c.changing = it.ID
	next := MediaOf(it)
	var old *Media
	if prev != nil {
		prev.Changing = true
		m := MediaOf(prev)
		old = &m
	}
	c.log.Debug("starting", "name", it.Name, "class", class, "replacing", prev != nil)
	c.changed()

	go func() {
		begin := time.Now()
		if old != nil {
			if err := c.call(c.surface.Stop, *old); err != nil {
				c.log.Warn("stop of replaced image failed", "name", old.Name, "error", err)
			}
		}
		err := c.call(c.surface.Start, next)
		elapsed := time.Since(begin)
		c.disp.Post(func() { c.finishStart(it, prev, err, elapsed) })
	}()
	return nil
}

func (c *Coordinator) finishStart(it, prev *catalog.Item, err error, elapsed time.Duration) {
	c.obs.ObserveTransition("start", elapsed.Seconds(), err)
	if c.changing == it.ID {
		c.changing = uuid.Nil
	}
	it.Changing = false
	if prev != nil {
		prev.Active = false
		prev.Changing = false
		prev.Position = 0
	}

	if err != nil {
		c.log.Error("start failed", "name", it.Name, "error", err)
		it.Active = false
		it.Paused = false
		c.changed()
		return
	}

	if _, ok := c.items.Get(it.ID); !ok {
		// Removed from the catalog while starting.
		c.log.Info("started item was removed, stopping", "name", it.Name)
		it.Active = false
		c.stopDetached(MediaOf(it))
	}
	c.changed()
}

// RequestStop takes an item off screen and rewinds it.
func (c *Coordinator) RequestStop(id uuid.UUID) error {
	if c.IsChanging() {
		return c.reject(fmt.Errorf("stop %s: %w", id, ErrBusy))
	}
	it, err := c.lookup("stop", id)
	if err != nil {
		return err
	}
	if !it.Active {
		return nil
	}

	it.Changing = true
	c.changing = it.ID
	m := MediaOf(it)
	c.log.Debug("stopping", "name", it.Name)
	c.changed()

	go func() {
		begin := time.Now()
		err := c.call(c.surface.Stop, m)
		elapsed := time.Since(begin)
		c.disp.Post(func() { c.finishStop(it, err, elapsed) })
	}()
	return nil
}

func (c *Coordinator) finishStop(it *catalog.Item, err error, elapsed time.Duration) {
	c.obs.ObserveTransition("stop", elapsed.Seconds(), err)
	if err != nil {
		c.log.Warn("surface stop failed, marking idle anyway", "name", it.Name, "error", err)
	}
	if c.changing == it.ID {
		c.changing = uuid.Nil
	}
	it.Changing = false
	it.Active = false
	it.Paused = false
	it.Position = 0
	c.changed()
}

// RequestPause toggles pause on the playing video or audio item.
func (c *Coordinator) RequestPause(id uuid.UUID) error {
	if c.IsChanging() {
		return c.reject(fmt.Errorf("pause %s: %w", id, ErrBusy))
	}
	it, err := c.lookup("pause", id)
	if err != nil {
		return err
	}
	if !it.Active || !it.Classification().HasDuration() {
		return c.reject(fmt.Errorf("pause %q: not playing: %w", it.Name, ErrNotAllowed))
	}
	if !it.AllowPause {
		return c.reject(fmt.Errorf("pause %q: pausing disabled: %w", it.Name, ErrNotAllowed))
	}
	c.togglePause(it)
	return nil
}

// togglePause flips the paused flag at once and tells the surface in the
// background, reverting the flag if the surface refuses.
func (c *Coordinator) togglePause(it *catalog.Item) {
	it.Paused = !it.Paused
	paused := it.Paused
	m := MediaOf(it)
	c.changed()

	op, kind := c.surface.Resume, "resume"
	if paused {
		op, kind = c.surface.Pause, "pause"
	}

	go func() {
		begin := time.Now()
		err := c.call(op, m)
		elapsed := time.Since(begin)
		c.disp.Post(func() {
			c.obs.ObserveTransition(kind, elapsed.Seconds(), err)
			if err == nil {
				return
			}
			c.log.Warn("surface refused "+kind, "name", it.Name, "error", err)
			if it.Active && it.Paused == paused {
				it.Paused = !paused
				c.changed()
			}
		})
	}()
}

// RequestSeek sets the playback position of a video or audio item. A
// playing item must be paused first; an idle item resumes from the position
// when next started.
func (c *Coordinator) RequestSeek(id uuid.UUID, pos time.Duration) error {
	it, err := c.lookup("seek", id)
	if err != nil {
		return err
	}
	if !it.Classification().HasDuration() {
		return c.reject(fmt.Errorf("seek %q: no timeline: %w", it.Name, ErrNotAllowed))
	}
	if !it.AllowSeek {
		return c.reject(fmt.Errorf("seek %q: seeking disabled: %w", it.Name, ErrNotAllowed))
	}
	if it.Active && !it.Paused {
		return c.reject(fmt.Errorf("seek %q: pause first: %w", it.Name, ErrNotAllowed))
	}

	if pos < 0 {
		pos = 0
	}
	if d := it.Duration(); d > 0 && pos > d {
		pos = d
	}
	it.Position = pos

	if it.Active {
		m := MediaOf(it)
		go func() {
			if err := c.call(c.surface.Seek, m); err != nil {
				c.log.Warn("seek failed", "name", m.Name, "error", err)
			}
		}()
	}
	c.changed()
	return nil
}

// OnNearEnd pauses the playing video if it is set to freeze on its last
// frame. The per-item freeze flag wins over the allow-pause option.
func (c *Coordinator) OnNearEnd() {
	cur := c.Current()
	if cur == nil || cur.Changing || cur.Paused || !cur.PauseOnLastFrame {
		return
	}
	if cur.Classification() != media.Video {
		return
	}
	c.log.Debug("freezing on last frame", "name", cur.Name)
	c.togglePause(cur)
}

// OnPositionChanged records the surface's playback position.
func (c *Coordinator) OnPositionChanged(pos time.Duration) {
	cur := c.Current()
	if cur == nil || !cur.Classification().HasDuration() || cur.Changing {
		return
	}
	cur.Position = pos
}

// OnCompleted handles media that finished on its own. A frozen item that is
// paused on its last frame stays on screen.
func (c *Coordinator) OnCompleted() {
	cur := c.Current()
	if cur == nil || !cur.Classification().HasDuration() || cur.Paused {
		return
	}
	if c.IsChanging() {
		return
	}
	if err := c.RequestStop(cur.ID); err != nil {
		c.log.Warn("stop after completion failed", "name", cur.Name, "error", err)
	}
}

// SetMonitorSelected records whether a display is available.
func (c *Coordinator) SetMonitorSelected(selected bool) {
	if c.monitor == selected {
		return
	}
	c.monitor = selected
	c.changed()
}

// Forget is called for items the catalog dropped. An item still on screen
// is taken off.
func (c *Coordinator) Forget(items ...*catalog.Item) {
	dirty := false
	for _, it := range items {
		if !it.Active || it.Changing {
			// A transition in flight resolves itself in finishStart.
			continue
		}
		c.log.Info("removed item was on screen, stopping", "name", it.Name)
		it.Active = false
		it.Paused = false
		c.stopDetached(MediaOf(it))
		dirty = true
	}
	if dirty {
		c.changed()
	}
}

func (c *Coordinator) stopDetached(m Media) {
	go func() {
		if err := c.call(c.surface.Stop, m); err != nil {
			c.log.Warn("stop failed", "name", m.Name, "error", err)
		}
	}()
}

// RecomputePlayEnabled refreshes every item's PlayEnabled flag. Images and
// video need a display; nothing may start while another video or audio item
// plays.
func (c *Coordinator) RecomputePlayEnabled() {
	items := c.items.Items()
	timedActive := false
	for _, it := range items {
		if it.Active && it.Classification().HasDuration() {
			timedActive = true
			break
		}
	}
	for _, it := range items {
		enabled := true
		if it.Classification().NeedsDisplay() && !c.monitor {
			enabled = false
		}
		if timedActive && !it.Active {
			enabled = false
		}
		it.PlayEnabled = enabled
	}
}

func (c *Coordinator) call(op func(context.Context, Media) error, m Media) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()
	return op(ctx, m)
}
