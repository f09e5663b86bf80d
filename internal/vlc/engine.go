// Package vlc renders media on the audience display with VLC.
// On RPi5 (linux/arm64) it uses CGO with libVLC for DRM/KMS rendering.
// On other platforms it drives a VLC subprocess over its rc interface.
package vlc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"mediadeck/internal/display"
	"mediadeck/internal/media"
	"mediadeck/internal/playback"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultPollInterval is how often the playback position is sampled.
	DefaultPollInterval = 250 * time.Millisecond
	// NearEndWindow is how close to the end NearEnd fires.
	NearEndWindow = 400 * time.Millisecond
)

// State is what a backend reports about the loaded media.
type State int

const (
	Stopped State = iota
	Playing
	Paused
	Ended
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	default:
		return "stopped"
	}
}

// Status is a sample of the backend's playback.
type Status struct {
	State    State
	Position time.Duration
	Length   time.Duration
}

// Backend is the platform-specific player. It holds at most one media at a
// time; Play replaces whatever was loaded.
//
// Backends must NOT hold a mutex while blocking on the player.
type Backend interface {
	Configure(mon display.Monitor) error
	Play(path string, class media.Classification, start time.Duration) error
	Stop() error
	SetPause(paused bool) error
	Seek(pos time.Duration) error
	Status() (Status, error)
	Release()
}

// Events receives what the engine observes while media plays. Handlers
// must not block.
type Events interface {
	PositionChanged(pos time.Duration)
	NearEnd()
	Completed()
}

type nopEvents struct{}

func (nopEvents) PositionChanged(time.Duration) {}
func (nopEvents) NearEnd()                      {}
func (nopEvents) Completed()                    {}

// Engine implements playback.Surface on top of a Backend.
type Engine struct {
	backend  Backend
	log      hclog.Logger
	interval time.Duration

	mu       sync.Mutex
	events   Events
	monitor  display.Monitor
	current  uuid.UUID
	pollStop chan struct{}
	pollDone chan struct{}

	nearEndSent atomic.Bool
}

var _ playback.Surface = (*Engine)(nil)

// NewEngine creates an engine with the platform backend.
func NewEngine(mon display.Monitor, logger hclog.Logger) (*Engine, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	b, err := newBackend(logger)
	if err != nil {
		return nil, fmt.Errorf("vlc backend: %w", err)
	}
	return NewEngineWithBackend(b, mon, logger)
}

// NewEngineWithBackend creates an engine on a given backend.
func NewEngineWithBackend(b Backend, mon display.Monitor, logger hclog.Logger) (*Engine, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := b.Configure(mon); err != nil {
		b.Release()
		return nil, fmt.Errorf("configure monitor %q: %w", mon.ID, err)
	}
	logger.Info("engine ready", "monitor", mon.ID, "width", mon.Width, "height", mon.Height)
	return &Engine{
		backend:  b,
		log:      logger,
		interval: DefaultPollInterval,
		events:   nopEvents{},
		monitor:  mon,
	}, nil
}

// SetEvents sets the receiver of playback events.
func (e *Engine) SetEvents(ev Events) {
	if ev == nil {
		ev = nopEvents{}
	}
	e.mu.Lock()
	e.events = ev
	e.mu.Unlock()
}

// SetPollInterval changes the position sampling rate. Takes effect on the
// next Start.
func (e *Engine) SetPollInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPollInterval
	}
	e.mu.Lock()
	e.interval = d
	e.mu.Unlock()
}

// SetMonitor moves subsequent output to mon.
func (e *Engine) SetMonitor(mon display.Monitor) error {
	if err := e.backend.Configure(mon); err != nil {
		return fmt.Errorf("configure monitor %q: %w", mon.ID, err)
	}
	e.mu.Lock()
	e.monitor = mon
	e.mu.Unlock()
	e.log.Info("monitor changed", "monitor", mon.ID)
	return nil
}

// Monitor returns the current output monitor.
func (e *Engine) Monitor() display.Monitor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.monitor
}

// Start loads and plays m from m.Position.
func (e *Engine) Start(ctx context.Context, m playback.Media) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.stopPolling()

	if err := e.backend.Play(m.Path, m.Classification, m.Position); err != nil {
		return fmt.Errorf("play %s: %w", m.Path, err)
	}
	e.log.Info("playing", "name", m.Name, "class", m.Classification, "from", m.Position)

	e.mu.Lock()
	e.current = m.ID
	e.mu.Unlock()

	e.nearEndSent.Store(false)
	if m.Classification.HasDuration() {
		e.startPolling()
	}
	return nil
}

// Stop takes m off screen. Stopping media that is no longer loaded is a
// no-op.
func (e *Engine) Stop(ctx context.Context, m playback.Media) error {
	e.mu.Lock()
	cur := e.current
	e.mu.Unlock()
	if cur != m.ID {
		e.log.Debug("stop ignored, not current", "name", m.Name)
		return nil
	}

	e.stopPolling()
	err := e.backend.Stop()

	e.mu.Lock()
	if e.current == m.ID {
		e.current = uuid.Nil
	}
	e.mu.Unlock()

	if err != nil {
		return fmt.Errorf("stop %s: %w", m.Path, err)
	}
	e.log.Info("stopped", "name", m.Name)
	return nil
}

// Pause freezes m.
func (e *Engine) Pause(ctx context.Context, m playback.Media) error {
	return e.setPause(m, true)
}

// Resume continues m.
func (e *Engine) Resume(ctx context.Context, m playback.Media) error {
	return e.setPause(m, false)
}

func (e *Engine) setPause(m playback.Media, paused bool) error {
	if !e.isCurrent(m.ID) {
		return fmt.Errorf("%s is not loaded", m.Name)
	}
	if err := e.backend.SetPause(paused); err != nil {
		return fmt.Errorf("set pause=%v on %s: %w", paused, m.Path, err)
	}
	return nil
}

// Seek moves m to m.Position.
func (e *Engine) Seek(ctx context.Context, m playback.Media) error {
	if !e.isCurrent(m.ID) {
		return fmt.Errorf("%s is not loaded", m.Name)
	}
	if err := e.backend.Seek(m.Position); err != nil {
		return fmt.Errorf("seek %s: %w", m.Path, err)
	}
	e.nearEndSent.Store(false)
	return nil
}

// Release stops playback and frees the backend.
func (e *Engine) Release() {
	e.stopPolling()
	e.backend.Release()
	e.log.Info("engine released")
}

func (e *Engine) isCurrent(id uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current == id && id != uuid.Nil
}

func (e *Engine) startPolling() {
	e.mu.Lock()
	stop := make(chan struct{})
	done := make(chan struct{})
	e.pollStop = stop
	e.pollDone = done
	interval := e.interval
	e.mu.Unlock()

	go e.poll(interval, stop, done)
}

func (e *Engine) stopPolling() {
	e.mu.Lock()
	stop, done := e.pollStop, e.pollDone
	e.pollStop, e.pollDone = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Engine) poll(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Duration = -1
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		st, err := e.backend.Status()
		if err != nil {
			e.log.Trace("status failed", "error", err)
			continue
		}

		e.mu.Lock()
		ev := e.events
		e.mu.Unlock()

		if st.State == Ended {
			e.log.Debug("media ended")
			ev.Completed()
			return
		}
		if st.State == Stopped {
			continue
		}

		if st.Position != last {
			last = st.Position
			ev.PositionChanged(st.Position)
		}
		if st.Length > 0 && st.Length-st.Position <= NearEndWindow && !e.nearEndSent.Load() {
			e.nearEndSent.Store(true)
			ev.NearEnd()
		}
	}
}
