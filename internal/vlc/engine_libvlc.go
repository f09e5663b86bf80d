//go:build linux && arm64

// Production backend: CGO bindings to libVLC with RPi5 hardware acceleration.
// One libVLC Player renders straight to DRM/KMS, no desktop involved.
// This file only compiles on linux/arm64 (the Raspberry Pi 5 target).
package vlc

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"mediadeck/internal/display"
	"mediadeck/internal/media"

	libvlc "github.com/adrg/libvlc-go/v3"
	"github.com/hashicorp/go-hclog"
)

var vlcInitOnce sync.Once
var vlcInitErr error

type libvlcBackend struct {
	log hclog.Logger

	mu      sync.Mutex
	player  *libvlc.Player
	monitor display.Monitor
}

func newBackend(logger hclog.Logger) (Backend, error) {
	// Initialize libVLC once per process.
	vlcInitOnce.Do(func() {
		flags := []string{
			// --- RPi5 Hardware Acceleration ---
			"--vout=drm_vout", // Render via DRM/KMS directly
			"--no-xlib",       // Skip X11

			// --- Display ---
			"--no-osd",
			"--no-dbus",
			"--no-video-title-show",
			"--no-spu",

			// --- Audio ---
			"--aout=alsa",

			// --- Buffering ---
			"--file-caching=1000",
			"--clock-jitter=0",

			// --- Quality Preservation ---
			"--no-drop-late-frames",
			"--no-skip-frames",
			"--avcodec-skiploopfilter=0",
			"--deinterlace=0",

			"--quiet",
		}
		vlcInitErr = libvlc.Init(flags...)
	})
	if vlcInitErr != nil {
		return nil, fmt.Errorf("libvlc init failed: %w", vlcInitErr)
	}

	player, err := libvlc.NewPlayer()
	if err != nil {
		return nil, fmt.Errorf("player creation failed: %w", err)
	}

	logger.Info("libVLC player initialized")
	return &libvlcBackend{log: logger, player: player}, nil
}

func (b *libvlcBackend) Configure(mon display.Monitor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.monitor = mon
	if b.player == nil {
		return fmt.Errorf("player released")
	}
	return b.player.SetFullScreen(true)
}

func (b *libvlcBackend) Play(path string, class media.Classification, start time.Duration) error {
	b.mu.Lock()
	player := b.player
	b.mu.Unlock()
	if player == nil {
		return fmt.Errorf("player released")
	}

	m, err := player.LoadMediaFromPath(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	var opts []string
	switch class {
	case media.Image:
		opts = append(opts, ":image-duration=-1")
	case media.Audio:
		opts = append(opts, ":no-video")
	}
	if start > 0 {
		opts = append(opts, ":start-time="+strconv.FormatFloat(start.Seconds(), 'f', 3, 64))
	}
	if len(opts) > 0 {
		if err := m.AddOptions(opts...); err != nil {
			b.log.Warn("media options rejected", "path", path, "error", err)
		}
	}

	if err := player.Play(); err != nil {
		return fmt.Errorf("play failed: %w", err)
	}
	return nil
}

func (b *libvlcBackend) Stop() error {
	b.mu.Lock()
	player := b.player
	b.mu.Unlock()
	if player == nil {
		return nil
	}
	return player.Stop()
}

func (b *libvlcBackend) SetPause(paused bool) error {
	b.mu.Lock()
	player := b.player
	b.mu.Unlock()
	if player == nil {
		return fmt.Errorf("player released")
	}
	return player.SetPause(paused)
}

func (b *libvlcBackend) Seek(pos time.Duration) error {
	b.mu.Lock()
	player := b.player
	b.mu.Unlock()
	if player == nil {
		return fmt.Errorf("player released")
	}
	return player.SetMediaTime(int(pos.Milliseconds()))
}

func (b *libvlcBackend) Status() (Status, error) {
	b.mu.Lock()
	player := b.player
	b.mu.Unlock()
	if player == nil {
		return Status{State: Stopped}, nil
	}

	ms, err := player.MediaState()
	if err != nil {
		return Status{}, err
	}

	var st Status
	switch ms {
	case libvlc.MediaPlaying, libvlc.MediaOpening, libvlc.MediaBuffering:
		st.State = Playing
	case libvlc.MediaPaused:
		st.State = Paused
	case libvlc.MediaEnded, libvlc.MediaError:
		return Status{State: Ended}, nil
	default:
		return Status{State: Stopped}, nil
	}

	if t, err := player.MediaTime(); err == nil {
		st.Position = time.Duration(t) * time.Millisecond
	}
	if l, err := player.MediaLength(); err == nil {
		st.Length = time.Duration(l) * time.Millisecond
	}
	return st, nil
}

func (b *libvlcBackend) Release() {
	b.mu.Lock()
	player := b.player
	b.player = nil
	b.mu.Unlock()

	if player != nil {
		player.Stop()
		player.Release()
	}
	libvlc.Release()
	b.log.Info("released")
}
