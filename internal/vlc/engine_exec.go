//go:build !(linux && arm64)

// Subprocess backend: one VLC process per loaded media, controlled over the
// rc interface on stdin. No CGO required.
//
// Linux:   Uses cvlc (VLC without Qt GUI) + xdotool for window positioning.
//          xdotool sets override-redirect which removes the window from WM
//          control entirely (no title bar, no taskbar entry, exact positioning).
//
// Windows/macOS: Uses vlc with kiosk flags, placed with --video-x/--video-y.
package vlc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediadeck/internal/display"
	"mediadeck/internal/media"

	"github.com/hashicorp/go-hclog"
)

const replyTimeout = time.Second

type execBackend struct {
	log     hclog.Logger
	vlcPath string

	mu      sync.Mutex
	monitor display.Monitor
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	replies chan int64
	exited  chan struct{}
	paused  bool

	// serialises rc queries so replies pair with their commands
	queryMu sync.Mutex
}

func newBackend(logger hclog.Logger) (Backend, error) {
	path, err := findVLC()
	if err != nil {
		return nil, err
	}
	logger.Info("using VLC subprocess", "path", path)
	return &execBackend{log: logger, vlcPath: path}, nil
}

func (b *execBackend) Configure(mon display.Monitor) error {
	b.mu.Lock()
	b.monitor = mon
	b.mu.Unlock()
	return nil
}

func (b *execBackend) Play(path string, class media.Classification, start time.Duration) error {
	b.kill()

	b.mu.Lock()
	mon := b.monitor
	b.mu.Unlock()

	args := buildArgs(runtime.GOOS, mon, path, class, start)
	cmd := exec.Command(b.vlcPath, args...)
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" {
		cmd.Env = append(os.Environ(), "DISPLAY=:0")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("vlc stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("vlc stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("vlc start failed: %w", err)
	}

	replies := make(chan int64, 8)
	exited := make(chan struct{})
	go readReplies(stdout, replies)
	go func() {
		cmd.Wait()
		close(exited)
	}()

	b.mu.Lock()
	b.cmd = cmd
	b.stdin = stdin
	b.replies = replies
	b.exited = exited
	b.paused = false
	b.mu.Unlock()

	if runtime.GOOS == "linux" && class.NeedsDisplay() && mon.Width > 0 {
		go b.positionWindow(cmd.Process.Pid, mon)
	}
	return nil
}

func (b *execBackend) Stop() error {
	b.kill()
	return nil
}

func (b *execBackend) SetPause(paused bool) error {
	b.mu.Lock()
	same := b.paused == paused
	b.mu.Unlock()
	if same {
		return nil
	}
	// rc "pause" toggles.
	if err := b.send("pause"); err != nil {
		return err
	}
	b.mu.Lock()
	b.paused = paused
	b.mu.Unlock()
	return nil
}

func (b *execBackend) Seek(pos time.Duration) error {
	return b.send("seek " + strconv.Itoa(int(pos/time.Second)))
}

func (b *execBackend) Status() (Status, error) {
	b.mu.Lock()
	cmd, exited, paused := b.cmd, b.exited, b.paused
	b.mu.Unlock()

	if cmd == nil {
		return Status{State: Stopped}, nil
	}
	select {
	case <-exited:
		return Status{State: Ended}, nil
	default:
	}

	pos, err := b.query("get_time")
	if err != nil {
		return Status{}, err
	}
	length, err := b.query("get_length")
	if err != nil {
		return Status{}, err
	}

	st := Status{
		State:    Playing,
		Position: time.Duration(pos) * time.Second,
		Length:   time.Duration(length) * time.Second,
	}
	if paused {
		st.State = Paused
	}
	return st, nil
}

func (b *execBackend) Release() {
	b.kill()
	b.log.Info("released")
}

func (b *execBackend) send(line string) error {
	b.mu.Lock()
	stdin := b.stdin
	b.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("vlc not running")
	}
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		return fmt.Errorf("vlc rc %q: %w", line, err)
	}
	return nil
}

func (b *execBackend) query(line string) (int64, error) {
	b.queryMu.Lock()
	defer b.queryMu.Unlock()

	b.mu.Lock()
	replies, exited := b.replies, b.exited
	b.mu.Unlock()
	if replies == nil {
		return 0, fmt.Errorf("vlc not running")
	}

	// Drop replies nobody waited for.
	for len(replies) > 0 {
		<-replies
	}

	if err := b.send(line); err != nil {
		return 0, err
	}
	select {
	case v := <-replies:
		return v, nil
	case <-exited:
		return 0, fmt.Errorf("vlc exited")
	case <-time.After(replyTimeout):
		return 0, fmt.Errorf("vlc rc %q: no reply", line)
	}
}

func (b *execBackend) kill() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil && b.cmd.Process != nil {
		b.cmd.Process.Kill()
	}
	if b.stdin != nil {
		b.stdin.Close()
	}
	b.cmd = nil
	b.stdin = nil
	b.replies = nil
	b.paused = false
}

// readReplies forwards the numeric lines rc prints in answer to get_time and
// get_length. Everything else is chatter.
func readReplies(r io.Reader, out chan<- int64) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if v, ok := parseReply(sc.Text()); ok {
			select {
			case out <- v:
			default:
			}
		}
	}
}

func parseReply(line string) (int64, bool) {
	line = strings.TrimSpace(line)
	for strings.HasPrefix(line, ">") {
		line = strings.TrimSpace(strings.TrimPrefix(line, ">"))
	}
	if line == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(line, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func buildArgs(goos string, mon display.Monitor, path string, class media.Classification, start time.Duration) []string {
	args := []string{
		"-I", "rc",
		"--rc-fake-tty",

		"--no-video-title-show", // No filename overlay
		"--no-osd",              // No on-screen display
		"--no-spu",              // No subtitles

		"--play-and-exit",
		"--no-loop",
		"--no-repeat",

		"--avcodec-hw=any",    // HW decode where available
		"--avcodec-threads=0", // Auto-detect cores

		"--file-caching=1000",
		"--clock-jitter=0",

		"--quiet",
	}

	switch class {
	case media.Image:
		// Hold the image until told otherwise.
		args = append(args, "--image-duration=-1")
	case media.Audio:
		args = append(args, "--no-video")
	}

	if start > 0 {
		args = append(args, "--start-time="+strconv.FormatFloat(start.Seconds(), 'f', 3, 64))
	}

	if goos != "linux" && class.NeedsDisplay() {
		args = append(args,
			"--no-video-deco",
			"--video-on-top",
			"--mouse-hide-timeout=0",
			"--no-qt-fs-controller",
			"--no-qt-privacy-ask",
		)
		if mon.Width > 0 {
			args = append(args,
				"--video-x="+strconv.Itoa(mon.X),
				"--video-y="+strconv.Itoa(mon.Y),
				"--width="+strconv.Itoa(mon.Width),
				"--height="+strconv.Itoa(mon.Height),
			)
		}
		args = append(args, "--fullscreen")
		if goos == "windows" {
			args = append(args, "--vout=direct3d11")
		}
	}

	return append(args, path)
}

// positionWindow uses xdotool to cover the monitor with the video window.
func (b *execBackend) positionWindow(pid int, mon display.Monitor) {
	pidStr := strconv.Itoa(pid)
	wStr := strconv.Itoa(mon.Width)
	hStr := strconv.Itoa(mon.Height)
	xStr := strconv.Itoa(mon.X)
	yStr := strconv.Itoa(mon.Y)

	for attempt := 0; attempt < 50; attempt++ {
		time.Sleep(200 * time.Millisecond)

		out, err := exec.Command("xdotool", "search", "--pid", pidStr).Output()
		if err != nil || strings.TrimSpace(string(out)) == "" {
			continue
		}

		lines := strings.Split(strings.TrimSpace(string(out)), "\n")
		windowID := lines[len(lines)-1]

		exec.Command("xdotool", "set_window", "--overrideredirect", "1", windowID).Run()
		exec.Command("xdotool", "windowsize", windowID, wStr, hStr).Run()
		exec.Command("xdotool", "windowmove", windowID, xStr, yStr).Run()
		exec.Command("xdotool", "windowraise", windowID).Run()

		b.log.Debug("window positioned", "window", windowID, "monitor", mon.ID,
			"x", mon.X, "y", mon.Y, "width", mon.Width, "height", mon.Height)
		return
	}
	b.log.Warn("could not find VLC window", "pid", pid)
}

func findVLC() (string, error) {
	// On Linux, prefer cvlc: VLC without the Qt GUI, video only.
	if runtime.GOOS == "linux" {
		if path, err := exec.LookPath("cvlc"); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath("vlc"); err == nil {
		return path, nil
	}

	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = []string{
			`C:\Program Files\VideoLAN\VLC\vlc.exe`,
			`C:\Program Files (x86)\VideoLAN\VLC\vlc.exe`,
		}
	case "darwin":
		candidates = []string{
			"/Applications/VLC.app/Contents/MacOS/VLC",
		}
	default:
		candidates = []string{
			"/usr/bin/cvlc",
			"/usr/bin/vlc",
			"/snap/bin/vlc",
		}
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", fmt.Errorf("VLC not found, install with: sudo apt install vlc")
}
