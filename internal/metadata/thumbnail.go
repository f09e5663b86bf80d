package metadata

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"mediadeck/internal/media"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/hashicorp/go-hclog"
	_ "golang.org/x/image/webp"
)

// DefaultThumbnailSize is the bounding box, in pixels, of a thumbnail.
const DefaultThumbnailSize = 160

// ThumbnailGenerator renders JPEG thumbnails and keeps them in a disk cache.
type ThumbnailGenerator struct {
	cacheDir string
	ffmpeg   string
	log      hclog.Logger

	mu     sync.Mutex
	size   int
	purged []func()
}

// NewThumbnailGenerator creates a generator caching under cacheDir. An empty
// cacheDir disables the disk cache.
func NewThumbnailGenerator(cacheDir string, size int, logger hclog.Logger) *ThumbnailGenerator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			logger.Warn("failed to create cache dir", "dir", cacheDir, "error", err)
		}
	}

	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		logger.Warn("ffmpeg not found, video thumbnails unavailable", "error", err)
	}

	return &ThumbnailGenerator{
		cacheDir: cacheDir,
		ffmpeg:   ffmpeg,
		size:     size,
		log:      logger,
	}
}

// Size returns the current bounding box.
func (t *ThumbnailGenerator) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// SetSize changes the bounding box. Cached thumbnails of the old size stay
// valid until Purge is called.
func (t *ThumbnailGenerator) SetSize(size int) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()
}

// OnPurged registers fn to run after every Purge.
func (t *ThumbnailGenerator) OnPurged(fn func()) {
	t.mu.Lock()
	t.purged = append(t.purged, fn)
	t.mu.Unlock()
}

// Purge deletes every cached thumbnail and notifies subscribers.
func (t *ThumbnailGenerator) Purge() error {
	t.mu.Lock()
	subs := append([]func(){}, t.purged...)
	t.mu.Unlock()

	var firstErr error
	if t.cacheDir != "" {
		entries, err := os.ReadDir(t.cacheDir)
		if err != nil && !os.IsNotExist(err) {
			firstErr = err
		}
		removed := 0
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
				continue
			}
			if err := os.Remove(filepath.Join(t.cacheDir, e.Name())); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			removed++
		}
		t.log.Info("thumbnail cache purged", "removed", removed)
	}

	for _, fn := range subs {
		fn()
	}
	return firstErr
}

// cachePath keys the cache by path, modification time and size so an edited
// file or a new size never serves a stale thumbnail.
func (t *ThumbnailGenerator) cachePath(path string, size int) string {
	if t.cacheDir == "" {
		return ""
	}
	var mod int64
	if info, err := os.Stat(path); err == nil {
		mod = info.ModTime().UnixNano()
	}
	hash := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d", path, mod, size)))
	return filepath.Join(t.cacheDir, fmt.Sprintf("%x.jpg", hash))
}

// Generate returns a JPEG thumbnail for path.
func (t *ThumbnailGenerator) Generate(ctx context.Context, path string, class media.Classification) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: file not accessible: %v", ErrThumbnail, err)
	}

	size := t.Size()
	cachePath := t.cachePath(path, size)
	if cachePath != "" {
		if data, err := os.ReadFile(cachePath); err == nil {
			t.log.Trace("cache hit", "path", path)
			return data, nil
		}
	}

	var img image.Image
	var err error
	switch class {
	case media.Image:
		img, err = imaging.Open(path, imaging.AutoOrientation(true))
	case media.Video:
		img, err = t.videoFrame(ctx, path)
	case media.Audio:
		img, err = coverArt(path)
	default:
		err = fmt.Errorf("unsupported classification %s", class)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrThumbnail, path, err)
	}

	data, err := encodeThumbnail(img, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrThumbnail, path, err)
	}

	if cachePath != "" {
		if err := os.WriteFile(cachePath, data, 0644); err != nil {
			t.log.Warn("failed to cache thumbnail", "path", cachePath, "error", err)
		}
	}
	return data, nil
}

func encodeThumbnail(img image.Image, size int) ([]byte, error) {
	thumb := imaging.Fit(img, size, size, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// videoFrame grabs a frame one second in, falling back to the first frame
// for clips shorter than that.
func (t *ThumbnailGenerator) videoFrame(ctx context.Context, path string) (image.Image, error) {
	if t.ffmpeg == "" {
		return nil, fmt.Errorf("ffmpeg not available")
	}

	img, err := t.ffmpegFrame(ctx, path, "00:00:01")
	if err == nil {
		return img, nil
	}
	t.log.Debug("frame at 1s failed, retrying at start", "path", path, "error", err)
	return t.ffmpegFrame(ctx, path, "")
}

func (t *ThumbnailGenerator) ffmpegFrame(ctx context.Context, path, seek string) (image.Image, error) {
	args := []string{"-i", path}
	if seek != "" {
		args = append([]string{"-ss", seek}, args...)
	}
	args = append(args, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %v: %s", err, lastLine(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output")
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode ffmpeg output: %w", err)
	}
	return img, nil
}

func coverArt(path string) (image.Image, error) {
	data, err := readTagPicture(path)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover art: %w", err)
	}
	return img, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
