package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediadeck/internal/media"

	"github.com/dhowden/tag"
	"github.com/hashicorp/go-hclog"
)

// FFProbe reads durations with ffprobe and audio titles from embedded tags.
type FFProbe struct {
	bin string
	log hclog.Logger
}

// NewFFProbe locates ffprobe on PATH. A missing binary is not an error here:
// every probe of timed media then fails and items degrade to zero duration.
func NewFFProbe(logger hclog.Logger) *FFProbe {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	bin, err := exec.LookPath("ffprobe")
	if err != nil {
		logger.Warn("ffprobe not found, durations unavailable", "error", err)
	}
	return &FFProbe{bin: bin, log: logger}
}

type ffprobeOutput struct {
	Format struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

// Probe returns the title and duration of path. Images have neither.
func (p *FFProbe) Probe(ctx context.Context, path string, class media.Classification) (Info, error) {
	var info Info
	if !class.HasDuration() {
		return info, nil
	}

	if class == media.Audio {
		if title, err := readTagTitle(path); err == nil {
			info.Title = title
		} else {
			p.log.Debug("no tag title", "path", path, "error", err)
		}
	}

	if p.bin == "" {
		return info, fmt.Errorf("%w: ffprobe not available", ErrProbe)
	}

	cmd := exec.CommandContext(ctx, p.bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return info, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrProbe, path, err, strings.TrimSpace(stderr.String()))
	}

	parsed, err := parseFFProbe(stdout.Bytes())
	if err != nil {
		return info, fmt.Errorf("%w: %s: %v", ErrProbe, path, err)
	}
	if info.Title == "" {
		info.Title = parsed.Title
	}
	info.Duration = parsed.Duration
	return info, nil
}

// parseFFProbe extracts duration and title from ffprobe's JSON output.
func parseFFProbe(data []byte) (Info, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info Info
	if out.Format.Duration != "" {
		secs, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return Info{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		info.Duration = time.Duration(secs * float64(time.Second))
	}

	for k, v := range out.Format.Tags {
		if strings.EqualFold(k, "title") {
			info.Title = strings.TrimSpace(v)
			break
		}
	}
	return info, nil
}

func readTagTitle(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(m.Title()), nil
}

// readTagPicture returns embedded cover art, if any.
func readTagPicture(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, fmt.Errorf("no embedded picture")
	}
	return pic.Data, nil
}
