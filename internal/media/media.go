// Package media provides centralized media type detection and the natural
// ordering used for display lists.
package media

import (
	"cmp"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Classification is the kind of media file.
type Classification int

const (
	Unknown Classification = iota
	Image
	Audio
	Video
)

func (c Classification) String() string {
	switch c {
	case Image:
		return "image"
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return "unknown"
	}
}

// HasDuration reports whether media of this kind plays over time.
func (c Classification) HasDuration() bool {
	return c == Audio || c == Video
}

// NeedsDisplay reports whether the kind must be rendered on a monitor.
func (c Classification) NeedsDisplay() bool {
	return c == Image || c == Video
}

// MarshalText lets the classification travel as its name in JSON.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (c *Classification) UnmarshalText(b []byte) error {
	v, err := ParseClassification(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseClassification is the inverse of String.
func ParseClassification(s string) (Classification, error) {
	switch strings.ToLower(s) {
	case "image":
		return Image, nil
	case "audio":
		return Audio, nil
	case "video":
		return Video, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown classification %q", s)
}

// Video file extensions.
var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".webm": true,
	".ts":   true,
	".m4v":  true,
	".hevc": true,
	".flv":  true,
	".wmv":  true,
	".mpg":  true,
	".mpeg": true,
}

// Image file extensions.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
	".tiff": true,
	".tif":  true,
}

// Audio file extensions.
var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".wma":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
}

// Detect returns the classification for a file path based on extension.
func Detect(path string) Classification {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case videoExts[ext]:
		return Video
	case imageExts[ext]:
		return Image
	case audioExts[ext]:
		return Audio
	}
	return Unknown
}

// IsSupported returns true if the file has a recognized media extension.
func IsSupported(path string) bool {
	return Detect(path) != Unknown
}

// File is one entry of a folder listing.
type File struct {
	Path           string
	LastModified   time.Time
	Classification Classification
}

// Key is the case-insensitive identity of a path within a listing.
func Key(path string) string {
	return strings.ToLower(filepath.Clean(path))
}

// DisplayName is the file name without its extension.
func DisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SortKey builds the natural ordering key for a display name. A leading run
// of digits is zero-padded to six places so "2 intro" sorts before "10 talk";
// the remainder follows after a single space.
func SortKey(name string) string {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return name
	}

	n, err := strconv.Atoi(name[:end])
	if err != nil {
		return name
	}

	rest := strings.TrimSpace(name[end:])
	return fmt.Sprintf("%06d %s", n, rest)
}

// Compare orders two display names naturally. When both start with a number
// the numbers compare as integers of any length, then the remainders
// case-insensitively; otherwise the lower-cased SortKeys decide.
func Compare(a, b string) int {
	na, ra := splitNumber(a)
	nb, rb := splitNumber(b)
	if na == "" || nb == "" {
		return strings.Compare(strings.ToLower(SortKey(a)), strings.ToLower(SortKey(b)))
	}
	if len(na) != len(nb) {
		return cmp.Compare(len(na), len(nb))
	}
	if c := strings.Compare(na, nb); c != 0 {
		return c
	}
	return strings.Compare(strings.ToLower(ra), strings.ToLower(rb))
}

// splitNumber returns the leading digits of name without leading zeros ("0"
// for all zeros) and the trimmed remainder. digits is empty when name does
// not start with a digit.
func splitNumber(name string) (digits, rest string) {
	end := 0
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", name
	}
	digits = strings.TrimLeft(name[:end], "0")
	if digits == "" {
		digits = "0"
	}
	return digits, strings.TrimSpace(name[end:])
}

// Less orders two display names by Compare.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}
