package catalog

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

const blankScreenFile = "blank-screen.png"

// EnsureBlankScreenImage writes the black backdrop shown by the blank-screen
// item into dir, unless it is already there, and returns its path.
func EnsureBlankScreenImage(dir string) (string, error) {
	path := filepath.Join(dir, blankScreenFile)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	img := imaging.New(1920, 1080, color.Black)
	if err := imaging.Save(img, path); err != nil {
		return "", fmt.Errorf("write blank screen image: %w", err)
	}
	return path, nil
}
