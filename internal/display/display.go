// Package display describes the monitors media can be shown on. A layout
// lists monitors in desktop pixel coordinates; the options name one of them
// as the audience display.
package display

import (
	"encoding/json"
	"fmt"
	"os"
)

// Monitor is one physical output.
type Monitor struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Primary bool   `json:"primary"`
}

// Layout is a named set of monitors.
type Layout struct {
	Name     string    `json:"name"`
	Monitors []Monitor `json:"monitors"`
}

// LoadFromFile reads a layout definition from a JSON file.
func LoadFromFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}

	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}

	return &l, nil
}

// Validate checks that the layout has at least one monitor, that IDs are
// unique and that sizes are positive.
func (l *Layout) Validate() error {
	if len(l.Monitors) == 0 {
		return fmt.Errorf("layout %q has no monitors", l.Name)
	}

	ids := make(map[string]bool)
	primaries := 0
	for _, m := range l.Monitors {
		if m.ID == "" {
			return fmt.Errorf("monitor missing id")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate monitor id: %s", m.ID)
		}
		ids[m.ID] = true

		if m.Width <= 0 || m.Height <= 0 {
			return fmt.Errorf("monitor %q has invalid dimensions: %dx%d", m.ID, m.Width, m.Height)
		}
		if m.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("layout %q has %d primary monitors", l.Name, primaries)
	}

	return nil
}

// Find returns the monitor with the given ID. An empty ID never matches:
// it means no display is selected.
func (l *Layout) Find(id string) (Monitor, bool) {
	if id == "" {
		return Monitor{}, false
	}
	for _, m := range l.Monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// IDs lists the monitor IDs in layout order.
func (l *Layout) IDs() []string {
	ids := make([]string, len(l.Monitors))
	for i, m := range l.Monitors {
		ids[i] = m.ID
	}
	return ids
}

// Single returns a one-monitor layout. This is the default for kiosk
// deployments where the whole screen belongs to the audience.
func Single(width, height int) *Layout {
	return &Layout{
		Name: "single",
		Monitors: []Monitor{
			{ID: "main", Name: "Main", Width: width, Height: height, Primary: true},
		},
	}
}

// Dual returns an operator monitor with an audience monitor to its right.
func Dual(width, height int) *Layout {
	return &Layout{
		Name: "dual",
		Monitors: []Monitor{
			{ID: "operator", Name: "Operator", Width: width, Height: height, Primary: true},
			{ID: "audience", Name: "Audience", X: width, Width: width, Height: height},
		},
	}
}
