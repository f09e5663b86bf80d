// Package system provides host checks for the playback machine: disk and
// memory headroom, thermal state, and the external tools mediadeck shells
// out to.
package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// ThermalZonePath is where Linux exposes the SoC temperature in millidegrees.
var ThermalZonePath = "/sys/class/thermal/thermal_zone0/temp"

// Tools lists the external programs mediadeck uses.
var Tools = []string{"vlc", "ffprobe", "ffmpeg", "xdotool"}

// ToolStatus reports whether an external program was found on PATH.
type ToolStatus struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Found bool   `json:"found"`
}

// HealthStatus represents the current system health snapshot.
type HealthStatus struct {
	DiskPath      string       `json:"disk_path"`
	DiskUsedPct   float64      `json:"disk_used_pct"`
	DiskFreeBytes uint64       `json:"disk_free_bytes"`
	MemUsedPct    float64      `json:"mem_used_pct"`
	MemAvailBytes uint64       `json:"mem_available_bytes"`
	Load1         float64      `json:"load1"`
	CPUTempC      float64      `json:"cpu_temp_c"`
	Throttled     bool         `json:"throttled"`
	Tools         []ToolStatus `json:"tools"`
	Timestamp     time.Time    `json:"timestamp"`
}

// MissingTools returns the names of tools that were not found.
func (h HealthStatus) MissingTools() []string {
	var missing []string
	for _, t := range h.Tools {
		if !t.Found {
			missing = append(missing, t.Name)
		}
	}
	return missing
}

// GetCPUTemp reads the thermal zone and returns the temperature in degrees
// Celsius.
func GetCPUTemp() (float64, error) {
	data, err := os.ReadFile(ThermalZonePath)
	if err != nil {
		return 0, fmt.Errorf("read cpu temp: %w", err)
	}
	return parseMilliCelsius(string(data))
}

func parseMilliCelsius(raw string) (float64, error) {
	milliC, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp: %w", err)
	}
	return milliC / 1000.0, nil
}

// GetDiskUsage returns the usage percentage and free bytes for the
// filesystem holding path (default "/").
func GetDiskUsage(ctx context.Context, path string) (usedPct float64, freeBytes uint64, err error) {
	if path == "" {
		path = "/"
	}
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("disk usage %s: %w", path, err)
	}
	return u.UsedPercent, u.Free, nil
}

// GetMemory returns the used percentage and available bytes of system memory.
func GetMemory(ctx context.Context) (usedPct float64, availBytes uint64, err error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("virtual memory: %w", err)
	}
	return v.UsedPercent, v.Available, nil
}

// IsThrottled asks vcgencmd whether the Raspberry Pi firmware has throttled
// the CPU because of temperature or power supply issues.
func IsThrottled() (bool, error) {
	out, err := exec.Command("vcgencmd", "get_throttled").Output()
	if err != nil {
		return false, fmt.Errorf("vcgencmd failed: %w", err)
	}
	return parseThrottled(string(out))
}

// parseThrottled reads "throttled=0x0" style output.
func parseThrottled(out string) (bool, error) {
	parts := strings.SplitN(strings.TrimSpace(out), "=", 2)
	if len(parts) < 2 {
		return false, fmt.Errorf("unexpected vcgencmd output")
	}
	val, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 64)
	if err != nil {
		return false, fmt.Errorf("parse throttle value: %w", err)
	}
	return val != 0, nil
}

// CheckTools looks up each program on PATH.
func CheckTools(names ...string) []ToolStatus {
	out := make([]ToolStatus, 0, len(names))
	for _, n := range names {
		st := ToolStatus{Name: n}
		if p, err := exec.LookPath(n); err == nil {
			st.Path = p
			st.Found = true
		}
		out = append(out, st)
	}
	return out
}

// RunHealthCheck performs a full system health snapshot. diskPath is the
// volume to report on, usually the media folder. Individual probe failures
// are logged and leave their fields zero.
func RunHealthCheck(ctx context.Context, diskPath string, logger hclog.Logger) HealthStatus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if diskPath == "" {
		diskPath = "/"
	}
	status := HealthStatus{
		DiskPath:  diskPath,
		Timestamp: time.Now(),
	}

	if temp, err := GetCPUTemp(); err == nil {
		status.CPUTempC = temp
	} else {
		logger.Debug("temp read error", "error", err)
	}

	if pct, free, err := GetDiskUsage(ctx, diskPath); err == nil {
		status.DiskUsedPct = pct
		status.DiskFreeBytes = free
	} else {
		logger.Warn("disk read error", "error", err)
	}

	if pct, avail, err := GetMemory(ctx); err == nil {
		status.MemUsedPct = pct
		status.MemAvailBytes = avail
	} else {
		logger.Warn("memory read error", "error", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		status.Load1 = avg.Load1
	} else {
		logger.Debug("load read error", "error", err)
	}

	if throttled, err := IsThrottled(); err == nil {
		status.Throttled = throttled
	} else {
		logger.Debug("throttle check error", "error", err)
	}

	status.Tools = CheckTools(Tools...)

	logger.Info("health",
		"temp_c", status.CPUTempC,
		"disk_pct", status.DiskUsedPct,
		"mem_pct", status.MemUsedPct,
		"throttled", status.Throttled,
		"missing_tools", status.MissingTools())

	return status
}

// EnsureDir creates a directory and all parents if it does not exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CleanOldFiles removes regular files not modified within maxAge from dir.
// It is used to trim thumbnails left behind by media that no longer exists.
func CleanOldFiles(dir string, maxAge time.Duration, logger hclog.Logger) (int, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > maxAge {
			fp := filepath.Join(dir, entry.Name())
			if err := os.Remove(fp); err == nil {
				removed++
				logger.Debug("cleaned old file", "path", fp)
			}
		}
	}

	return removed, nil
}
