package metrics

import "mediadeck/internal/system"

// RecordHealth publishes a host health snapshot.
func RecordHealth(h system.HealthStatus) {
	HostCPUTemperature.Set(h.CPUTempC)
	HostDiskUsedPercent.Set(h.DiskUsedPct)
	HostMemoryUsedPercent.Set(h.MemUsedPct)
}
