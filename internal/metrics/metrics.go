// Package metrics declares the Prometheus collectors for mediadeck and the
// observers that feed them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadeck_http_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediadeck_http_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Metadata pipeline metrics
var (
	MetadataQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadeck_metadata_queue_depth",
			Help: "Number of items waiting for metadata",
		},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediadeck_probe_duration_seconds",
			Help:    "Time spent reading duration and title of a media file",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"class"},
	)

	ProbeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadeck_probe_errors_total",
			Help: "Total number of failed metadata probes",
		},
		[]string{"class"},
	)

	ThumbnailDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediadeck_thumbnail_duration_seconds",
			Help:    "Time spent producing a thumbnail, including cache hits",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"class"},
	)

	ThumbnailErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadeck_thumbnail_errors_total",
			Help: "Total number of failed thumbnails",
		},
		[]string{"class"},
	)
)

// Catalog metrics
var (
	CatalogItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediadeck_catalog_items",
			Help: "Number of catalog items by classification",
		},
		[]string{"class"},
	)

	CatalogLoading = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadeck_catalog_loading",
			Help: "Whether the catalog is reloading (1 = loading, 0 = idle)",
		},
	)

	CatalogReloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediadeck_catalog_reloads_total",
			Help: "Total number of catalog reloads",
		},
	)
)

// Playback metrics
var (
	TransitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediadeck_transition_duration_seconds",
			Help:    "Time the playback surface took to complete a transition",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"kind", "result"},
	)

	RejectedCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediadeck_rejected_commands_total",
			Help: "Total number of playback commands refused by the coordinator",
		},
		[]string{"reason"},
	)
)

// Host metrics
var (
	HostCPUTemperature = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadeck_host_cpu_temperature_celsius",
			Help: "CPU temperature reported by the thermal zone",
		},
	)

	HostDiskUsedPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadeck_host_disk_used_percent",
			Help: "Used space on the media volume",
		},
	)

	HostMemoryUsedPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediadeck_host_memory_used_percent",
			Help: "Used system memory",
		},
	)
)
