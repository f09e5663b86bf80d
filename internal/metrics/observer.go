package metrics

import (
	"mediadeck/internal/media"
	"mediadeck/internal/metadata"
	"mediadeck/internal/playback"
)

type queueObserver struct{}

// NewQueueObserver creates an observer that records metadata pipeline
// metrics.
func NewQueueObserver() metadata.Observer {
	return queueObserver{}
}

func (queueObserver) ObserveQueueDepth(depth int) {
	MetadataQueueDepth.Set(float64(depth))
}

func (queueObserver) ObserveProbe(class string, durationSeconds float64, err error) {
	ProbeDuration.WithLabelValues(class).Observe(durationSeconds)
	if err != nil {
		ProbeErrors.WithLabelValues(class).Inc()
	}
}

func (queueObserver) ObserveThumbnail(class string, durationSeconds float64, err error) {
	ThumbnailDuration.WithLabelValues(class).Observe(durationSeconds)
	if err != nil {
		ThumbnailErrors.WithLabelValues(class).Inc()
	}
}

type playbackObserver struct{}

// NewPlaybackObserver creates an observer that records coordinator metrics.
func NewPlaybackObserver() playback.Observer {
	return playbackObserver{}
}

func (playbackObserver) ObserveTransition(kind string, seconds float64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TransitionDuration.WithLabelValues(kind, result).Observe(seconds)
}

func (playbackObserver) ObserveRejected(reason string) {
	RejectedCommandsTotal.WithLabelValues(reason).Inc()
}

// RecordCatalog publishes per-classification item counts. Classes missing
// from counts are reset to zero.
func RecordCatalog(counts map[media.Classification]int) {
	for _, c := range []media.Classification{media.Image, media.Audio, media.Video} {
		CatalogItems.WithLabelValues(c.String()).Set(float64(counts[c]))
	}
}

// SetLoading records whether a catalog reload is running.
func SetLoading(loading bool) {
	if loading {
		CatalogLoading.Set(1)
		CatalogReloadsTotal.Inc()
		return
	}
	CatalogLoading.Set(0)
}
