// Package options holds the operator-facing settings, loaded from a YAML
// file and changed at runtime through the control API. Consumers subscribe
// to the individual fields they care about.
package options

import (
	"strings"
)

// Field names one setting. The values match the YAML and JSON keys.
type Field string

const (
	MediaFolder               Field = "media_folder"
	MaxItemCount              Field = "max_item_count"
	IncludeBlankScreenItem    Field = "include_blank_screen_item"
	PermanentBackdrop         Field = "permanent_backdrop"
	AllowVideoPause           Field = "allow_video_pause"
	AllowVideoPositionSeeking Field = "allow_video_position_seeking"
	UseInternalMediaTitles    Field = "use_internal_media_titles"
	MediaMonitorID            Field = "media_monitor_id"
	ThumbnailSize             Field = "thumbnail_size"
	LogLevel                  Field = "log_level"
)

// Fields lists every field in declaration order.
var Fields = []Field{
	MediaFolder,
	MaxItemCount,
	IncludeBlankScreenItem,
	PermanentBackdrop,
	AllowVideoPause,
	AllowVideoPositionSeeking,
	UseInternalMediaTitles,
	MediaMonitorID,
	ThumbnailSize,
	LogLevel,
}

const (
	DefaultMaxItemCount  = 200
	MaxMaxItemCount      = 1000
	DefaultThumbnailSize = 160
	MinThumbnailSize     = 32
	MaxThumbnailSize     = 640
)

// Options is the full settings value. It is passed around by value.
type Options struct {
	MediaFolder               string `yaml:"media_folder" json:"media_folder"`
	MaxItemCount              int    `yaml:"max_item_count" json:"max_item_count"`
	IncludeBlankScreenItem    bool   `yaml:"include_blank_screen_item" json:"include_blank_screen_item"`
	PermanentBackdrop         bool   `yaml:"permanent_backdrop" json:"permanent_backdrop"`
	AllowVideoPause           bool   `yaml:"allow_video_pause" json:"allow_video_pause"`
	AllowVideoPositionSeeking bool   `yaml:"allow_video_position_seeking" json:"allow_video_position_seeking"`
	UseInternalMediaTitles    bool   `yaml:"use_internal_media_titles" json:"use_internal_media_titles"`
	MediaMonitorID            string `yaml:"media_monitor_id" json:"media_monitor_id"`
	ThumbnailSize             int    `yaml:"thumbnail_size" json:"thumbnail_size"`
	LogLevel                  string `yaml:"log_level" json:"log_level"`
}

// Default returns the settings used when no file exists.
func Default() Options {
	return Options{
		MaxItemCount:           DefaultMaxItemCount,
		IncludeBlankScreenItem: true,
		AllowVideoPause:        true,
		ThumbnailSize:          DefaultThumbnailSize,
		LogLevel:               "info",
	}
}

// Sanitize clamps out-of-range values.
func (o Options) Sanitize() Options {
	switch {
	case o.MaxItemCount <= 0:
		o.MaxItemCount = DefaultMaxItemCount
	case o.MaxItemCount > MaxMaxItemCount:
		o.MaxItemCount = MaxMaxItemCount
	}

	switch {
	case o.ThumbnailSize <= 0:
		o.ThumbnailSize = DefaultThumbnailSize
	case o.ThumbnailSize < MinThumbnailSize:
		o.ThumbnailSize = MinThumbnailSize
	case o.ThumbnailSize > MaxThumbnailSize:
		o.ThumbnailSize = MaxThumbnailSize
	}

	o.MediaFolder = strings.TrimSpace(o.MediaFolder)
	o.MediaMonitorID = strings.TrimSpace(o.MediaMonitorID)
	o.LogLevel = strings.ToLower(strings.TrimSpace(o.LogLevel))
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	return o
}

// Diff lists the fields whose values differ between a and b.
func Diff(a, b Options) []Field {
	var out []Field
	add := func(f Field, changed bool) {
		if changed {
			out = append(out, f)
		}
	}
	add(MediaFolder, a.MediaFolder != b.MediaFolder)
	add(MaxItemCount, a.MaxItemCount != b.MaxItemCount)
	add(IncludeBlankScreenItem, a.IncludeBlankScreenItem != b.IncludeBlankScreenItem)
	add(PermanentBackdrop, a.PermanentBackdrop != b.PermanentBackdrop)
	add(AllowVideoPause, a.AllowVideoPause != b.AllowVideoPause)
	add(AllowVideoPositionSeeking, a.AllowVideoPositionSeeking != b.AllowVideoPositionSeeking)
	add(UseInternalMediaTitles, a.UseInternalMediaTitles != b.UseInternalMediaTitles)
	add(MediaMonitorID, a.MediaMonitorID != b.MediaMonitorID)
	add(ThumbnailSize, a.ThumbnailSize != b.ThumbnailSize)
	add(LogLevel, a.LogLevel != b.LogLevel)
	return out
}

// Patch is a partial update. Nil fields are left alone.
type Patch struct {
	MediaFolder               *string `json:"media_folder,omitempty"`
	MaxItemCount              *int    `json:"max_item_count,omitempty"`
	IncludeBlankScreenItem    *bool   `json:"include_blank_screen_item,omitempty"`
	PermanentBackdrop         *bool   `json:"permanent_backdrop,omitempty"`
	AllowVideoPause           *bool   `json:"allow_video_pause,omitempty"`
	AllowVideoPositionSeeking *bool   `json:"allow_video_position_seeking,omitempty"`
	UseInternalMediaTitles    *bool   `json:"use_internal_media_titles,omitempty"`
	MediaMonitorID            *string `json:"media_monitor_id,omitempty"`
	ThumbnailSize             *int    `json:"thumbnail_size,omitempty"`
	LogLevel                  *string `json:"log_level,omitempty"`
}

// Apply returns o with the patch's fields set.
func (p Patch) Apply(o Options) Options {
	if p.MediaFolder != nil {
		o.MediaFolder = *p.MediaFolder
	}
	if p.MaxItemCount != nil {
		o.MaxItemCount = *p.MaxItemCount
	}
	if p.IncludeBlankScreenItem != nil {
		o.IncludeBlankScreenItem = *p.IncludeBlankScreenItem
	}
	if p.PermanentBackdrop != nil {
		o.PermanentBackdrop = *p.PermanentBackdrop
	}
	if p.AllowVideoPause != nil {
		o.AllowVideoPause = *p.AllowVideoPause
	}
	if p.AllowVideoPositionSeeking != nil {
		o.AllowVideoPositionSeeking = *p.AllowVideoPositionSeeking
	}
	if p.UseInternalMediaTitles != nil {
		o.UseInternalMediaTitles = *p.UseInternalMediaTitles
	}
	if p.MediaMonitorID != nil {
		o.MediaMonitorID = *p.MediaMonitorID
	}
	if p.ThumbnailSize != nil {
		o.ThumbnailSize = *p.ThumbnailSize
	}
	if p.LogLevel != nil {
		o.LogLevel = *p.LogLevel
	}
	return o
}
