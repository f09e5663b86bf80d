package operator

import (
	"context"
	"fmt"

	"mediadeck/internal/logging"
	"mediadeck/internal/options"
	"mediadeck/internal/playback"
)

// onLoop runs an options handler on the operator loop.
func (o *Operator) onLoop(fn func(options.Options)) options.Handler {
	return func(opts options.Options) {
		o.loop.Post(func() { fn(opts) })
	}
}

func (o *Operator) subscribe() {
	o.opts.Subscribe(options.AllowVideoPause, o.onLoop(o.applySettings))
	o.opts.Subscribe(options.AllowVideoPositionSeeking, o.onLoop(o.applySettings))
	o.opts.Subscribe(options.UseInternalMediaTitles, o.onLoop(o.applyAndReload))
	o.opts.Subscribe(options.MaxItemCount, o.onLoop(o.applyAndReload))
	o.opts.Subscribe(options.IncludeBlankScreenItem, o.onLoop(o.blankScreenChanged))
	o.opts.Subscribe(options.PermanentBackdrop, o.onLoop(o.blankScreenChanged))
	o.opts.Subscribe(options.MediaMonitorID, o.onLoop(o.monitorChanged))
	o.opts.Subscribe(options.MediaFolder, o.onLoop(func(opts options.Options) {
		o.retarget(opts.MediaFolder)
	}))
	o.opts.Subscribe(options.ThumbnailSize, o.thumbnailSizeChanged)
	o.opts.Subscribe(options.LogLevel, func(opts options.Options) {
		logging.SetLevel(opts.LogLevel)
	})
}

func (o *Operator) applySettings(opts options.Options) {
	o.cat.ApplySettings(settingsFrom(opts))
}

func (o *Operator) applyAndReload(opts options.Options) {
	o.applySettings(opts)
	o.reload()
}

// blankScreenChanged takes the blank screen off the display before the
// reload drops it.
func (o *Operator) blankScreenChanged(opts options.Options) {
	s := settingsFrom(opts)
	wanted := s.IncludeBlankScreen && !s.PermanentBackdrop
	if b := o.cat.BlankScreen(); b != nil && b.Active && !wanted {
		if err := o.coord.RequestStop(b.ID); err != nil {
			o.log.Warn("could not stop blank screen", "error", err)
		}
	}
	o.applyAndReload(opts)
}

func (o *Operator) monitorChanged(opts options.Options) {
	o.coord.SetMonitorSelected(o.configureMonitor(opts.MediaMonitorID))
}

// thumbnailSizeChanged resizes and purges the cache. The purge notifies
// OnPurged, which re-enqueues the catalog.
func (o *Operator) thumbnailSizeChanged(opts options.Options) {
	o.thumbs.SetSize(opts.ThumbnailSize)
	go func() {
		if err := o.thumbs.Purge(); err != nil {
			o.log.Error("thumbnail purge failed", "error", err)
		}
	}()
}

// Options returns the current options.
func (o *Operator) Options() options.Options {
	return o.opts.Current()
}

// UpdateOptions applies a partial options change. It is refused while a
// playback transition is in flight. With persist the options file is
// rewritten afterwards.
func (o *Operator) UpdateOptions(ctx context.Context, p options.Patch, persist bool) ([]options.Field, error) {
	changed, err := o.guardedUpdate(ctx, "update options", func() []options.Field {
		return o.opts.Apply(p)
	})
	if err != nil {
		return nil, err
	}
	if persist {
		if err := o.opts.Save(); err != nil {
			return changed, fmt.Errorf("save options: %w", err)
		}
	}
	return changed, nil
}

// ApplyOptions installs options read from the options file, under the same
// rule as UpdateOptions.
func (o *Operator) ApplyOptions(ctx context.Context, next options.Options) ([]options.Field, error) {
	return o.guardedUpdate(ctx, "apply options file", func() []options.Field {
		return o.opts.Update(next)
	})
}

func (o *Operator) guardedUpdate(ctx context.Context, op string, fn func() []options.Field) ([]options.Field, error) {
	var changed []options.Field
	err := o.loop.Call(ctx, func() error {
		if o.coord.IsChanging() {
			return fmt.Errorf("%s: %w", op, playback.ErrBusy)
		}
		changed = fn()
		return nil
	})
	return changed, err
}
