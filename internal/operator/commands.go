package operator

import (
	"context"
	"fmt"
	"os"
	"time"

	"mediadeck/internal/api"
	"mediadeck/internal/catalog"
	"mediadeck/internal/media"
	"mediadeck/internal/playback"

	"github.com/google/uuid"
)

// Items returns a snapshot of the catalog in display order.
func (o *Operator) Items(ctx context.Context) ([]catalog.Snapshot, error) {
	var out []catalog.Snapshot
	err := o.loop.Call(ctx, func() error {
		items := o.cat.Items()
		out = make([]catalog.Snapshot, 0, len(items))
		for _, it := range items {
			out = append(out, it.Snapshot())
		}
		return nil
	})
	return out, err
}

// Item returns a snapshot of one item.
func (o *Operator) Item(ctx context.Context, id uuid.UUID) (catalog.Snapshot, error) {
	var out catalog.Snapshot
	err := o.loop.Call(ctx, func() error {
		it, ok := o.cat.Get(id)
		if !ok {
			return fmt.Errorf("item %s: %w", id, catalog.ErrNotFound)
		}
		out = it.Snapshot()
		return nil
	})
	return out, err
}

// ItemByPath returns a snapshot of the item showing path. The match ignores
// case.
func (o *Operator) ItemByPath(ctx context.Context, path string) (catalog.Snapshot, error) {
	var out catalog.Snapshot
	err := o.loop.Call(ctx, func() error {
		it, ok := o.cat.FindByPath(path)
		if !ok {
			return fmt.Errorf("item %s: %w", path, catalog.ErrNotFound)
		}
		out = it.Snapshot()
		return nil
	})
	return out, err
}

// Thumbnail returns the item's JPEG thumbnail.
func (o *Operator) Thumbnail(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var thumb []byte
	err := o.loop.Call(ctx, func() error {
		it, ok := o.cat.Get(id)
		if !ok {
			return fmt.Errorf("thumbnail %s: %w", id, catalog.ErrNotFound)
		}
		thumb = it.Thumbnail()
		if len(thumb) == 0 {
			return fmt.Errorf("thumbnail %q: %w", it.Name, ErrNoThumbnail)
		}
		return nil
	})
	return thumb, err
}

// Start shows an item on the audience display.
func (o *Operator) Start(ctx context.Context, id uuid.UUID) error {
	return o.loop.Call(ctx, func() error { return o.coord.RequestStart(id) })
}

// Stop takes an item off the display.
func (o *Operator) Stop(ctx context.Context, id uuid.UUID) error {
	return o.loop.Call(ctx, func() error { return o.coord.RequestStop(id) })
}

// Pause toggles pause on the playing item.
func (o *Operator) Pause(ctx context.Context, id uuid.UUID) error {
	return o.loop.Call(ctx, func() error { return o.coord.RequestPause(id) })
}

// Seek sets an item's playback position.
func (o *Operator) Seek(ctx context.Context, id uuid.UUID, pos time.Duration) error {
	return o.loop.Call(ctx, func() error { return o.coord.RequestSeek(id, pos) })
}

// Hide hides an item from the operator's list.
func (o *Operator) Hide(ctx context.Context, id uuid.UUID) error {
	return o.loop.Call(ctx, func() error { return o.cat.Hide(id) })
}

// Unhide shows a hidden item again.
func (o *Operator) Unhide(ctx context.Context, id uuid.UUID) error {
	return o.loop.Call(ctx, func() error { return o.cat.Unhide(id) })
}

// UnhideAll shows every item.
func (o *Operator) UnhideAll(ctx context.Context) error {
	return o.loop.Call(ctx, func() error {
		o.cat.UnhideAll()
		return nil
	})
}

// Freeze sets whether a video pauses on its last frame.
func (o *Operator) Freeze(ctx context.Context, id uuid.UUID, on bool) error {
	return o.loop.Call(ctx, func() error { return o.cat.SetFrozen(id, on) })
}

// Delete removes an item's file from the media folder. The item must not be
// on screen. The catalog drops it on the next reload.
func (o *Operator) Delete(ctx context.Context, id uuid.UUID) error {
	var path string
	err := o.loop.Call(ctx, func() error {
		it, ok := o.cat.Get(id)
		if !ok {
			return fmt.Errorf("delete %s: %w", id, catalog.ErrNotFound)
		}
		if it.BlankScreen {
			return fmt.Errorf("delete %q: %w", it.Name, playback.ErrNotAllowed)
		}
		if it.Active || it.Changing {
			return fmt.Errorf("delete %q: item is on screen: %w", it.Name, playback.ErrNotAllowed)
		}
		path = it.Path()
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	o.log.Info("deleted media file", "path", path)
	o.loop.Post(o.reload)
	return nil
}

// Reload rescans the media folder.
func (o *Operator) Reload(ctx context.Context) (int, error) {
	var n int
	err := o.loop.Call(ctx, func() error {
		var err error
		n, err = o.cat.Reload()
		return err
	})
	return n, err
}

// Status reports what the player is doing.
func (o *Operator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := o.loop.Call(ctx, func() error {
		st = Status{
			Items:           o.cat.Len(),
			Hidden:          o.cat.Hidden().Len(),
			Frozen:          o.cat.Frozen().Len(),
			Loading:         o.loading,
			Changing:        o.coord.IsChanging(),
			MonitorSelected: o.coord.MonitorSelected(),
			MonitorID:       o.opts.Current().MediaMonitorID,
			QueueDepth:      o.queue.Len(),
		}
		if st.Changing {
			st.ChangingID = o.coord.ChangingID().String()
		}
		if o.watcher != nil {
			st.MediaFolder = o.watcher.Dir()
			st.FolderFiles = len(o.watcher.Files())
		}
		if cur := o.coord.Current(); cur != nil {
			snap := cur.Snapshot()
			st.Current = &snap
			if cur.Classification() == media.Image {
				if next := o.cat.NextImage(cur.ID); next != nil {
					ns := next.Snapshot()
					st.NextImage = &ns
				}
			}
		}
		return nil
	})
	return st, err
}

// Heartbeat adapts Status for the heartbeat client.
func (o *Operator) Heartbeat(ctx context.Context) (api.PlayerStatus, error) {
	st, err := o.Status(ctx)
	if err != nil {
		return api.PlayerStatus{}, err
	}
	ps := api.PlayerStatus{
		Items:    st.Items,
		Hidden:   st.Hidden,
		Loading:  st.Loading,
		Changing: st.Changing,
	}
	if st.Current != nil {
		ps.Current = st.Current.Name
		ps.Paused = st.Current.Paused
	}
	return ps, nil
}
