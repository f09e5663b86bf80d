package operator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mediadeck/internal/catalog"
	"mediadeck/internal/display"
	"mediadeck/internal/media"
	"mediadeck/internal/metadata"
	"mediadeck/internal/options"
	"mediadeck/internal/playback"
	"mediadeck/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type fakeWatcher struct {
	dir      string
	onChange func()

	mu      sync.Mutex
	files   []media.File
	started bool
	stopped bool
	stopCh  chan struct{}
	once    sync.Once
}

func (w *fakeWatcher) ListMediaFiles() ([]media.File, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]media.File(nil), w.files...), nil
}

func (w *fakeWatcher) Dir() string { return w.dir }

func (w *fakeWatcher) Files() []media.File {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []media.File
	for _, f := range w.files {
		if f.Classification != media.Unknown {
			out = append(out, f)
		}
	}
	return out
}

func (w *fakeWatcher) Start() error {
	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	<-w.stopCh
	return nil
}

func (w *fakeWatcher) Stop() {
	w.once.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		close(w.stopCh)
	})
}

func (w *fakeWatcher) set(names ...string) {
	var files []media.File
	for _, n := range names {
		p := filepath.Join(w.dir, n)
		files = append(files, media.File{Path: p, Classification: media.Detect(p)})
	}
	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
}

func (w *fakeWatcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

type watchers struct {
	mu    sync.Mutex
	byDir map[string]*fakeWatcher
	seed  map[string][]string
}

func (ws *watchers) watch(dir string, onChange func()) (FolderWatcher, error) {
	w := &fakeWatcher{dir: dir, onChange: onChange, stopCh: make(chan struct{})}
	w.set(ws.seed[dir]...)
	ws.mu.Lock()
	ws.byDir[dir] = w
	ws.mu.Unlock()
	return w, nil
}

func (ws *watchers) get(dir string) *fakeWatcher {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.byDir[dir]
}

type fakeSurface struct {
	mu      sync.Mutex
	calls   []string
	monitor display.Monitor
	gate    chan struct{}
}

func (s *fakeSurface) record(op string, m playback.Media) error {
	s.mu.Lock()
	gate := s.gate
	s.calls = append(s.calls, op+":"+m.Name)
	s.mu.Unlock()
	if gate != nil && op == "start" {
		<-gate
	}
	return nil
}

func (s *fakeSurface) Start(_ context.Context, m playback.Media) error  { return s.record("start", m) }
func (s *fakeSurface) Stop(_ context.Context, m playback.Media) error   { return s.record("stop", m) }
func (s *fakeSurface) Pause(_ context.Context, m playback.Media) error  { return s.record("pause", m) }
func (s *fakeSurface) Resume(_ context.Context, m playback.Media) error { return s.record("resume", m) }
func (s *fakeSurface) Seek(_ context.Context, m playback.Media) error   { return s.record("seek", m) }

func (s *fakeSurface) SetMonitor(mon display.Monitor) error {
	s.mu.Lock()
	s.monitor = mon
	s.mu.Unlock()
	return nil
}

func (s *fakeSurface) has(call string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == call {
			return true
		}
	}
	return false
}

type fakeThumbs struct {
	mu     sync.Mutex
	size   int
	purges int
	subs   []func()
}

func (f *fakeThumbs) SetSize(n int) {
	f.mu.Lock()
	f.size = n
	f.mu.Unlock()
}

func (f *fakeThumbs) Purge() error {
	f.mu.Lock()
	f.purges++
	subs := append([]func(){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn()
	}
	return nil
}

func (f *fakeThumbs) OnPurged(fn func()) {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

type nopProber struct{}

func (nopProber) Probe(context.Context, string, media.Classification) (metadata.Info, error) {
	return metadata.Info{}, nil
}

type nopThumbnailer struct{}

func (nopThumbnailer) Generate(context.Context, string, media.Classification) ([]byte, error) {
	return nil, nil
}

type fixture struct {
	op       *Operator
	opts     *options.Service
	surface  *fakeSurface
	thumbs   *fakeThumbs
	queue    *metadata.Queue
	watchers *watchers
	dir      string
	cancel   context.CancelFunc
}

func newFixture(t *testing.T, st *store.Store, files ...string) *fixture {
	t.Helper()
	dir := t.TempDir()

	opts := options.NewService("", nil)
	o := opts.Current()
	o.MediaFolder = dir
	o.MediaMonitorID = "audience"
	o.IncludeBlankScreenItem = false
	opts.Update(o)

	f := &fixture{
		opts:     opts,
		surface:  &fakeSurface{},
		thumbs:   &fakeThumbs{},
		queue:    metadata.NewQueue(nopProber{}, nopThumbnailer{}),
		watchers: &watchers{byDir: map[string]*fakeWatcher{}, seed: map[string][]string{dir: files}},
		dir:      dir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)

	op, err := New(ctx, Deps{
		Options:    opts,
		Layout:     display.Dual(1920, 1080),
		Surface:    f.surface,
		Queue:      f.queue,
		Thumbnails: f.thumbs,
		State:      st,
		Watch:      f.watchers.watch,
	})
	require.NoError(t, err)
	f.op = op

	want := 0
	for _, n := range files {
		if media.IsSupported(n) {
			want++
		}
	}

	go op.Run(ctx)
	require.Eventually(t, func() bool {
		st, err := op.Status(ctx)
		return err == nil && st.Items == want && !st.Loading
	}, waitFor, tick)
	return f
}

func (f *fixture) find(t *testing.T, name string) catalog.Snapshot {
	t.Helper()
	items, err := f.op.Items(context.Background())
	require.NoError(t, err)
	for _, it := range items {
		if it.Name == name {
			return it
		}
	}
	t.Fatalf("item %q not found", name)
	return catalog.Snapshot{}
}

func (f *fixture) item(id uuid.UUID) catalog.Snapshot {
	s, _ := f.op.Item(context.Background(), id)
	return s
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	assert.Error(t, err)
}

func TestLoadsCatalogAndSelectsMonitor(t *testing.T) {
	f := newFixture(t, nil, "2 b.mp4", "1 a.jpg", "notes.txt")

	items, err := f.op.Items(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1 a", items[0].Name)
	assert.Equal(t, "2 b", items[1].Name)

	st, err := f.op.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.MonitorSelected)
	assert.Equal(t, f.dir, st.MediaFolder)
	assert.Equal(t, 2, st.FolderFiles)
	assert.Equal(t, "audience", f.surface.monitor.ID)
	assert.Equal(t, 2, f.queue.Len())
}

func TestItemByPath(t *testing.T) {
	f := newFixture(t, nil, "Clip.mp4")
	ctx := context.Background()

	it, err := f.op.ItemByPath(ctx, filepath.Join(f.dir, "clip.MP4"))
	require.NoError(t, err)
	assert.Equal(t, "Clip", it.Name)

	_, err = f.op.ItemByPath(ctx, filepath.Join(f.dir, "other.mp4"))
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStatusReportsNextImage(t *testing.T) {
	f := newFixture(t, nil, "1 a.jpg", "2 b.mp4", "3 c.png")
	ctx := context.Background()
	a := f.find(t, "1 a")

	require.NoError(t, f.op.Start(ctx, a.ID))
	require.Eventually(t, func() bool {
		s := f.item(a.ID)
		return s.Active && !s.Changing
	}, waitFor, tick)

	st, err := f.op.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.NextImage)
	assert.Equal(t, "3 c", st.NextImage.Name)
}

func TestStartStopAndCompletion(t *testing.T) {
	f := newFixture(t, nil, "clip.mp4")
	ctx := context.Background()
	clip := f.find(t, "clip")

	require.NoError(t, f.op.Start(ctx, clip.ID))
	require.Eventually(t, func() bool {
		s := f.item(clip.ID)
		return s.Active && !s.Changing
	}, waitFor, tick)

	st, err := f.op.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.Current)
	assert.Equal(t, "clip", st.Current.Name)

	hb, err := f.op.Heartbeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "clip", hb.Current)

	f.op.PositionChanged(3 * time.Second)
	require.Eventually(t, func() bool { return f.item(clip.ID).Position == 3*time.Second }, waitFor, tick)

	f.op.Completed()
	require.Eventually(t, func() bool {
		s := f.item(clip.ID)
		return !s.Active && !s.Changing && s.Position == 0
	}, waitFor, tick)
	assert.True(t, f.surface.has("stop:clip"))
}

func TestUpdateOptionsBusyDuringTransition(t *testing.T) {
	f := newFixture(t, nil, "clip.mp4")
	ctx := context.Background()
	clip := f.find(t, "clip")

	gate := make(chan struct{})
	f.surface.mu.Lock()
	f.surface.gate = gate
	f.surface.mu.Unlock()

	require.NoError(t, f.op.Start(ctx, clip.ID))

	n := 5
	_, err := f.op.UpdateOptions(ctx, options.Patch{MaxItemCount: &n}, false)
	assert.ErrorIs(t, err, playback.ErrBusy)

	close(gate)
	require.Eventually(t, func() bool { return !f.item(clip.ID).Changing }, waitFor, tick)

	changed, err := f.op.UpdateOptions(ctx, options.Patch{MaxItemCount: &n}, false)
	require.NoError(t, err)
	assert.Equal(t, []options.Field{options.MaxItemCount}, changed)
}

func TestApplyOptionsBusyDuringTransition(t *testing.T) {
	f := newFixture(t, nil, "clip.mp4", "a.jpg")
	ctx := context.Background()
	clip := f.find(t, "clip")

	gate := make(chan struct{})
	f.surface.mu.Lock()
	f.surface.gate = gate
	f.surface.mu.Unlock()

	require.NoError(t, f.op.Start(ctx, clip.ID))

	next := f.opts.Current()
	next.MaxItemCount = 1
	_, err := f.op.ApplyOptions(ctx, next)
	assert.ErrorIs(t, err, playback.ErrBusy)
	assert.NotEqual(t, 1, f.opts.Current().MaxItemCount)

	close(gate)
	require.Eventually(t, func() bool { return !f.item(clip.ID).Changing }, waitFor, tick)

	changed, err := f.op.ApplyOptions(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, []options.Field{options.MaxItemCount}, changed)
}

func TestMaxItemCountReloads(t *testing.T) {
	f := newFixture(t, nil, "a.jpg", "b.jpg", "c.jpg")
	ctx := context.Background()

	n := 2
	_, err := f.op.UpdateOptions(ctx, options.Patch{MaxItemCount: &n}, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items, _ := f.op.Items(ctx)
		return len(items) == 2
	}, waitFor, tick)

	st, err := f.op.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.FolderFiles)
}

func TestBlankScreenStoppedWhenDisabled(t *testing.T) {
	f := newFixture(t, nil, "a.jpg")
	ctx := context.Background()

	on := true
	_, err := f.op.UpdateOptions(ctx, options.Patch{IncludeBlankScreenItem: &on}, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items, _ := f.op.Items(ctx)
		return len(items) == 2 && items[0].BlankScreen
	}, waitFor, tick)

	blank := f.find(t, catalog.BlankScreenName)
	require.NoError(t, f.op.Start(ctx, blank.ID))
	require.Eventually(t, func() bool {
		s := f.item(blank.ID)
		return s.Active && !s.Changing
	}, waitFor, tick)

	backdrop := true
	_, err = f.op.UpdateOptions(ctx, options.Patch{PermanentBackdrop: &backdrop}, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		items, _ := f.op.Items(ctx)
		return len(items) == 1 && !items[0].BlankScreen
	}, waitFor, tick)
	require.Eventually(t, func() bool { return f.surface.has("stop:" + catalog.BlankScreenName) }, waitFor, tick)
}

func TestThumbnailSizePurgesAndRequeues(t *testing.T) {
	f := newFixture(t, nil, "a.jpg", "b.jpg")
	before := f.queue.Len()

	size := 240
	_, err := f.op.UpdateOptions(context.Background(), options.Patch{ThumbnailSize: &size}, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.queue.Len() == before+2 }, waitFor, tick)
	f.thumbs.mu.Lock()
	defer f.thumbs.mu.Unlock()
	assert.Equal(t, 240, f.thumbs.size)
	assert.Equal(t, 1, f.thumbs.purges)
}

func TestMonitorChange(t *testing.T) {
	f := newFixture(t, nil, "a.jpg")
	ctx := context.Background()

	missing := "projector"
	_, err := f.op.UpdateOptions(ctx, options.Patch{MediaMonitorID: &missing}, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, _ := f.op.Status(ctx)
		return !st.MonitorSelected
	}, waitFor, tick)

	a := f.find(t, "a")
	assert.False(t, a.PlayEnabled)
	assert.ErrorIs(t, f.op.Start(ctx, a.ID), playback.ErrNotAllowed)

	op := "operator"
	_, err = f.op.UpdateOptions(ctx, options.Patch{MediaMonitorID: &op}, false)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, _ := f.op.Status(ctx)
		return st.MonitorSelected
	}, waitFor, tick)
	assert.Equal(t, "operator", f.surface.monitor.ID)
}

func TestFolderChangeReloads(t *testing.T) {
	f := newFixture(t, nil, "a.jpg")
	w := f.watchers.get(f.dir)

	w.set("a.jpg", "b.mp3")
	w.onChange()

	require.Eventually(t, func() bool {
		items, _ := f.op.Items(context.Background())
		return len(items) == 2
	}, waitFor, tick)
}

func TestMediaFolderRetargets(t *testing.T) {
	f := newFixture(t, nil, "a.jpg")
	other := t.TempDir()
	f.watchers.mu.Lock()
	f.watchers.seed[other] = []string{"x.mp4", "y.mp4", "z.mp4"}
	f.watchers.mu.Unlock()

	_, err := f.op.UpdateOptions(context.Background(), options.Patch{MediaFolder: &other}, false)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := f.op.Status(context.Background())
		return st.MediaFolder == other && st.Items == 3
	}, waitFor, tick)
	assert.True(t, f.watchers.get(f.dir).isStopped())
}

func TestRemovedActiveItemIsStopped(t *testing.T) {
	f := newFixture(t, nil, "clip.mp4", "a.jpg")
	ctx := context.Background()
	clip := f.find(t, "clip")

	require.NoError(t, f.op.Start(ctx, clip.ID))
	require.Eventually(t, func() bool { return !f.item(clip.ID).Changing }, waitFor, tick)

	w := f.watchers.get(f.dir)
	w.set("a.jpg")
	w.onChange()

	require.Eventually(t, func() bool { return f.surface.has("stop:clip") }, waitFor, tick)
	_, err := f.op.Item(ctx, clip.ID)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, nil, "a.jpg", "b.jpg")
	ctx := context.Background()
	for _, n := range []string{"a.jpg", "b.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(f.dir, n), []byte("x"), 0644))
	}
	a, b := f.find(t, "a"), f.find(t, "b")

	require.NoError(t, f.op.Start(ctx, b.ID))
	require.Eventually(t, func() bool { return !f.item(b.ID).Changing }, waitFor, tick)
	assert.ErrorIs(t, f.op.Delete(ctx, b.ID), playback.ErrNotAllowed)

	require.NoError(t, f.op.Delete(ctx, a.ID))
	_, err := os.Stat(filepath.Join(f.dir, "a.jpg"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, f.op.Delete(ctx, uuid.New()), catalog.ErrNotFound)
}

func TestThumbnailNotReady(t *testing.T) {
	f := newFixture(t, nil, "a.jpg")
	a := f.find(t, "a")
	_, err := f.op.Thumbnail(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrNoThumbnail)
}

func TestHiddenAndFrozenPersisted(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer st.Close()

	f := newFixture(t, st, "a.jpg", "clip.mp4")
	a, clip := f.find(t, "a"), f.find(t, "clip")

	require.NoError(t, f.op.Hide(ctx, a.ID))
	require.NoError(t, f.op.Freeze(ctx, clip.ID, true))
	assert.ErrorIs(t, f.op.Freeze(ctx, a.ID, true), catalog.ErrNotVideo)

	hidden, err := st.Load(ctx, store.Hidden)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.dir, "a.jpg")}, hidden)
	frozen, err := st.Load(ctx, store.Frozen)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.dir, "clip.mp4")}, frozen)

	require.NoError(t, f.op.UnhideAll(ctx))
	hidden, err = st.Load(ctx, store.Hidden)
	require.NoError(t, err)
	assert.Empty(t, hidden)
	assert.True(t, f.item(a.ID).Visible)
}

func TestSeededHiddenApplied(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, ":memory:", nil)
	require.NoError(t, err)
	defer st.Close()

	// The fixture's folder is only known after it is created, so seed by
	// hiding through one operator and reading through a second.
	f := newFixture(t, st, "a.jpg")
	a := f.find(t, "a")
	require.NoError(t, f.op.Hide(ctx, a.ID))
	f.cancel()

	dir := f.dir
	opts := options.NewService("", nil)
	o := opts.Current()
	o.MediaFolder = dir
	o.IncludeBlankScreenItem = false
	opts.Update(o)
	ws := &watchers{byDir: map[string]*fakeWatcher{}, seed: map[string][]string{dir: {"a.jpg"}}}

	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()
	op, err := New(ctx2, Deps{
		Options:    opts,
		Surface:    &fakeSurface{},
		Queue:      metadata.NewQueue(nopProber{}, nopThumbnailer{}),
		Thumbnails: &fakeThumbs{},
		State:      st,
		Watch:      ws.watch,
	})
	require.NoError(t, err)
	go op.Run(ctx2)

	require.Eventually(t, func() bool {
		items, _ := op.Items(ctx2)
		return len(items) == 1 && !items[0].Visible
	}, waitFor, tick)
}
