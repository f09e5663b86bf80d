package catalog

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mediadeck/internal/media"
	"mediadeck/internal/metadata"

	_ "image/png"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeLister struct {
	files []media.File
	err   error
}

func (l *fakeLister) ListMediaFiles() ([]media.File, error) {
	if l.err != nil {
		return nil, l.err
	}
	return append([]media.File(nil), l.files...), nil
}

func (l *fakeLister) set(names ...string) {
	l.files = l.files[:0]
	for _, n := range names {
		l.files = append(l.files, mediaFile(n))
	}
}

func mediaFile(name string) media.File {
	p := "/media/" + name
	return media.File{Path: p, LastModified: baseTime, Classification: media.Detect(p)}
}

type fakeQueue struct {
	added []metadata.Target
}

func (q *fakeQueue) Add(t metadata.Target) bool {
	q.added = append(q.added, t)
	return true
}

func (q *fakeQueue) count(t metadata.Target) int {
	n := 0
	for _, a := range q.added {
		if a == t {
			n++
		}
	}
	return n
}

type recordingListener struct {
	events  []string
	removed []*Item
}

func (r *recordingListener) LoadingStarted() { r.events = append(r.events, "started") }
func (r *recordingListener) LoadingFinished(n int) {
	r.events = append(r.events, fmt.Sprintf("finished:%d", n))
}
func (r *recordingListener) ItemsRemoved(items []*Item) {
	r.events = append(r.events, "removed")
	r.removed = append(r.removed, items...)
}

func newTestCatalog(t *testing.T, s Settings, names ...string) (*Catalog, *fakeLister, *fakeQueue) {
	t.Helper()
	l := &fakeLister{}
	l.set(names...)
	q := &fakeQueue{}
	c := New(l, q, NewPathSet(), NewPathSet(),
		WithSettings(s),
		WithBlankScreenImage("/cache/blank-screen.png"),
	)
	_, err := c.Reload()
	require.NoError(t, err)
	return c, l, q
}

func noBlank() Settings {
	s := DefaultSettings()
	s.IncludeBlankScreen = false
	return s
}

func names(c *Catalog) []string {
	var out []string
	for _, it := range c.Items() {
		out = append(out, it.Name)
	}
	return out
}

func paths(c *Catalog) []string {
	var out []string
	for _, it := range c.Items() {
		if !it.BlankScreen {
			out = append(out, it.Path())
		}
	}
	return out
}

func TestReloadBlankScreenFirstInNaturalOrder(t *testing.T) {
	s := DefaultSettings()
	s.MaxItemCount = 5
	c, _, q := newTestCatalog(t, s, "10 talk.mp4", "02 intro.png")

	assert.Equal(t, []string{BlankScreenName, "02 intro", "10 talk"}, names(c))
	assert.True(t, c.Items()[0].BlankScreen)
	assert.Equal(t, 3, c.Len())
	assert.Len(t, q.added, 3)
}

func TestReloadNaturalOrderNumericPrefix(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "10 b.png", "2 a.png", "Zeta.png", "alpha.png", "1 z.png")
	assert.Equal(t, []string{"1 z", "2 a", "10 b", "alpha", "Zeta"}, names(c))
}

func TestReloadLongNumericPrefixes(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "1000000 big.png", "999999 small.png")
	assert.Equal(t, []string{"999999 small", "1000000 big"}, names(c))
}

func TestReloadNoGhostsAndNoDuplicates(t *testing.T) {
	c, l, _ := newTestCatalog(t, noBlank(), "a.png", "b.mp4", "c.mp3")

	l.set("b.mp4", "d.png", "c.mp3", "e.mov")
	n, err := c.Reload()
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.ElementsMatch(t, []string{"/media/b.mp4", "/media/c.mp3", "/media/d.png", "/media/e.mov"}, paths(c))
}

func TestReloadSkipsCaseDuplicatesAndUnknown(t *testing.T) {
	l := &fakeLister{files: []media.File{
		{Path: "/media/Photo.PNG", Classification: media.Image},
		{Path: "/media/photo.png", Classification: media.Image},
		{Path: "/media/notes.txt", Classification: media.Unknown},
	}}
	c := New(l, &fakeQueue{}, nil, nil, WithSettings(noBlank()))
	n, err := c.Reload()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "/media/Photo.PNG", c.Items()[0].Path())
}

func TestReloadCaseRenameReplacesItem(t *testing.T) {
	c, l, q := newTestCatalog(t, noBlank(), "Clip.mp4")
	old := c.Items()[0]
	require.NoError(t, c.Hide(old.ID))

	l.set("clip.mp4")
	_, err := c.Reload()
	require.NoError(t, err)

	require.Len(t, c.Items(), 1)
	renamed := c.Items()[0]
	assert.Equal(t, "/media/clip.mp4", renamed.Path())
	assert.NotEqual(t, old.ID, renamed.ID)
	assert.Equal(t, "clip", renamed.Name)
	assert.False(t, renamed.Visible, "hidden membership follows the path")
	assert.Equal(t, 1, q.count(renamed))

	_, ok := c.Get(old.ID)
	assert.False(t, ok)
}

func TestReloadPreservesIdentityAndFlags(t *testing.T) {
	c, l, q := newTestCatalog(t, noBlank(), "a.png", "clip.mp4")
	clip, ok := c.FindByPath("/media/clip.mp4")
	require.True(t, ok)
	img, _ := c.FindByPath("/media/a.png")

	require.NoError(t, c.Hide(img.ID))
	require.NoError(t, c.SetFrozen(clip.ID, true))
	clip.Paused = true
	clip.Active = true
	clip.Position = 4 * time.Second
	enqueued := len(q.added)

	l.set("a.png", "clip.mp4", "new.png")
	_, err := c.Reload()
	require.NoError(t, err)

	again, ok := c.Get(clip.ID)
	require.True(t, ok)
	assert.Same(t, clip, again)
	assert.True(t, again.Paused)
	assert.True(t, again.Active)
	assert.True(t, again.PauseOnLastFrame)
	assert.Equal(t, 4*time.Second, again.Position)

	img2, _ := c.Get(img.ID)
	assert.False(t, img2.Visible)

	assert.Len(t, q.added, enqueued+1, "only the new file is enqueued")
}

func TestReloadModifiedFileIsRequeued(t *testing.T) {
	c, l, q := newTestCatalog(t, noBlank(), "a.png")
	it := c.Items()[0]

	l.files[0].LastModified = baseTime.Add(time.Minute)
	_, err := c.Reload()
	require.NoError(t, err)

	assert.Same(t, it, c.Items()[0])
	assert.Equal(t, baseTime.Add(time.Minute), it.LastModified)
	assert.Equal(t, 2, q.count(it))
}

func TestReloadTruncatesToMaxCount(t *testing.T) {
	var files []string
	for i := 10; i >= 1; i-- {
		files = append(files, fmt.Sprintf("%02d slide.png", i))
	}
	s := noBlank()
	s.MaxItemCount = 10
	c, _, _ := newTestCatalog(t, s, files...)
	require.Equal(t, 10, c.Len())

	rec := &recordingListener{}
	c.listener = rec
	s.MaxItemCount = 3
	c.ApplySettings(s)
	n, err := c.Reload()
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"01 slide", "02 slide", "03 slide"}, names(c))
	assert.Len(t, rec.removed, 7)
}

func TestReloadTruncatedFilesAreNotEnqueued(t *testing.T) {
	s := noBlank()
	s.MaxItemCount = 1
	_, _, q := newTestCatalog(t, s, "b.png", "a.png", "c.png")
	require.Len(t, q.added, 1)
	assert.Equal(t, "/media/a.png", q.added[0].Path())
}

func TestReloadListingFailureKeepsState(t *testing.T) {
	c, l, _ := newTestCatalog(t, noBlank(), "a.png", "b.png")
	before := c.Items()

	unavailable := errors.New("media folder unavailable")
	l.err = unavailable
	n, err := c.Reload()

	assert.True(t, errors.Is(err, unavailable))
	assert.Equal(t, 2, n)
	assert.Equal(t, before, c.Items())
}

func TestHideReloadUnhideAll(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "p.png", "q.png")
	p, _ := c.FindByPath("/media/p.png")
	require.NoError(t, c.Hide(p.ID))

	_, err := c.Reload()
	require.NoError(t, err)
	p, _ = c.FindByPath("/media/p.png")
	assert.False(t, p.Visible)
	assert.True(t, c.Hidden().Contains("/MEDIA/P.PNG"))

	c.UnhideAll()
	for _, it := range c.Items() {
		assert.True(t, it.Visible, it.Name)
	}
	assert.Equal(t, 0, c.Hidden().Len())
}

func TestHiddenSeededBeforeFirstReload(t *testing.T) {
	l := &fakeLister{}
	l.set("a.png", "b.mp4")
	hidden := NewPathSet()
	hidden.Init([]string{"/media/A.png"})
	frozen := NewPathSet()
	frozen.Init([]string{"/media/b.mp4", "/media/gone.mp4"})

	c := New(l, &fakeQueue{}, hidden, frozen, WithSettings(noBlank()))
	_, err := c.Reload()
	require.NoError(t, err)

	a, _ := c.FindByPath("/media/a.png")
	b, _ := c.FindByPath("/media/b.mp4")
	assert.False(t, a.Visible)
	assert.True(t, b.Visible)
	assert.True(t, b.PauseOnLastFrame)
}

func TestSetFrozenOnlyVideos(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "a.png", "b.mp4")
	a, _ := c.FindByPath("/media/a.png")
	b, _ := c.FindByPath("/media/b.mp4")

	assert.ErrorIs(t, c.SetFrozen(a.ID, true), ErrNotVideo)
	require.NoError(t, c.SetFrozen(b.ID, true))
	assert.True(t, c.Frozen().Contains(b.Path()))

	require.NoError(t, c.SetFrozen(b.ID, false))
	assert.False(t, b.PauseOnLastFrame)
	assert.Equal(t, 0, c.Frozen().Len())
}

func TestBlankScreenToggle(t *testing.T) {
	c, _, q := newTestCatalog(t, DefaultSettings(), "a.png")
	blank := c.BlankScreen()
	require.NotNil(t, blank)
	assert.Equal(t, "/cache/blank-screen.png", blank.Path())

	rec := &recordingListener{}
	c.listener = rec

	s := c.Settings()
	s.PermanentBackdrop = true
	c.ApplySettings(s)
	_, err := c.Reload()
	require.NoError(t, err)
	assert.Nil(t, c.BlankScreen())
	require.Len(t, rec.removed, 1)
	assert.Same(t, blank, rec.removed[0])
	_, ok := c.Get(blank.ID)
	assert.False(t, ok)

	s.PermanentBackdrop = false
	c.ApplySettings(s)
	_, err = c.Reload()
	require.NoError(t, err)
	assert.Same(t, blank, c.BlankScreen(), "sentinel is created once")
	assert.Equal(t, 1, q.count(blank), "sentinel is enqueued once")
	assert.Equal(t, []string{"started", "removed", "finished:1", "started", "finished:2"}, rec.events)
}

func TestResortIsIdempotent(t *testing.T) {
	c, _, _ := newTestCatalog(t, DefaultSettings(), "b.png", "a.png", "3 c.png")
	assert.False(t, c.Resort())

	before := c.Items()
	before[1].Name = "zzz"
	assert.True(t, c.Resort())
	assert.False(t, c.Resort())
	assert.True(t, c.Items()[0].BlankScreen)
}

func TestApplySettingsPropagatesPerItemOptions(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "a.mp4", "b.mp3")

	s := c.Settings()
	s.AllowPause = false
	s.AllowSeek = true
	c.ApplySettings(s)
	for _, it := range c.Items() {
		assert.False(t, it.AllowPause)
		assert.True(t, it.AllowSeek)
	}
}

func TestUseInternalTitles(t *testing.T) {
	store := metadata.NewStore()
	store.Put("/media/track1.mp3", metadata.Info{Title: "Zebra Song"})
	l := &fakeLister{}
	l.set("track1.mp3", "track2.mp3")

	s := noBlank()
	s.UseInternalTitles = true
	c := New(l, &fakeQueue{}, nil, nil, WithSettings(s), WithMetadataStore(store))
	_, err := c.Reload()
	require.NoError(t, err)
	assert.Equal(t, []string{"track2", "Zebra Song"}, names(c))

	// a title arriving from the worker renames the item
	t2, _ := c.FindByPath("/media/track2.mp3")
	t2.Publish(&metadata.Result{Info: metadata.Info{Title: "Aardvark"}})
	assert.True(t, c.RefreshNames())
	c.Resort()
	assert.Equal(t, []string{"Aardvark", "Zebra Song"}, names(c))

	s.UseInternalTitles = false
	c.ApplySettings(s)
	assert.Equal(t, []string{"track1", "track2"}, names(c))
}

func TestNewItemSeedsCachedDuration(t *testing.T) {
	store := metadata.NewStore()
	store.Put("/media/clip.mp4", metadata.Info{Duration: 90 * time.Second})
	l := &fakeLister{}
	l.set("clip.mp4", "pic.png")
	c := New(l, &fakeQueue{}, nil, nil, WithSettings(noBlank()), WithMetadataStore(store))
	_, err := c.Reload()
	require.NoError(t, err)

	clip, _ := c.FindByPath("/media/clip.mp4")
	assert.Equal(t, 90*time.Second, clip.Duration())
	pic, _ := c.FindByPath("/media/pic.png")
	assert.Zero(t, pic.Duration())
}

func TestRequeueAllClearsThumbnails(t *testing.T) {
	c, _, q := newTestCatalog(t, DefaultSettings(), "a.png", "b.mp4")
	for _, it := range c.Items() {
		it.Publish(&metadata.Result{Thumbnail: []byte{1}, Info: metadata.Info{Title: "t"}})
	}
	before := len(q.added)

	assert.Equal(t, 3, c.RequeueAll())
	assert.Len(t, q.added, before+3)
	for _, it := range c.Items() {
		assert.Nil(t, it.Thumbnail())
		assert.Equal(t, "t", it.Title())
	}
}

func TestNextImage(t *testing.T) {
	c, _, _ := newTestCatalog(t, DefaultSettings(), "1.png", "2.mp4", "3.png", "4.png")
	items := c.Items()
	three, _ := c.FindByPath("/media/3.png")
	four, _ := c.FindByPath("/media/4.png")
	require.NoError(t, c.Hide(three.ID))

	assert.Same(t, four, c.NextImage(items[1].ID))
	assert.Nil(t, c.NextImage(four.ID))
}

func TestItemSnapshot(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "clip.mp4")
	it := c.Items()[0]
	it.Publish(&metadata.Result{Info: metadata.Info{Duration: time.Minute}, Thumbnail: []byte{1}})
	it.Active = true

	snap := it.Snapshot()
	assert.Equal(t, it.ID, snap.ID)
	assert.Equal(t, "clip", snap.Name)
	assert.Equal(t, time.Minute, snap.Duration)
	assert.True(t, snap.HasThumbnail)
	assert.True(t, snap.Active)
	assert.Equal(t, media.Video, snap.Classification)
}

func TestGetUnknownID(t *testing.T) {
	c, _, _ := newTestCatalog(t, noBlank(), "a.png")
	assert.ErrorIs(t, c.Hide(uuid.New()), ErrNotFound)
	assert.ErrorIs(t, c.SetFrozen(uuid.New(), true), ErrNotFound)
}

func TestEnsureBlankScreenImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	path, err := EnsureBlankScreenImage(dir)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 1920, cfg.Width)

	again, err := EnsureBlankScreenImage(dir)
	require.NoError(t, err)
	assert.Equal(t, path, again)
}
