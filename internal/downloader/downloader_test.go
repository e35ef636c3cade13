package downloader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const root = "/cache/abc"

var (
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 64)...)
	pngBytes  = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
)

type fixture struct {
	srv      *httptest.Server
	requests atomic.Int64
	block    chan struct{}
	started  chan struct{}

	active atomic.Int64
	peak   atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("/jpg/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		_, _ = w.Write(jpegBytes)
	})
	mux.HandleFunc("/png/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		_, _ = w.Write(pngBytes)
	})
	mux.HandleFunc("/html/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		_, _ = w.Write([]byte("<html><body>blocked</body></html>"))
	})
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		f.started <- struct{}{}
		<-f.block
		_, _ = w.Write(jpegBytes)
	})
	mux.HandleFunc("/missing/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		http.NotFound(w, nil)
	})
	// Declares far more than it sends, so the connection drops mid-body.
	mux.HandleFunc("/short/", func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(jpegBytes)+100000))
		_, _ = w.Write(jpegBytes)
	})
	mux.HandleFunc("/stall/", func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		_, _ = w.Write(jpegBytes)
	})
	mux.HandleFunc("/count/", func(w http.ResponseWriter, _ *http.Request) {
		n := f.active.Add(1)
		for {
			p := f.peak.Load()
			if n <= p || f.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		f.active.Add(-1)
		_, _ = w.Write(jpegBytes)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fixture) url(path string) string {
	return f.srv.URL + path
}

func newDownloader(t *testing.T, fs afero.Fs, f *fixture) *Downloader {
	t.Helper()

	return newDownloaderWith(t, fs, f, Options{Workers: 4, Timeout: 5 * time.Second})
}

func newDownloaderWith(t *testing.T, fs afero.Fs, f *fixture, opts Options) *Downloader {
	t.Helper()

	log, _ := test.NewNullLogger()
	d, err := New(fs, root, f.srv.Client(), opts, log)
	require.NoError(t, err)

	return d
}

func chapter(id string, pages ...string) *manga.Chapter {
	c := manga.NewChapter(id, "https://example.com/"+id)
	c.SetPages(pages)

	return c
}

func TestDownloadWritesPagesInOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	c := chapter("1", f.url("/jpg/a"), f.url("/jpg/b"))

	var calls []int
	err := d.Download(context.Background(), c, false, func(done, total int, _ int64) {
		assert.Equal(t, 2, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, calls)

	assert.True(t, d.Downloaded(c))

	entries, err := afero.ReadDir(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0.jpg", entries[0].Name())
	assert.Equal(t, "1.jpg", entries[1].Name())

	b, err := afero.ReadFile(fs, filepath.Join(root, ManifestName))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, []string{"0.jpg", "1.jpg"}, m["1"]["en"])
}

func TestDownloadUsesSniffedExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	c := chapter("1", f.url("/png/a.jpg"), f.url("/jpg/b.png"))
	require.NoError(t, d.Download(context.Background(), c, false, nil))

	paths, ok := d.Pages("1", "en")
	require.True(t, ok)
	assert.Equal(t, []string{
		filepath.Join(root, "1", "en", "0.png"),
		filepath.Join(root, "1", "en", "1.jpg"),
	}, paths)
}

func TestDownloadFailureRollsBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	c := chapter("1", f.url("/jpg/a"), f.url("/missing/b"), f.url("/jpg/c"))
	err := d.Download(context.Background(), c, false, nil)

	var fe FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)

	ok, err := afero.DirExists(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, d.Downloaded(c))

	_, found := d.Pages("1", "en")
	assert.False(t, found)
}

func TestDownloadRejectsNonImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	c := chapter("1", f.url("/html/a"))
	err := d.Download(context.Background(), c, false, nil)

	var fe FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.Status)
	assert.Error(t, fe.Err)

	ok, err := afero.DirExists(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadNoPages(t *testing.T) {
	d := newDownloader(t, afero.NewMemMapFs(), newFixture(t))

	var np NoPagesError

	err := d.Download(context.Background(), manga.NewChapter("1", ""), false, nil)
	require.ErrorAs(t, err, &np)
	assert.Equal(t, "1", np.ChapterID)

	err = d.Download(context.Background(), chapter("2"), false, nil)
	require.ErrorAs(t, err, &np)
	assert.Equal(t, "2", np.ChapterID)
}

func TestDownloadSkipsCompleted(t *testing.T) {
	f := newFixture(t)
	d := newDownloader(t, afero.NewMemMapFs(), f)

	c := chapter("1", f.url("/jpg/a"))
	require.NoError(t, d.Download(context.Background(), c, false, nil))
	require.Equal(t, int64(1), f.requests.Load())

	require.NoError(t, d.Download(context.Background(), c, false, nil))
	assert.Equal(t, int64(1), f.requests.Load())
}

func TestDownloadForceRefetches(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	require.NoError(t, d.Download(context.Background(), chapter("1", f.url("/jpg/a"), f.url("/jpg/b")), false, nil))

	c := chapter("1", f.url("/png/a"))
	require.NoError(t, d.Download(context.Background(), c, true, nil))
	assert.Equal(t, int64(3), f.requests.Load())

	paths, ok := d.Pages("1", "en")
	require.True(t, ok)
	assert.Equal(t, []string{filepath.Join(root, "1", "en", "0.png")}, paths)

	old, err := afero.Exists(fs, filepath.Join(root, "1", "en", "1.jpg"))
	require.NoError(t, err)
	assert.False(t, old)
}

func TestDownloadInFlight(t *testing.T) {
	f := newFixture(t)
	f.block = make(chan struct{})
	f.started = make(chan struct{}, 1)
	d := newDownloader(t, afero.NewMemMapFs(), f)

	c := chapter("1", f.url("/slow/a"))

	errs := make(chan error, 1)
	go func() {
		errs <- d.Download(context.Background(), c, false, nil)
	}()

	<-f.started
	assert.ErrorIs(t, d.Download(context.Background(), c, false, nil), ErrInFlight)

	close(f.block)
	require.NoError(t, <-errs)
	assert.True(t, d.Downloaded(c))
}

func TestDownloadCancelled(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Download(ctx, chapter("1", f.url("/jpg/a")), false, nil)
	require.Error(t, err)

	ok, err := afero.DirExists(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManifestRepair(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)

	m := Manifest{"1": {"en": {"/old/place/1/en/0.jpg", "1.jpg"}}}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, ManifestName), b, 0o644))

	d := newDownloader(t, fs, f)

	paths, ok := d.Pages("1", "en")
	require.True(t, ok)
	assert.Equal(t, []string{
		filepath.Join(root, "1", "en", "0.jpg"),
		filepath.Join(root, "1", "en", "1.jpg"),
	}, paths)

	b, err = afero.ReadFile(fs, filepath.Join(root, ManifestName))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, []string{"0.jpg", "1.jpg"}, m["1"]["en"])
}

func TestChaptersNaturalOrder(t *testing.T) {
	f := newFixture(t)
	d := newDownloader(t, afero.NewMemMapFs(), f)

	for _, id := range []string{"10", "2", "1"} {
		require.NoError(t, d.Download(context.Background(), chapter(id, f.url("/jpg/"+id)), false, nil))
	}

	assert.Equal(t, []Key{{"1", "en"}, {"2", "en"}, {"10", "en"}}, d.Chapters())
	assert.Equal(t, int64(3*len(jpegBytes)), d.Bytes())
}

func TestPaginate(t *testing.T) {
	f := newFixture(t)
	d := newDownloader(t, afero.NewMemMapFs(), f)

	chapters := []*manga.Chapter{
		chapter("1", f.url("/jpg/a"), f.url("/png/b")),
		chapter("2", f.url("/jpg/c")),
	}

	var progress []int
	pages, err := d.Paginate(context.Background(), chapters, func(done, _ int) {
		progress = append(progress, done)
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "1", "en", "0.jpg"),
		filepath.Join(root, "1", "en", "1.png"),
		filepath.Join(root, "2", "en", "0.jpg"),
	}, pages)
	assert.Equal(t, []int{1, 2}, progress)
}

func TestDownloadCover(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	path, err := d.DownloadCover(context.Background(), f.url("/png/cover"), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "cover.png"), path)

	again, err := d.DownloadCover(context.Background(), f.url("/png/cover"), false)
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int64(1), f.requests.Load())
}

func TestPrune(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	require.NoError(t, d.Download(context.Background(), chapter("1", f.url("/jpg/a")), false, nil))

	orphan := filepath.Join(root, "3", "en", "0.jpg")
	require.NoError(t, afero.WriteFile(fs, orphan, jpegBytes, 0o644))

	removed, err := d.Prune()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "3", "en")}, removed)

	ok, err := afero.DirExists(fs, filepath.Join(root, "3"))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, d.Downloaded(chapter("1")))
}

func TestDownloadTruncatedPageRollsBack(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	err := d.Download(context.Background(), chapter("1", f.url("/jpg/a"), f.url("/short/b")), false, nil)

	var fe FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.Status)

	ok, err := afero.DirExists(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadTimeoutIsFetchError(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloaderWith(t, fs, f, Options{Workers: 2, Timeout: 50 * time.Millisecond})

	c := chapter("1", f.url("/jpg/a"), f.url("/stall/b"))
	err := d.Download(context.Background(), c, false, nil)

	var fe FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, f.url("/stall/b"), fe.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	ok, err := afero.DirExists(fs, d.Dir("1", "en"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, d.Downloaded(c))
}

func TestDownloadPoolIsBounded(t *testing.T) {
	f := newFixture(t)
	d := newDownloaderWith(t, afero.NewMemMapFs(), f, Options{Workers: 3, Timeout: 5 * time.Second})

	pages := make([]string, 12)
	for i := range pages {
		pages[i] = f.url("/count/" + strconv.Itoa(i))
	}

	require.NoError(t, d.Download(context.Background(), chapter("1", pages...), false, nil))

	assert.LessOrEqual(t, f.peak.Load(), int64(3))
	assert.Greater(t, f.peak.Load(), int64(1))

	got, ok := d.Pages("1", "en")
	require.True(t, ok)
	assert.Len(t, got, 12)
}

func TestDownloadRejectsUnsafeNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	for _, id := range []string{"..", "../escape", "a/b", `a\b`, "."} {
		err := d.Download(context.Background(), chapter(id, f.url("/jpg/a")), false, nil)
		assert.ErrorIs(t, err, ErrUnsafeName, id)
	}

	c := chapter("1", f.url("/jpg/a"))
	c.Lang = ".."
	assert.ErrorIs(t, d.Download(context.Background(), c, false, nil), ErrUnsafeName)

	assert.Zero(t, f.requests.Load())

	ok, err := afero.Exists(fs, filepath.Join(filepath.Dir(root), "escape"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDownloadCoverTruncatedLeavesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := newFixture(t)
	d := newDownloader(t, fs, f)

	_, err := d.DownloadCover(context.Background(), f.url("/short/cover"), false)
	var fe FetchError
	require.ErrorAs(t, err, &fe)

	entries, err := afero.ReadDir(fs, root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = d.DownloadCover(context.Background(), f.url("/short/cover"), false)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(2), f.requests.Load())
}
