package generic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const seriesPage = `<html><head>
<title>Fallback Title</title>
<meta property="og:title" content="Dungeon Diary">
<meta property="og:description" content="Notes from below.">
<meta property="og:image" content="/static/poster.jpg">
</head><body>
<a href="/">Home</a>
<a href="/u/someone">Chapter 99 by someone</a>
<a href="/series/dd/chapter-001">Chapter 1</a>
<a href="/series/dd/chapter-2-5">Chapter 2.5</a>
<a href="/series/dd/vol-2/ch-10">Ch. 10</a>
<a href="/series/dd/read?id=7">Chapter 7 - Below</a>
<a href="/series/dd/chapter-001">Chapter 1 again</a>
</body></html>`

const readerPage = `<html><body>
<div class="reader">
  <div data-index="1"><img data-src="https://cdn.example/p/b-300x400.jpg"><img src="https://cdn.example/p/b.jpg"></div>
  <div data-index="0"><img src="https://cdn.example/p/a.jpg"></div>
  <img src="https://cdn.example/site-logo.png">
  <img src="data:image/png;base64,AAAA">
  <picture><source srcset="https://cdn.example/p/c-600x800.webp 2x, https://cdn.example/p/c-300x400.webp 1x"></picture>
</div>
<script>window.__NUXT__={"pages":["https://cdn.example/p/d.png"]};</script>
</body></html>`

const jsReaderPage = `<html><body>
<script>
const chapterId = "42";
var api = "/api/chapter/";
</script>
</body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/series/dd", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(seriesPage))
	})
	mux.HandleFunc("/read/1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(readerPage))
	})
	mux.HandleFunc("/read/empty", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	})
	mux.HandleFunc("/read/js", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(jsReaderPage))
	})
	mux.HandleFunc("/api/chapter/42", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		_, _ = w.Write([]byte(`{"images":[{"url":"https://cdn.example/js/1.jpg"},{"url":"https://cdn.example/js/2.jpg"}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newParser(srv *httptest.Server, checkJS bool) *Parser {
	log, _ := test.NewNullLogger()
	return New(srv.Client(), Options{CheckJS: checkJS}, log)
}

func TestMetadata(t *testing.T) {
	srv := newServer(t)

	meta, err := newParser(srv, false).Metadata(context.Background(), srv.URL+"/series/dd")
	require.NoError(t, err)

	assert.Equal(t, "Dungeon Diary", meta.Title)
	assert.Equal(t, "Notes from below.", meta.Desc("en"))
	assert.Equal(t, srv.URL+"/static/poster.jpg", meta.Cover)
}

func TestAddChapters(t *testing.T) {
	srv := newServer(t)

	m := manga.New(manga.NewMetadata(srv.URL + "/series/dd"))
	require.NoError(t, newParser(srv, false).AddChapters(context.Background(), m))

	assert.Equal(t, []string{"1", "2.5", "7", "10"}, m.SortedIDs())

	c, ok := m.Get("10", "en")
	require.True(t, ok)
	assert.Equal(t, "2", c.Volume)
	assert.Equal(t, srv.URL+"/series/dd/vol-2/ch-10", c.URL)

	c, ok = m.Get("1", "en")
	require.True(t, ok)
	assert.Equal(t, "Chapter 1", c.Title)
}

func TestAddPages(t *testing.T) {
	srv := newServer(t)

	c := manga.NewChapter("1", srv.URL+"/read/1")
	require.NoError(t, newParser(srv, false).AddPages(context.Background(), c))

	assert.Equal(t, []string{
		"https://cdn.example/p/a.jpg",
		"https://cdn.example/p/b.jpg",
		"https://cdn.example/p/c-600x800.webp",
		"https://cdn.example/p/d.png",
	}, c.Pages)
}

func TestAddPagesNothingFound(t *testing.T) {
	srv := newServer(t)

	c := manga.NewChapter("1", srv.URL+"/read/empty")
	err := newParser(srv, false).AddPages(context.Background(), c)

	assert.ErrorIs(t, err, ErrNoImages)
	assert.False(t, c.Parsed())
}

func TestAddPagesProbesScripts(t *testing.T) {
	srv := newServer(t)

	c := manga.NewChapter("1", srv.URL+"/read/js")
	require.NoError(t, newParser(srv, true).AddPages(context.Background(), c))

	assert.Equal(t, []string{"https://cdn.example/js/1.jpg", "https://cdn.example/js/2.jpg"}, c.Pages)

	off := manga.NewChapter("1", srv.URL+"/read/js")
	assert.ErrorIs(t, newParser(srv, false).AddPages(context.Background(), off), ErrNoImages)
}

func TestParseChapterRef(t *testing.T) {
	cases := []struct {
		href, text string
		want       chapterRef
		ok         bool
	}{
		{"/m/chapter-007", "", chapterRef{ID: "7"}, true},
		{"/m/chapter_12-1", "", chapterRef{ID: "12.1"}, true},
		{"/m/volume-3/ch_4.5", "", chapterRef{ID: "4.5", Volume: "3"}, true},
		{"/m/ch-8", "", chapterRef{ID: "8"}, true},
		{"/m/read/abc", "Vol. 2 Chapter 15", chapterRef{ID: "15", Volume: "2"}, true},
		{"/m/read/abc", "03. Beginnings", chapterRef{ID: "3"}, true},
		{"/u/reader/chapter-1", "Chapter 1", chapterRef{}, false},
		{"/", "Chapter 1", chapterRef{}, false},
		{"/about", "About us", chapterRef{}, false},
	}

	for _, tc := range cases {
		got, ok := parseChapterRef(tc.href, tc.text)
		assert.Equal(t, tc.ok, ok, tc.href)
		assert.Equal(t, tc.want, got, tc.href)
	}
}

func TestExtensionPattern(t *testing.T) {
	re := extensionPattern([]string{" .PNG", "", "webp"})

	assert.True(t, re.MatchString("a.png"))
	assert.True(t, re.MatchString("a.WEBP"))
	assert.False(t, re.MatchString("a.jpg"))

	assert.False(t, extensionPattern(nil).MatchString("a.jpg"))
}

func TestSizeKeyGroupsVariants(t *testing.T) {
	assert.Equal(t,
		sizeKey("https://cdn.example/p/c-600x800.webp"),
		sizeKey("https://cdn.example/p/c_300x400.webp"))
	assert.True(t, strings.HasSuffix(sizeKey("https://cdn.example/p/c.webp"), "/p/c.webp"))
}
