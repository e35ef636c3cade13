package mangadex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const (
	id       = "6b1eb93e-473a-4ab3-9922-1a66d2a29a4a"
	mangaURL = "https://mangadex.org/title/" + id + "/naruto"
)

const mangaJSON = `{
  "result": "ok",
  "data": {
    "id": "6b1eb93e-473a-4ab3-9922-1a66d2a29a4a",
    "attributes": {
      "title": {"en": "Naruto"},
      "altTitles": [{"ja": "ナルト"}, {"ja-ro": "Naruto"}],
      "description": {"en": "A ninja story.\r\nWith ramen.", "fr": "Un ninja."},
      "tags": [
        {"attributes": {"name": {"en": "Action"}}},
        {"attributes": {"name": {"en": "Martial Arts"}}}
      ]
    },
    "relationships": [
      {"id": "a1", "type": "author", "attributes": {"name": "Kishimoto Masashi"}},
      {"id": "a1", "type": "artist", "attributes": {"name": "Kishimoto Masashi"}},
      {"id": "c1", "type": "cover_art", "attributes": {"fileName": "cover.jpg"}}
    ]
  }
}`

func chapterJSON(cid, number, volume, lang string) map[string]any {
	attrs := map[string]any{"translatedLanguage": lang, "title": "Chapter " + number}
	if number != "" {
		attrs["chapter"] = number
	}
	if volume != "" {
		attrs["volume"] = volume
	}

	return map[string]any{"id": cid, "attributes": attrs}
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	chapters := []map[string]any{
		chapterJSON("c-1", "1", "1", "en"),
		chapterJSON("c-2", "2", "1", "en"),
		chapterJSON("c-2fr", "2", "1", "fr"),
		chapterJSON("c-10", "10", "", "en"),
		chapterJSON("c-os", "", "", "en"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/manga/"+id, func(w http.ResponseWriter, r *http.Request) {
		assert.ElementsMatch(t, []string{"author", "cover_art"}, r.URL.Query()["includes[]"])
		_, _ = w.Write([]byte(mangaJSON))
	})
	mux.HandleFunc("/manga/"+id+"/feed", func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := min(offset+2, len(chapters))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   chapters[offset:end],
			"limit":  2,
			"offset": offset,
			"total":  len(chapters),
		})
	})
	mux.HandleFunc("/at-home/server/c-1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"baseUrl": "https://node.example", "chapter": {"hash": "h4sh", "data": ["1.png", "2.png"]}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newParser(srv *httptest.Server) *Parser {
	log, _ := test.NewNullLogger()
	return New(srv.Client(), Options{API: srv.URL, Uploads: "https://uploads.example"}, log)
}

func TestMetadata(t *testing.T) {
	p := newParser(newServer(t))

	meta, err := p.Metadata(context.Background(), mangaURL)
	require.NoError(t, err)

	assert.Equal(t, mangaURL, meta.URL)
	assert.Equal(t, "Naruto", meta.Title)
	assert.ElementsMatch(t, []string{"ナルト", "Naruto"}, meta.AltTitles)
	assert.Equal(t, []string{"Kishimoto Masashi"}, meta.Authors)
	assert.Equal(t, []string{"Action", "Martial Arts"}, meta.Genres)
	assert.Equal(t, "Un ninja.", meta.Desc("fr"))
	assert.Equal(t, "https://uploads.example/covers/"+id+"/cover.jpg", meta.Cover)
}

func TestAddChaptersWalksFeed(t *testing.T) {
	p := newParser(newServer(t))

	m := manga.New(manga.NewMetadata(mangaURL))
	require.NoError(t, p.AddChapters(context.Background(), m))

	assert.Equal(t, []string{"0", "1", "2", "10"}, m.SortedIDs())
	assert.Equal(t, []string{"en", "fr"}, m.Info().Languages)

	c, ok := m.Get("2", "fr")
	require.True(t, ok)
	assert.Equal(t, ChapterURL+"c-2fr", c.URL)
	assert.Equal(t, "1", c.Volume)

	c, ok = m.Get("10", "en")
	require.True(t, ok)
	assert.Equal(t, manga.DefaultVolume, c.Volume)
}

func TestAddPages(t *testing.T) {
	p := newParser(newServer(t))

	c := manga.NewChapter("1", ChapterURL+"c-1")
	require.NoError(t, p.AddPages(context.Background(), c))

	assert.Equal(t, []string{
		"https://node.example/data/h4sh/1.png",
		"https://node.example/data/h4sh/2.png",
	}, c.Pages)
}

func TestBadURLs(t *testing.T) {
	p := newParser(newServer(t))

	_, err := p.Metadata(context.Background(), "https://mangadex.org/user/1")
	assert.Error(t, err)

	assert.Error(t, p.AddPages(context.Background(), manga.NewChapter("1", "https://example.com/x")))
}
