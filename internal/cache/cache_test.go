package cache

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const root = "/cache"

func openCache(t *testing.T, fs afero.Fs) *Cache {
	t.Helper()

	log, _ := test.NewNullLogger()
	c, err := Open(fs, root, log)
	require.NoError(t, err)

	return c
}

func sampleManga(url string) *manga.Manga {
	meta := manga.NewMetadata(url)
	meta.Title = "Sample"
	m := manga.New(meta)

	c1 := manga.NewChapter("1", url+"/1")
	c1.SetPages([]string{"https://img.example/1.jpg", "https://img.example/2.jpg"})
	m.Add(c1)
	m.Add(manga.NewChapter("2", url+"/2"))

	return m
}

func TestDumpLoadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := openCache(t, fs)

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))

	got, err := c.Load(m.Meta.Hash())
	require.NoError(t, err)

	assert.Equal(t, m.Meta.Hash(), got.Meta.Hash())
	assert.Equal(t, m.Meta.Title, got.Meta.Title)
	assert.Equal(t, m.Chapters, got.Chapters)

	ch, ok := got.Get("2", "en")
	require.True(t, ok)
	assert.False(t, ch.Parsed())
}

func TestLoadReturnsCopy(t *testing.T) {
	c := openCache(t, afero.NewMemMapFs())

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))

	got, err := c.Load(m.Meta.Hash())
	require.NoError(t, err)
	got.Remove("1", "en")

	again, err := c.Load(m.Meta.Hash())
	require.NoError(t, err)
	assert.True(t, again.Exists("1", "en"))
}

func TestLoadNotFound(t *testing.T) {
	c := openCache(t, afero.NewMemMapFs())

	_, err := c.Load("deadbeef")

	var nf NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "deadbeef", nf.Hash)
}

func TestDumpCreatesDirAndAlias(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := openCache(t, fs)

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))

	ok, err := afero.DirExists(fs, c.Dir(m.Meta.Hash()))
	require.NoError(t, err)
	assert.True(t, ok)

	hash, found := c.Alias(m.Meta.URL)
	assert.True(t, found)
	assert.Equal(t, m.Meta.Hash(), hash)
}

func TestDumpKeepsExistingDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := openCache(t, fs)

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))

	page := filepath.Join(c.Dir(m.Meta.Hash()), "1", "en", "0.jpg")
	require.NoError(t, afero.WriteFile(fs, page, []byte("x"), 0o644))

	require.NoError(t, c.Dump(m))

	ok, err := afero.Exists(fs, page)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFullHash(t *testing.T) {
	c := openCache(t, afero.NewMemMapFs())

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))
	hash := m.Meta.Hash()

	got, err := c.FullHash(hash[:manga.ShortHashLen])
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	got, err = c.FullHash("zzzzzzzz")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFullHashTooShort(t *testing.T) {
	c := openCache(t, afero.NewMemMapFs())

	_, err := c.FullHash("abc")
	assert.ErrorIs(t, err, ErrHashTooShort)
}

func TestDelete(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := openCache(t, fs)

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))
	hash := m.Meta.Hash()

	require.NoError(t, c.Delete(hash))

	assert.False(t, c.Exists(hash))
	_, found := c.Alias(m.Meta.URL)
	assert.False(t, found)

	ok, err := afero.DirExists(fs, c.Dir(hash))
	require.NoError(t, err)
	assert.False(t, ok)

	var nf NotFoundError
	assert.ErrorAs(t, c.Delete(hash), &nf)
}

func TestCloseAndReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := openCache(t, fs)

	m := sampleManga("https://example.com/manga/a")
	require.NoError(t, c.Dump(m))
	require.NoError(t, c.Close())

	b, err := afero.ReadFile(fs, filepath.Join(root, IndexName))
	require.NoError(t, err)
	zr, err := gzip.NewReader(bytes.NewReader(b))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, json.Valid(plain))

	reopened := openCache(t, fs)
	got, err := reopened.Load(m.Meta.Hash())
	require.NoError(t, err)
	assert.Equal(t, m.Chapters, got.Chapters)

	hash, found := reopened.Alias(m.Meta.URL)
	assert.True(t, found)
	assert.Equal(t, m.Meta.Hash(), hash)
}

func TestLegacyIndexMigration(t *testing.T) {
	fs := afero.NewMemMapFs()

	m := sampleManga("https://example.com/manga/legacy")
	legacy, err := json.Marshal(map[string]*manga.Manga{m.Meta.Hash(): m})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, LegacyIndexName), legacy, 0o644))

	c := openCache(t, fs)

	assert.True(t, c.Exists(m.Meta.Hash()))

	ok, err := afero.Exists(fs, filepath.Join(root, LegacyIndexName))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = afero.Exists(fs, filepath.Join(root, IndexName))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestList(t *testing.T) {
	c := openCache(t, afero.NewMemMapFs())

	b := sampleManga("https://example.com/manga/b")
	b.Meta.Title = "Beta"
	a := sampleManga("https://example.com/manga/a")
	a.Meta.Title = "Alpha"
	require.NoError(t, c.Dump(b))
	require.NoError(t, c.Dump(a))

	metas, err := c.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "Alpha", metas[0].Title)
	assert.Equal(t, "Beta", metas[1].Title)
}
