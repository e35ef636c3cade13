// Package cache persists parsed works in a gzip-compressed JSON index keyed by
// metadata hash, with one storage directory per work.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/philippgille/gokv"
	"github.com/philippgille/gokv/syncmap"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const (
	IndexName       = "index.json.gz"
	LegacyIndexName = "index.json"
)

var ErrHashTooShort = fmt.Errorf("hash must be at least %d characters", manga.ShortHashLen)

type NotFoundError struct {
	Hash string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%q not found in cache", e.Hash)
}

type Cache struct {
	fs    afero.Fs
	root  string
	index map[string]json.RawMessage
	alias gokv.Store
	log   logrus.FieldLogger
}

// Open reads the index under root, migrating an uncompressed legacy index
// if one exists. A missing index yields an empty cache.
func Open(fs afero.Fs, root string, log logrus.FieldLogger) (*Cache, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	c := &Cache{
		fs:    fs,
		root:  root,
		index: map[string]json.RawMessage{},
		alias: syncmap.NewStore(syncmap.DefaultOptions),
		log:   log.WithField("component", "cache"),
	}

	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	if err := c.migrate(); err != nil {
		return nil, err
	}

	if err := c.read(); err != nil {
		return nil, err
	}

	for hash, raw := range c.index {
		var r manga.Manga
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("cache: entry %s: %w", hash, err)
		}
		if err := c.alias.Set(r.Meta.URL, hash); err != nil {
			return nil, fmt.Errorf("cache: alias: %w", err)
		}
	}

	c.log.WithField("entries", len(c.index)).Debug("index loaded")

	return c, nil
}

func (c *Cache) indexPath() string {
	return filepath.Join(c.root, IndexName)
}

func (c *Cache) migrate() error {
	legacy := filepath.Join(c.root, LegacyIndexName)

	b, err := afero.ReadFile(c.fs, legacy)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: read legacy index: %w", err)
	}

	if err := c.write(b); err != nil {
		return err
	}

	if err := c.fs.Remove(legacy); err != nil {
		return fmt.Errorf("cache: remove legacy index: %w", err)
	}

	c.log.WithField("path", legacy).Info("migrated legacy index")

	return nil
}

func (c *Cache) read() error {
	f, err := c.fs.Open(c.indexPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("cache: index: %w", err)
	}
	defer func() { _ = zr.Close() }()

	if err := json.NewDecoder(zr).Decode(&c.index); err != nil {
		return fmt.Errorf("cache: index: %w", err)
	}

	if c.index == nil {
		c.index = map[string]json.RawMessage{}
	}

	return nil
}

// write compresses b into the index file through a temporary file.
func (c *Cache) write(b []byte) error {
	tmp := c.indexPath() + ".tmp"

	f, err := c.fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	zw := gzip.NewWriter(f)
	if _, err := zw.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: write index: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: write index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: write index: %w", err)
	}

	if err := c.fs.Rename(tmp, c.indexPath()); err != nil {
		return fmt.Errorf("cache: write index: %w", err)
	}

	return nil
}

// Close persists the index.
func (c *Cache) Close() error {
	b, err := json.Marshal(c.index)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.write(b); err != nil {
		return err
	}

	c.log.WithField("entries", len(c.index)).Debug("index saved")

	return c.alias.Close()
}

// Load returns an independent copy of the work stored under hash.
func (c *Cache) Load(hash string) (*manga.Manga, error) {
	raw, ok := c.index[hash]
	if !ok {
		return nil, NotFoundError{Hash: hash}
	}

	var m manga.Manga
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("cache: entry %s: %w", hash, err)
	}

	return &m, nil
}

// Dump stores m under its hash and makes sure its directory exists.
func (c *Cache) Dump(m *manga.Manga) error {
	hash := m.Meta.Hash()

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	c.index[hash] = raw
	if err := c.alias.Set(m.Meta.URL, hash); err != nil {
		return fmt.Errorf("cache: alias: %w", err)
	}

	if err := c.fs.MkdirAll(c.Dir(hash), 0o755); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	c.log.WithFields(logrus.Fields{"hash": hash, "url": m.Meta.URL}).Debug("dumped")

	return nil
}

func (c *Cache) Exists(hash string) bool {
	_, ok := c.index[hash]
	return ok
}

// FullHash expands a hash prefix to the first stored hash it matches, or ""
// when nothing matches.
func (c *Cache) FullHash(prefix string) (string, error) {
	if len(prefix) < manga.ShortHashLen {
		return "", ErrHashTooShort
	}

	hashes := lo.Keys(c.index)
	sort.Strings(hashes)

	for _, h := range hashes {
		if strings.HasPrefix(h, prefix) {
			return h, nil
		}
	}

	return "", nil
}

// Delete drops the entry for hash along with its storage directory.
func (c *Cache) Delete(hash string) error {
	raw, ok := c.index[hash]
	if !ok {
		return NotFoundError{Hash: hash}
	}

	var r manga.Manga
	if err := json.Unmarshal(raw, &r); err == nil {
		if err := c.alias.Delete(r.Meta.URL); err != nil {
			return fmt.Errorf("cache: alias: %w", err)
		}
	}

	delete(c.index, hash)

	if err := c.fs.RemoveAll(c.Dir(hash)); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	c.log.WithField("hash", hash).Info("deleted")

	return nil
}

// Alias returns the hash stored for url.
func (c *Cache) Alias(url string) (string, bool) {
	var hash string

	found, err := c.alias.Get(url, &hash)
	if err != nil || !found {
		return "", false
	}

	return hash, true
}

// Dir is the storage directory of the work with the given hash.
func (c *Cache) Dir(hash string) string {
	return filepath.Join(c.root, hash)
}

// List returns the metadata of every stored work ordered by title.
func (c *Cache) List() ([]manga.Metadata, error) {
	metas := make([]manga.Metadata, 0, len(c.index))

	for hash, raw := range c.index {
		var r manga.Manga
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("cache: entry %s: %w", hash, err)
		}
		metas = append(metas, r.Meta)
	}

	sort.SliceStable(metas, func(i, j int) bool {
		if metas[i].Title != metas[j].Title {
			return metas[i].Title < metas[j].Title
		}
		return metas[i].URL < metas[j].URL
	})

	return metas, nil
}
