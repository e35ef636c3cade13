// Package downloader fetches chapter pages into a work's storage directory
// and records completed chapters in a manifest.
//
// A chapter is either fully present on disk with a manifest entry, or absent:
// any failed page removes the chapter directory before the error is returned.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maruel/natural"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const (
	ManifestName = "manifest.json"

	DefaultWorkers = 8
	DefaultTimeout = 30 * time.Second
)

type Options struct {
	Workers int
	Timeout time.Duration
	Referer string
}

// ProgressFunc is called once per finished page. done grows by one on every
// call; bytes is the chapter total written so far.
type ProgressFunc func(done, total int, bytes int64)

// Manifest maps chapter id to language to page file names in page order.
type Manifest map[string]map[string][]string

// Key identifies one downloaded chapter language.
type Key struct {
	ID   string
	Lang string
}

type Downloader struct {
	fs     afero.Fs
	root   string
	client *http.Client
	opts   Options
	log    logrus.FieldLogger

	mu       sync.Mutex
	manifest Manifest
	inflight map[Key]struct{}

	bytes atomic.Int64
}

// New opens the manifest under root, creating root if needed.
func New(fs afero.Fs, root string, client *http.Client, opts Options, log logrus.FieldLogger) (*Downloader, error) {
	if opts.Workers < 1 {
		opts.Workers = DefaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	d := &Downloader{
		fs:       fs,
		root:     root,
		client:   client,
		opts:     opts,
		log:      log.WithField("component", "downloader"),
		manifest: Manifest{},
		inflight: map[Key]struct{}{},
	}

	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}

	if err := d.loadManifest(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *Downloader) manifestPath() string {
	return filepath.Join(d.root, ManifestName)
}

func (d *Downloader) loadManifest() error {
	b, err := afero.ReadFile(d.fs, d.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("downloader: manifest: %w", err)
	}

	if err := json.Unmarshal(b, &d.manifest); err != nil {
		return fmt.Errorf("downloader: manifest: %w", err)
	}
	if d.manifest == nil {
		d.manifest = Manifest{}
	}

	repaired := 0
	for id, langs := range d.manifest {
		for lang, names := range langs {
			for i, name := range names {
				if filepath.IsAbs(name) {
					names[i] = filepath.Base(name)
					repaired++
				}
			}
			d.manifest[id][lang] = names
		}
	}

	if repaired > 0 {
		d.log.WithField("entries", repaired).Warn("repaired absolute paths in manifest")
		return d.saveManifest()
	}

	return nil
}

// saveManifest must be called with mu held, or before d is shared.
func (d *Downloader) saveManifest() error {
	b, err := json.MarshalIndent(d.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("downloader: manifest: %w", err)
	}

	tmp := d.manifestPath() + ".tmp"
	if err := afero.WriteFile(d.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("downloader: manifest: %w", err)
	}

	if err := d.fs.Rename(tmp, d.manifestPath()); err != nil {
		return fmt.Errorf("downloader: manifest: %w", err)
	}

	return nil
}

// safeName reports whether s stays inside its parent when joined as a path.
func safeName(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}

	return !strings.ContainsAny(s, `/\`+"\x00") && filepath.Base(s) == s
}

// Dir is where the pages of one chapter language are stored.
func (d *Downloader) Dir(id, lang string) string {
	return filepath.Join(d.root, id, lang)
}

func (d *Downloader) Downloaded(c *manga.Chapter) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.manifest[c.ID][c.Lang]

	return ok
}

// Pages returns the local page paths of a downloaded chapter in page order.
func (d *Downloader) Pages(id, lang string) ([]string, bool) {
	d.mu.Lock()
	names, ok := d.manifest[id][lang]
	d.mu.Unlock()

	if !ok {
		return nil, false
	}

	dir := d.Dir(id, lang)
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}

	return paths, true
}

// Chapters lists downloaded chapters in natural id order.
func (d *Downloader) Chapters() []Key {
	d.mu.Lock()
	defer d.mu.Unlock()

	var keys []Key
	for id, langs := range d.manifest {
		for lang := range langs {
			keys = append(keys, Key{ID: id, Lang: lang})
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ID != keys[j].ID {
			return natural.Less(keys[i].ID, keys[j].ID)
		}
		return keys[i].Lang < keys[j].Lang
	})

	return keys
}

// Bytes is the number of page bytes written since the downloader was created.
func (d *Downloader) Bytes() int64 {
	return d.bytes.Load()
}

type result struct {
	index int
	name  string
}

// Download fetches every page of c. A chapter already in the manifest is
// skipped unless force is set, in which case it is removed and fetched again.
func (d *Downloader) Download(ctx context.Context, c *manga.Chapter, force bool, onProgress ProgressFunc) error {
	if len(c.Pages) == 0 {
		return NoPagesError{ChapterID: c.ID, Lang: c.Lang}
	}
	for _, seg := range []string{c.ID, c.Lang} {
		if !safeName(seg) {
			return fmt.Errorf("downloader: %w: %q", ErrUnsafeName, seg)
		}
	}

	key := Key{ID: c.ID, Lang: c.Lang}
	log := d.log.WithFields(logrus.Fields{"chapter": c.ID, "lang": c.Lang})

	d.mu.Lock()
	if _, ok := d.manifest[c.ID][c.Lang]; ok && !force {
		d.mu.Unlock()
		log.Debug("already downloaded")
		return nil
	}
	if _, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		return ErrInFlight
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.inflight, key)
		d.mu.Unlock()
	}()

	dir := d.Dir(c.ID, c.Lang)

	if force {
		if err := d.forget(key); err != nil {
			return err
		}
		if err := d.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("downloader: %w", err)
		}
	}

	if err := d.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("downloader: %w", err)
	}

	names, err := d.fetchAll(ctx, c, dir, log, onProgress)
	if err != nil {
		if rerr := d.fs.RemoveAll(dir); rerr != nil {
			log.WithError(rerr).Error("failed to remove partial chapter")
		}
		d.removeIfEmpty(filepath.Dir(dir))
		log.WithError(err).Warn("chapter rolled back")

		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.manifest[c.ID] == nil {
		d.manifest[c.ID] = map[string][]string{}
	}
	d.manifest[c.ID][c.Lang] = names

	if err := d.saveManifest(); err != nil {
		return err
	}

	log.WithField("pages", len(names)).Info("chapter downloaded")

	return nil
}

// fetchAll runs one fetch per page on a bounded pool. The first failure
// cancels the remaining fetches. Names are returned in page order.
func (d *Downloader) fetchAll(
	ctx context.Context,
	c *manga.Chapter,
	dir string,
	log logrus.FieldLogger,
	onProgress ProgressFunc,
) ([]string, error) {
	total := len(c.Pages)
	workers := min(d.opts.Workers, total)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var written atomic.Int64
	progress := func(delta int64) {
		written.Add(delta)
		d.bytes.Add(delta)
	}

	results := make(chan result)
	var waitErr error

	go func() {
		for i, url := range c.Pages {
			i, url := i, url

			if gctx.Err() != nil {
				break
			}

			g.Go(func() error {
				log.WithFields(logrus.Fields{"page": i, "url": url}).Debug("fetching page")

				name, err := d.fetch(gctx, url, dir, strconv.Itoa(i), progress)
				if err != nil {
					return err
				}

				results <- result{index: i, name: name}

				return nil
			})
		}

		waitErr = g.Wait()
		close(results)
	}()

	names := make([]string, total)
	done := 0
	for r := range results {
		names[r.index] = r.name
		done++
		if onProgress != nil {
			onProgress(done, total, written.Load())
		}
	}

	if waitErr != nil {
		return nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if done != total {
		return nil, fmt.Errorf("downloader: %d of %d pages fetched", done, total)
	}

	return names, nil
}

// forget drops the manifest entry for key.
func (d *Downloader) forget(key Key) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.manifest[key.ID][key.Lang]; !ok {
		return nil
	}

	delete(d.manifest[key.ID], key.Lang)
	if len(d.manifest[key.ID]) == 0 {
		delete(d.manifest, key.ID)
	}

	return d.saveManifest()
}

func (d *Downloader) removeIfEmpty(dir string) {
	entries, err := afero.ReadDir(d.fs, dir)
	if err != nil || len(entries) > 0 {
		return
	}

	_ = d.fs.Remove(dir)
}

// Close writes the manifest.
func (d *Downloader) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.saveManifest()
}
