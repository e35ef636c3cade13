package downloader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/brogergvhs/tankobon/internal/manga"
)

const coverName = "cover"

// DownloadCover stores the cover image next to the chapter directories and
// returns its path. An existing cover is reused unless force is set.
func (d *Downloader) DownloadCover(ctx context.Context, url string, force bool) (string, error) {
	existing, err := afero.Glob(d.fs, filepath.Join(d.root, coverName+".*"))
	if err != nil {
		return "", fmt.Errorf("downloader: %w", err)
	}

	if len(existing) > 0 && !force {
		return existing[0], nil
	}

	for _, p := range existing {
		if err := d.fs.Remove(p); err != nil {
			return "", fmt.Errorf("downloader: %w", err)
		}
	}

	name, err := d.fetch(ctx, url, d.root, coverName, func(delta int64) { d.bytes.Add(delta) })
	if err != nil {
		return "", err
	}

	d.log.WithField("url", url).Info("cover downloaded")

	return filepath.Join(d.root, name), nil
}

// Paginate downloads each chapter in turn and returns every local page path
// in chapter then page order. onProgress receives chapters done and total.
func (d *Downloader) Paginate(ctx context.Context, chapters []*manga.Chapter, onProgress func(done, total int)) ([]string, error) {
	var pages []string

	for i, c := range chapters {
		if err := d.Download(ctx, c, false, nil); err != nil {
			return nil, fmt.Errorf("chapter %s (%s): %w", c.ID, c.Lang, err)
		}

		paths, _ := d.Pages(c.ID, c.Lang)
		pages = append(pages, paths...)

		if onProgress != nil {
			onProgress(i+1, len(chapters))
		}
	}

	return pages, nil
}

// Prune removes chapter directories that have no manifest entry, such as
// those left behind by a killed process. It returns the removed paths.
func (d *Downloader) Prune() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids, err := afero.ReadDir(d.fs, d.root)
	if err != nil {
		return nil, fmt.Errorf("downloader: %w", err)
	}

	var removed []string
	for _, idEntry := range ids {
		if !idEntry.IsDir() {
			continue
		}
		id := idEntry.Name()
		idDir := filepath.Join(d.root, id)

		langs, err := afero.ReadDir(d.fs, idDir)
		if err != nil {
			return removed, fmt.Errorf("downloader: %w", err)
		}

		for _, langEntry := range langs {
			lang := langEntry.Name()
			if _, ok := d.manifest[id][lang]; ok {
				continue
			}
			if _, ok := d.inflight[Key{ID: id, Lang: lang}]; ok {
				continue
			}

			full := filepath.Join(idDir, lang)
			if err := d.fs.RemoveAll(full); err != nil {
				return removed, fmt.Errorf("downloader: %w", err)
			}

			d.log.WithField("path", full).Warn("removed unfinished chapter")
			removed = append(removed, full)
		}

		d.removeIfEmpty(idDir)
	}

	return removed, nil
}
