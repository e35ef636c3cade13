// Package sources defines the capability set a site parser provides and a
// registry that dispatches URLs to parsers by pattern.
package sources

import (
	"context"
	"fmt"

	"github.com/brogergvhs/tankobon/internal/manga"
)

// Parser turns a site's pages into manga data.
//
// AddChapters must call Manga.Add for every chapter it discovers instead of
// replacing the chapter map. AddPages must leave chapter pages non-nil on
// success, even when the chapter has no pages.
type Parser interface {
	Name() string
	Metadata(ctx context.Context, url string) (manga.Metadata, error)
	AddChapters(ctx context.Context, m *manga.Manga) error
	AddPages(ctx context.Context, c *manga.Chapter) error
}

type UnknownSourceError struct {
	URL string
}

func (e UnknownSourceError) Error() string {
	return fmt.Sprintf("no source found for url %q", e.URL)
}

// Create builds a new work for url with freshly parsed metadata and no chapters.
func Create(ctx context.Context, p Parser, url string) (*manga.Manga, error) {
	meta, err := p.Metadata(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: metadata: %w", p.Name(), err)
	}

	meta.SetURL(url)
	meta.Normalize()

	return manga.New(meta), nil
}

// Refresh re-parses metadata and adds new chapters. When pages is set, every
// chapter whose pages are still nil is parsed as well. Existing chapters and
// their page lists are left untouched.
func Refresh(ctx context.Context, p Parser, m *manga.Manga, pages bool) error {
	meta, err := p.Metadata(ctx, m.Meta.URL)
	if err != nil {
		return fmt.Errorf("%s: metadata: %w", p.Name(), err)
	}
	refreshMetadata(&m.Meta, meta)

	if err := p.AddChapters(ctx, m); err != nil {
		return fmt.Errorf("%s: chapters: %w", p.Name(), err)
	}

	if !pages {
		return nil
	}

	for _, id := range m.SortedIDs() {
		for _, c := range m.Chapters[id] {
			if c.Parsed() {
				continue
			}
			if err := p.AddPages(ctx, c); err != nil {
				return fmt.Errorf("%s: pages of chapter %s (%s): %w", p.Name(), c.ID, c.Lang, err)
			}
		}
	}

	return nil
}

// refreshMetadata copies parsed fields into dst, keeping its URL and hash.
func refreshMetadata(dst *manga.Metadata, src manga.Metadata) {
	src.Normalize()

	dst.Title = src.Title
	dst.AltTitles = src.AltTitles
	dst.Authors = src.Authors
	dst.Genres = src.Genres
	dst.Description = src.Description
	dst.Cover = src.Cover
}
