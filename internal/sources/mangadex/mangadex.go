// Package mangadex reads works from the MangaDex JSON API.
package mangadex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/sources"
)

const (
	Pattern = `mangadex\.org/title/([a-fA-F0-9\-]+)`

	DefaultAPI     = "https://api.mangadex.org"
	DefaultUploads = "https://uploads.mangadex.org"
	ChapterURL     = "https://mangadex.org/chapter/"

	feedLimit = 500
)

var (
	reTitle   = regexp.MustCompile(Pattern)
	reChapter = regexp.MustCompile(`/chapter/([a-fA-F0-9\-]+)`)
)

type Options struct {
	API     string
	Uploads string
}

type Parser struct {
	client *http.Client
	opts   Options
	log    logrus.FieldLogger
}

func New(c *http.Client, opts Options, log logrus.FieldLogger) *Parser {
	if opts.API == "" {
		opts.API = DefaultAPI
	}
	if opts.Uploads == "" {
		opts.Uploads = DefaultUploads
	}

	return &Parser{client: c, opts: opts, log: log.WithField("source", "mangadex")}
}

func (p *Parser) Name() string {
	return "mangadex"
}

type relationship struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name     string `json:"name"`
		FileName string `json:"fileName"`
	} `json:"attributes"`
}

type mangaData struct {
	ID         string `json:"id"`
	Attributes struct {
		Title       map[string]string   `json:"title"`
		AltTitles   []map[string]string `json:"altTitles"`
		Description map[string]string   `json:"description"`
		Tags        []struct {
			Attributes struct {
				Name map[string]string `json:"name"`
			} `json:"attributes"`
		} `json:"tags"`
	} `json:"attributes"`
	Relationships []relationship `json:"relationships"`
}

type chapterData struct {
	ID         string `json:"id"`
	Attributes struct {
		Title    *string `json:"title"`
		Volume   *string `json:"volume"`
		Chapter  *string `json:"chapter"`
		Language string  `json:"translatedLanguage"`
	} `json:"attributes"`
}

type feed struct {
	Data   []chapterData `json:"data"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
	Total  int           `json:"total"`
}

type atHome struct {
	BaseURL string `json:"baseUrl"`
	Chapter struct {
		Hash string   `json:"hash"`
		Data []string `json:"data"`
	} `json:"chapter"`
}

func mangaID(u string) (string, error) {
	m := reTitle.FindStringSubmatch(u)
	if m == nil {
		return "", fmt.Errorf("no manga id in %q", u)
	}

	return m[1], nil
}

// firstTitle prefers English, then any language in sorted order.
func firstTitle(titles map[string]string) string {
	if t, ok := titles[manga.DefaultLanguage]; ok {
		return t
	}

	keys := lo.Keys(titles)
	if len(keys) == 0 {
		return ""
	}

	return titles[lo.Min(keys)]
}

func (p *Parser) Metadata(ctx context.Context, u string) (manga.Metadata, error) {
	id, err := mangaID(u)
	if err != nil {
		return manga.Metadata{}, err
	}

	q := url.Values{}
	q.Add("includes[]", "author")
	q.Add("includes[]", "cover_art")

	var resp struct {
		Data mangaData `json:"data"`
	}
	if err := sources.JSON(ctx, p.client, p.opts.API+"/manga/"+id+"?"+q.Encode(), &resp); err != nil {
		return manga.Metadata{}, err
	}

	attrs := resp.Data.Attributes
	meta := manga.NewMetadata(u)
	meta.Title = firstTitle(attrs.Title)

	for _, alt := range attrs.AltTitles {
		meta.AltTitles = append(meta.AltTitles, lo.Values(alt)...)
	}

	for _, tag := range attrs.Tags {
		if name := firstTitle(tag.Attributes.Name); name != "" {
			meta.Genres = append(meta.Genres, name)
		}
	}

	for lang, d := range attrs.Description {
		meta.Description[lang] = d
	}

	for _, rel := range resp.Data.Relationships {
		switch rel.Type {
		case "author":
			if rel.Attributes.Name != "" && !lo.Contains(meta.Authors, rel.Attributes.Name) {
				meta.Authors = append(meta.Authors, rel.Attributes.Name)
			}
		case "cover_art":
			if rel.Attributes.FileName != "" {
				meta.Cover = fmt.Sprintf("%s/covers/%s/%s", p.opts.Uploads, id, rel.Attributes.FileName)
			}
		}
	}

	return meta, nil
}

// AddChapters walks the whole feed. Every translated language is added;
// chapters without a number are stored as "0".
func (p *Parser) AddChapters(ctx context.Context, m *manga.Manga) error {
	id, err := mangaID(m.Meta.URL)
	if err != nil {
		return err
	}

	added := 0
	for offset := 0; ; {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(feedLimit))
		q.Set("offset", fmt.Sprint(offset))
		q.Set("order[chapter]", "asc")

		var page feed
		if err := sources.JSON(ctx, p.client, p.opts.API+"/manga/"+id+"/feed?"+q.Encode(), &page); err != nil {
			return err
		}

		for _, d := range page.Data {
			c := manga.NewChapter(deref(d.Attributes.Chapter, "0"), ChapterURL+d.ID)
			c.Title = deref(d.Attributes.Title, "")
			c.Volume = deref(d.Attributes.Volume, manga.DefaultVolume)
			c.Lang = strings.ToLower(d.Attributes.Language)

			if m.Add(c) {
				added++
			}
		}

		offset += len(page.Data)
		if len(page.Data) == 0 || offset >= page.Total {
			break
		}
	}

	p.log.WithFields(logrus.Fields{"manga": id, "added": added}).Debug("feed parsed")

	return nil
}

func (p *Parser) AddPages(ctx context.Context, c *manga.Chapter) error {
	m := reChapter.FindStringSubmatch(c.URL)
	if m == nil {
		return fmt.Errorf("no chapter id in %q", c.URL)
	}

	var server atHome
	if err := sources.JSON(ctx, p.client, p.opts.API+"/at-home/server/"+m[1], &server); err != nil {
		return err
	}

	pages := make([]string, len(server.Chapter.Data))
	for i, name := range server.Chapter.Data {
		pages[i] = fmt.Sprintf("%s/data/%s/%s", server.BaseURL, server.Chapter.Hash, name)
	}

	c.SetPages(pages)

	return nil
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}

	return *s
}
