// Package mangakakalot parses manga pages of mangakakalot.com.
package mangakakalot

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/sources"
)

const Pattern = `mangakakalot\.com`

var reChapter = regexp.MustCompile(`.*[Cc]hapter ?([\d.]+) ?:? ?(.*)`)

type Parser struct {
	client *http.Client
	log    logrus.FieldLogger
}

func New(c *http.Client, log logrus.FieldLogger) *Parser {
	return &Parser{client: c, log: log.WithField("source", "mangakakalot")}
}

func (p *Parser) Name() string {
	return "mangakakalot"
}

func (p *Parser) Metadata(ctx context.Context, url string) (manga.Metadata, error) {
	doc, err := sources.Document(ctx, p.client, url)
	if err != nil {
		return manga.Metadata{}, err
	}

	meta := manga.NewMetadata(url)

	info := doc.Find(".manga-info-text li")
	if info.Length() == 0 {
		return meta, errors.New("manga info block not found")
	}

	first := info.First()
	meta.Title = strings.TrimSpace(first.Find("h1").Text())

	if _, alt, ok := strings.Cut(first.Find("h2").Text(), ":"); ok {
		for _, t := range strings.Split(alt, ",") {
			if t = strings.TrimSpace(t); t != "" {
				meta.AltTitles = append(meta.AltTitles, t)
			}
		}
	}

	info.Each(func(_ int, li *goquery.Selection) {
		label := strings.ToLower(li.Text())
		switch {
		case strings.HasPrefix(strings.TrimSpace(label), "author"):
			li.Find("a").Each(func(_ int, a *goquery.Selection) {
				meta.Authors = append(meta.Authors, strings.TrimSpace(a.Text()))
			})
		case strings.HasPrefix(strings.TrimSpace(label), "genres"):
			li.Find("a").Each(func(_ int, a *goquery.Selection) {
				meta.Genres = append(meta.Genres, a.Text())
			})
		}
	})

	desc := doc.Find("#panel-story-info-description, #noidungm").First()
	desc.Find("p").First().Remove()
	desc.Find("h3").Remove()
	meta.Description[manga.DefaultLanguage] = desc.Text()

	meta.Cover, _ = doc.Find("div.manga-info-pic img").Attr("src")

	return meta, nil
}

func (p *Parser) AddChapters(ctx context.Context, m *manga.Manga) error {
	doc, err := sources.Document(ctx, p.client, m.Meta.URL)
	if err != nil {
		return err
	}

	added := 0
	doc.Find("div.row span a").Each(func(_ int, a *goquery.Selection) {
		match := reChapter.FindStringSubmatch(a.Text())
		if match == nil {
			return
		}

		href, _ := a.Attr("href")

		c := manga.NewChapter(match[1], href)
		c.Title = strings.TrimSpace(match[2])

		if m.Add(c) {
			added++
		}
	})

	p.log.WithFields(logrus.Fields{"url": m.Meta.URL, "added": added}).Debug("chapters parsed")

	return nil
}

func (p *Parser) AddPages(ctx context.Context, c *manga.Chapter) error {
	doc, err := sources.Document(ctx, p.client, c.URL)
	if err != nil {
		return err
	}

	var pages []string
	doc.Find("div.container-chapter-reader img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		pages = append(pages, strings.TrimSpace(src))
	})

	c.SetPages(pages)

	return nil
}
