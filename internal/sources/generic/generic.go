package generic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/sources"
)

var DefaultExtensions = []string{"jpg", "jpeg", "png", "webp"}

var reNuxt = regexp.MustCompile(`window\.__NUXT__\s*=\s*(\{.*?});`)

var ErrNoImages = errors.New("no usable images found")

type Options struct {
	Extensions []string
	CheckJS    bool
}

type Parser struct {
	client  *http.Client
	log     logrus.FieldLogger
	allowed *regexp.Regexp
	checkJS bool
}

func New(c *http.Client, opts Options, log logrus.FieldLogger) *Parser {
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}

	return &Parser{
		client:  c,
		log:     log.WithField("source", "generic"),
		allowed: extensionPattern(exts),
		checkJS: opts.CheckJS,
	}
}

func (p *Parser) Name() string {
	return "generic"
}

func attr(doc *goquery.Document, selector, name string) string {
	v, _ := doc.Find(selector).First().Attr(name)
	return strings.TrimSpace(v)
}

func (p *Parser) Metadata(ctx context.Context, url string) (manga.Metadata, error) {
	doc, err := sources.Document(ctx, p.client, url)
	if err != nil {
		return manga.Metadata{}, err
	}

	meta := manga.NewMetadata(url)

	meta.Title = attr(doc, `meta[property="og:title"]`, "content")
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	desc := attr(doc, `meta[property="og:description"]`, "content")
	if desc == "" {
		desc = attr(doc, `meta[name="description"]`, "content")
	}
	if desc != "" {
		meta.Description[manga.DefaultLanguage] = desc
	}

	if cover := attr(doc, `meta[property="og:image"]`, "content"); cover != "" {
		meta.Cover = resolve(url, cover)
	}

	return meta, nil
}

func (p *Parser) AddChapters(ctx context.Context, m *manga.Manga) error {
	doc, err := sources.Document(ctx, p.client, m.Meta.URL)
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	added := 0

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		text := strings.TrimSpace(a.Text())

		ref, ok := parseChapterRef(href, text)
		if !ok {
			return
		}

		u := resolve(m.Meta.URL, href)
		if seen[u] {
			return
		}
		seen[u] = true

		c := manga.NewChapter(ref.ID, u)
		c.Title = text
		if ref.Volume != "" {
			c.Volume = ref.Volume
		}

		if m.Add(c) {
			added++
		}
	})

	p.log.WithFields(logrus.Fields{"url": m.Meta.URL, "added": added}).Debug("chapters parsed")

	return nil
}

func (p *Parser) AddPages(ctx context.Context, c *manga.Chapter) error {
	body, err := sources.Body(ctx, p.client, c.URL)
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return err
	}

	log := p.log.WithField("chapter", c.URL)
	col := newCollector(p.allowed)

	log.WithFields(logrus.Fields{
		"img":        col.scanImages(doc.Selection, c.URL),
		"picture":    col.scanSources(doc.Selection, c.URL),
		"anchor":     col.scanAnchors(doc.Selection, c.URL),
		"background": col.scanBackgrounds(doc.Selection, c.URL),
	}).Debug("dom candidates")

	if match := reNuxt.FindStringSubmatch(body); len(match) > 1 {
		var state map[string]any
		if json.Unmarshal([]byte(match[1]), &state) == nil {
			log.Debug("found embedded SSR state")
			col.scanTree(state, c.URL)
		}
	}

	col.scanLoose(body)

	if p.checkJS {
		var js strings.Builder
		doc.Find("script").Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				js.WriteString(t)
				js.WriteByte('\n')
			}
		})

		p.probe(ctx, c.URL, analyzeJS(js.String()), col, log)
	}

	pages := col.pages()
	if len(pages) == 0 {
		return ErrNoImages
	}

	c.SetPages(pages)

	return nil
}
