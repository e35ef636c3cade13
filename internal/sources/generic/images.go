package generic

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	reImageURL   = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|webp)$`)
	reSizeSuffix = regexp.MustCompile(`[-_](\d{2,5})x(\d{2,5})`)
	reBackground = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)
	reLooseURL   = regexp.MustCompile(`https?://[^\s"'<>]+`)

	nonPageWords = []string{"logo", "cover", "profile", "avatar", "banner"}
	srcAttrs     = []string{"src", "data-src", "data-lazy-src", "data-original"}
)

func extensionPattern(exts []string) *regexp.Regexp {
	var clean []string
	for _, e := range exts {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			clean = append(clean, regexp.QuoteMeta(e))
		}
	}

	if len(clean) == 0 {
		return regexp.MustCompile(`$^`)
	}

	return regexp.MustCompile(`(?i)\.(` + strings.Join(clean, "|") + `)$`)
}

func resolve(base, raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	if u.IsAbs() {
		return u.String()
	}

	b, err := url.Parse(base)
	if err != nil {
		return raw
	}

	return b.ResolveReference(u).String()
}

// candidate is an image URL with the page index hinted by the markup, if
// any, and the order it was found in.
type candidate struct {
	url   string
	index int
	order int
}

type collector struct {
	allowed *regexp.Regexp
	found   []candidate
	seen    map[string]bool
}

func newCollector(allowed *regexp.Regexp) *collector {
	return &collector{allowed: allowed, seen: map[string]bool{}}
}

func (c *collector) add(raw string, index int) bool {
	lower := strings.ToLower(raw)

	switch {
	case raw == "", strings.HasPrefix(lower, "data:"), strings.HasPrefix(lower, "javascript:"):
		return false
	case !c.allowed.MatchString(stripQuery(lower)):
		return false
	case c.seen[raw]:
		return false
	}

	for _, w := range nonPageWords {
		if strings.Contains(lower, w) {
			return false
		}
	}

	c.seen[raw] = true
	c.found = append(c.found, candidate{url: raw, index: index, order: len(c.found)})

	return true
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// dataIndex reads a data-index from the element or its closest ancestor.
func dataIndex(sel *goquery.Selection) int {
	for _, s := range []*goquery.Selection{sel, sel.ParentsFiltered("[data-index]").First()} {
		if v, ok := s.Attr("data-index"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}

	return -1
}

func (c *collector) addSrcset(srcset, base string, index int) int {
	n := 0
	for _, entry := range strings.Split(srcset, ",") {
		if fields := strings.Fields(entry); len(fields) > 0 && c.add(resolve(base, fields[0]), index) {
			n++
		}
	}

	return n
}

func (c *collector) scanImages(root *goquery.Selection, base string) int {
	n := 0
	root.Find("img").Each(func(_ int, img *goquery.Selection) {
		idx := dataIndex(img)

		if ss, ok := img.Attr("srcset"); ok {
			n += c.addSrcset(ss, base, idx)
		}

		for _, k := range srcAttrs {
			if v, ok := img.Attr(k); ok && strings.TrimSpace(v) != "" && c.add(resolve(base, v), idx) {
				n++
			}
		}
	})

	return n
}

func (c *collector) scanSources(root *goquery.Selection, base string) int {
	n := 0
	root.Find("source[srcset]").Each(func(_ int, s *goquery.Selection) {
		ss, _ := s.Attr("srcset")
		n += c.addSrcset(ss, base, dataIndex(s))
	})

	return n
}

func (c *collector) scanAnchors(root *goquery.Selection, base string) int {
	n := 0
	root.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if c.add(resolve(base, href), dataIndex(a)) {
			n++
		}
	})

	return n
}

func (c *collector) scanBackgrounds(root *goquery.Selection, base string) int {
	n := 0
	root.Find("[style]").Each(func(_ int, el *goquery.Selection) {
		style, _ := el.Attr("style")
		if !strings.Contains(strings.ToLower(style), "background-image") {
			return
		}

		idx := dataIndex(el)
		for _, m := range reBackground.FindAllStringSubmatch(style, -1) {
			if c.add(resolve(base, m[1]), idx) {
				n++
			}
		}
	})

	return n
}

// scanTree walks decoded JSON state for absolute image URLs and embedded
// HTML fragments.
func (c *collector) scanTree(v any, base string) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		lower := strings.ToLower(s)

		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			if reImageURL.MatchString(stripQuery(lower)) {
				c.add(s, -1)
			}
			return
		}

		if looksLikeHTML(s) {
			if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
				c.scanImages(doc.Selection, base)
				c.scanSources(doc.Selection, base)
				c.scanBackgrounds(doc.Selection, base)
			}
		}
	case []any:
		for _, x := range t {
			c.scanTree(x, base)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			c.scanTree(t[k], base)
		}
	}
}

func (c *collector) scanLoose(body string) {
	for _, u := range reLooseURL.FindAllString(body, -1) {
		c.add(u, -1)
	}
}

// sizeKey strips a WxH suffix so resized copies of one page share a key.
func sizeKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	ext := path.Ext(u.Path)
	base := reSizeSuffix.ReplaceAllString(strings.TrimSuffix(u.Path, ext), "")

	return u.Host + strings.TrimRight(base, "-_") + ext
}

func area(raw string) int {
	m := reSizeSuffix.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}

	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])

	return w * h
}

// pages keeps one URL per page, preferring the unsized original and then the
// largest variant, and orders them by data-index, then discovery order.
func (c *collector) pages() []string {
	groups := map[string][]candidate{}
	var keys []string

	for _, cand := range c.found {
		k := sizeKey(cand.url)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], cand)
	}

	chosen := make([]candidate, 0, len(keys))
	for _, k := range keys {
		chosen = append(chosen, best(groups[k]))
	}

	sort.SliceStable(chosen, func(i, j int) bool {
		a, b := chosen[i], chosen[j]
		switch {
		case a.index >= 0 && b.index >= 0 && a.index != b.index:
			return a.index < b.index
		case a.index >= 0 && b.index < 0:
			return true
		case a.index < 0 && b.index >= 0:
			return false
		}
		return a.order < b.order
	})

	out := make([]string, len(chosen))
	for i, cand := range chosen {
		out[i] = cand.url
	}

	return out
}

// best picks the group's URL and gives it the group's smallest index and
// earliest order.
func best(group []candidate) candidate {
	pick := group[0]
	for _, cand := range group[1:] {
		pickSized, candSized := area(pick.url) > 0, area(cand.url) > 0
		if pickSized && (!candSized || area(cand.url) > area(pick.url)) {
			pick = cand
		}
	}

	out := candidate{url: pick.url, index: -1, order: group[0].order}
	for _, cand := range group {
		if cand.index >= 0 && (out.index < 0 || cand.index < out.index) {
			out.index = cand.index
		}
	}

	return out
}
