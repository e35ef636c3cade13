package manga

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultVolume   = "0"
	DefaultLanguage = "en"
)

// Chapter is one chapter of a work in one language.
//
// Pages is nil until the chapter has been parsed. A parsed chapter with no
// pages holds an empty, non-nil slice; JSON keeps the two apart as null and [].
type Chapter struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Title  string   `json:"title"`
	Volume string   `json:"volume"`
	Lang   string   `json:"lang"`
	Pages  []string `json:"pages"`
}

func NewChapter(id, url string) *Chapter {
	return &Chapter{
		ID:     id,
		URL:    url,
		Volume: DefaultVolume,
		Lang:   DefaultLanguage,
	}
}

// Parsed reports whether page URLs have been assigned.
func (c *Chapter) Parsed() bool {
	return c.Pages != nil
}

// SetPages assigns the page list, storing an empty slice for nil so the
// chapter counts as parsed.
func (c *Chapter) SetPages(pages []string) {
	if pages == nil {
		pages = []string{}
	}
	c.Pages = pages
}

func (c *Chapter) fillDefaults() {
	if c.Volume == "" {
		c.Volume = DefaultVolume
	}
	if c.Lang == "" {
		c.Lang = DefaultLanguage
	}
}

var reUnderscore = regexp.MustCompile(`_+`)

func sanitize(s string) string {
	s = strings.ToLower(s)

	repl := strings.NewReplacer(
		"•", "_",
		"-", "_",
		"—", "_",
		"–", "_",
		"/", "_",
		"\\", "_",
		".", "_",
		" ", "_",
		"(", "",
		")", "",
	)
	s = repl.Replace(s)

	clean := make([]rune, 0, len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			clean = append(clean, r)
		}
	}

	return strings.Trim(reUnderscore.ReplaceAllString(string(clean), "_"), "_")
}

func (c *Chapter) baseName() string {
	id := sanitize(c.ID)
	title := sanitize(c.Title)

	name := id
	if title != "" && title != id {
		name = id + "_" + title
	}

	return name + "_" + c.Lang
}

// OutputCBZ is the archive filename used when packing this chapter.
func (c *Chapter) OutputCBZ() string {
	return c.baseName() + ".cbz"
}

func (c *Chapter) OutputCBZPath(out string) string {
	return filepath.Join(out, c.OutputCBZ())
}
