package manga

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"unicode"
)

// ShortHashLen is the number of leading hash characters accepted as a
// shorthand for a work.
const ShortHashLen = 8

// Metadata describes one work. The hash is derived from URL on first use and
// never changes afterwards, including across JSON round trips.
type Metadata struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	AltTitles   []string          `json:"alt_titles"`
	Authors     []string          `json:"authors"`
	Genres      []string          `json:"genres"`
	Description map[string]string `json:"desc"`
	Cover       string            `json:"cover"`

	hash string
}

func NewMetadata(url string) Metadata {
	return Metadata{
		URL:         url,
		AltTitles:   []string{},
		Authors:     []string{},
		Genres:      []string{},
		Description: map[string]string{},
	}
}

func (m *Metadata) Hash() string {
	if m.hash == "" {
		m.hash = hashURL(m.URL)
	}

	return m.hash
}

// SetURL changes the URL and drops any hash derived from the old one.
func (m *Metadata) SetURL(url string) {
	m.URL = url
	m.hash = ""
}

func (m *Metadata) ShortHash() string {
	return m.Hash()[:ShortHashLen]
}

// Normalize sanitizes genres and description text in place.
func (m *Metadata) Normalize() {
	for i, g := range m.Genres {
		m.Genres[i] = sanitizeGenre(g)
	}

	for lang, d := range m.Description {
		m.Description[lang] = strings.ReplaceAll(strings.TrimSpace(d), "\r\n", "\n")
	}
}

// Desc returns the description in lang, falling back to English.
func (m *Metadata) Desc(lang string) string {
	if d, ok := m.Description[lang]; ok {
		return d
	}

	return m.Description[DefaultLanguage]
}

type metadataJSON struct {
	plainMetadata
	Hash string `json:"hash"`
}

type plainMetadata Metadata

func (m Metadata) MarshalJSON() ([]byte, error) {
	h := m.hash
	if h == "" {
		h = hashURL(m.URL)
	}

	return json.Marshal(metadataJSON{plainMetadata: plainMetadata(m), Hash: h})
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = Metadata(raw.plainMetadata)
	m.hash = raw.Hash
	if m.Description == nil {
		m.Description = map[string]string{}
	}

	return nil
}

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))

	return hex.EncodeToString(sum[:])
}

func sanitizeGenre(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsSpace(r) || r == '-':
			b.WriteRune('_')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		}
	}

	return b.String()
}
