package manga

import (
	"encoding/json"
	"sort"

	"github.com/maruel/natural"
	"github.com/samber/lo"
)

// Manga is the aggregate root of a work: its metadata and a chapter tree
// keyed by chapter id, then language.
type Manga struct {
	Meta     Metadata                       `json:"meta"`
	Chapters map[string]map[string]*Chapter `json:"chapters"`
}

func New(meta Metadata) *Manga {
	return &Manga{
		Meta:     meta,
		Chapters: map[string]map[string]*Chapter{},
	}
}

// Info is derived from the chapter tree on every call.
type Info struct {
	Chapters  int
	Volumes   []string
	Languages []string
}

// Add inserts c unless a chapter with the same id and language exists.
// It reports whether c was inserted.
func (m *Manga) Add(c *Chapter) bool {
	c.fillDefaults()
	if m.Exists(c.ID, c.Lang) {
		return false
	}

	langs, ok := m.Chapters[c.ID]
	if !ok {
		langs = map[string]*Chapter{}
		m.Chapters[c.ID] = langs
	}
	langs[c.Lang] = c

	return true
}

func (m *Manga) Exists(id, lang string) bool {
	_, ok := m.Get(id, lang)

	return ok
}

func (m *Manga) Get(id, lang string) (*Chapter, bool) {
	c, ok := m.Chapters[id][lang]

	return c, ok
}

// Remove deletes one chapter language and drops the chapter id once it has
// no languages left.
func (m *Manga) Remove(id, lang string) (*Chapter, bool) {
	c, ok := m.Get(id, lang)
	if !ok {
		return nil, false
	}

	delete(m.Chapters[id], lang)
	if len(m.Chapters[id]) == 0 {
		delete(m.Chapters, id)
	}

	return c, true
}

// Parsed reports whether the work has at least one chapter.
func (m *Manga) Parsed() bool {
	return len(m.Chapters) > 0
}

// SortedIDs returns chapter ids in natural order ("2" before "10").
func (m *Manga) SortedIDs() []string {
	ids := lo.Keys(m.Chapters)
	sort.Sort(natural.StringSlice(ids))

	return ids
}

func (m *Manga) Info() Info {
	info := Info{}
	volumes := map[string]struct{}{}
	langs := map[string]struct{}{}

	for _, byLang := range m.Chapters {
		for lang, c := range byLang {
			info.Chapters++
			volumes[c.Volume] = struct{}{}
			langs[lang] = struct{}{}
		}
	}

	info.Volumes = lo.Keys(volumes)
	sort.Sort(natural.StringSlice(info.Volumes))
	info.Languages = lo.Keys(langs)
	sort.Strings(info.Languages)

	return info
}

func (m *Manga) UnmarshalJSON(b []byte) error {
	type plain Manga
	var raw plain
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*m = Manga(raw)
	if m.Chapters == nil {
		m.Chapters = map[string]map[string]*Chapter{}
	}

	return nil
}
