package manga

import (
	"slices"
	"strings"
)

// Select resolves a comma separated expression of chapter ids and
// inclusive "start-end" ranges, e.g. "1,3,5-8".
//
// Ids missing in lang are skipped, and a range whose start or end id is
// unknown or empty selects nothing, so the result may be shorter than requested.
func (m *Manga) Select(expr, lang string) []*Chapter {
	out := []*Chapter{}

	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		if start, end, ok := strings.Cut(tok, "-"); ok {
			start, end = strings.TrimSpace(start), strings.TrimSpace(end)
			if start == "" || end == "" {
				continue
			}
			out = append(out, m.Slice(start, end, lang)...)
			continue
		}

		if c, ok := m.Get(tok, lang); ok {
			out = append(out, c)
		}
	}

	return out
}

// Slice returns chapters from start to end inclusive in natural order.
// An empty end runs to the last chapter.
func (m *Manga) Slice(start, end, lang string) []*Chapter {
	ids := m.SortedIDs()

	from := slices.Index(ids, start)
	if from < 0 {
		return []*Chapter{}
	}

	to := len(ids)
	if end != "" {
		rel := slices.Index(ids[from:], end)
		if rel < 0 {
			return []*Chapter{}
		}
		to = from + rel + 1
	}

	return m.collect(ids[from:to], lang)
}

// All returns every chapter available in lang in natural order.
func (m *Manga) All(lang string) []*Chapter {
	return m.collect(m.SortedIDs(), lang)
}

func (m *Manga) collect(ids []string, lang string) []*Chapter {
	out := []*Chapter{}
	for _, id := range ids {
		if c, ok := m.Chapters[id][lang]; ok {
			out = append(out, c)
		}
	}

	return out
}
