package manga

import (
	"fmt"
	"strings"
)

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}

	return s
}

// Summary renders a markdown table of volume, chapter and linked title for
// every chapter in lang, in natural chapter order.
func (m *Manga) Summary(lang string) string {
	return m.summary(lang, true)
}

// PlainSummary is Summary without chapter links.
func (m *Manga) PlainSummary(lang string) string {
	return m.summary(lang, false)
}

func (m *Manga) summary(lang string, link bool) string {
	var b strings.Builder
	b.WriteString("| volume | chapter | title\n")
	b.WriteString("|--------|---------|-------\n")

	for _, c := range m.All(lang) {
		title := orEmpty(c.Title)
		if link {
			title = fmt.Sprintf("[%s](%s)", title, c.URL)
		}

		fmt.Fprintf(&b, "| %-6s | %-7s | %s\n", orEmpty(c.Volume), orEmpty(c.ID), title)
	}

	return strings.TrimSuffix(b.String(), "\n")
}
