package generic

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type chapterRef struct {
	ID     string
	Volume string
}

var (
	reHrefChapter = regexp.MustCompile(`chapter[_\-]?0*(\d+)(?:[_\-.](\d+))?`)
	reHrefVolume  = regexp.MustCompile(`vol(?:ume)?[_\-]?(\d+)[/_\-]ch[_\-]?(\d+(?:\.\d+)?)`)
	reHrefShort   = regexp.MustCompile(`(?:^|[/\-_])ch[_\-]?(\d+(?:\.\d+)?)`)
	reTextChapter = regexp.MustCompile(`(?i)(?:vol(?:ume)?\.?\s*(\d+)\s*)?(?:chapter|ch\.?)\s*0*(\d+(?:\.\d+)?)`)
	reTextPrefix  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*[.\- ]`)
)

// parseChapterRef recognises a chapter link by its href, then by its label.
func parseChapterRef(href, text string) (chapterRef, bool) {
	h := strings.ToLower(href)

	if strings.Contains(h, "/u/") || strings.Contains(h, "batolists") {
		return chapterRef{}, false
	}

	if m := reHrefVolume.FindStringSubmatch(h); m != nil {
		return chapterRef{ID: trimNumber(m[2]), Volume: trimNumber(m[1])}, true
	}

	if m := reHrefChapter.FindStringSubmatch(h); m != nil {
		id := trimNumber(m[1])
		if m[2] != "" {
			id += "." + m[2]
		}
		return chapterRef{ID: id}, true
	}

	if m := reHrefShort.FindStringSubmatch(h); m != nil {
		return chapterRef{ID: trimNumber(m[1])}, true
	}

	if !looksLikeChapterHref(h) {
		return chapterRef{}, false
	}

	if m := reTextChapter.FindStringSubmatch(text); m != nil {
		return chapterRef{ID: trimNumber(m[2]), Volume: trimNumber(m[1])}, true
	}

	if m := reTextPrefix.FindStringSubmatch(text); m != nil {
		return chapterRef{ID: trimNumber(m[1])}, true
	}

	return chapterRef{}, false
}

// looksLikeChapterHref accepts links whose path is deeper than the site root,
// so navigation links with a chapter-like label are still considered.
func looksLikeChapterHref(h string) bool {
	u, err := url.Parse(h)
	if err != nil {
		return false
	}

	return strings.Trim(u.Path, "/") != "" && !strings.HasPrefix(h, "javascript:")
}

// trimNumber drops leading zeros from the integer part ("007" -> "7").
func trimNumber(s string) string {
	if s == "" {
		return ""
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if n, err := strconv.Atoi(whole); err == nil {
		whole = strconv.Itoa(n)
	}

	if hasFrac {
		return whole + "." + frac
	}

	return whole
}
