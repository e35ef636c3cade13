package generic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var (
	reJSVar  = regexp.MustCompile(`(?m)(?:var|let|const)\s+([A-Za-z0-9_]+)\s*=\s*["']?([\w\-/.]+)["']?;`)
	reJSPath = regexp.MustCompile(`["'](/[A-Za-z0-9/\-._]+)["']`)
	reJSCall = regexp.MustCompile(`(?:fetch|axios|post|get)\s*\(\s*["']([^"']+)["']`)
)

func looksLikeHTML(s string) bool {
	for _, tag := range []string{"<img", "<a", "<div", "<picture", "<source"} {
		if strings.Contains(s, tag) {
			return true
		}
	}

	return false
}

// scriptHints is what inline scripts reveal about where pages may be loaded from.
type scriptHints struct {
	vars  map[string]string
	paths []string
	calls []string
}

func analyzeJS(js string) scriptHints {
	h := scriptHints{vars: map[string]string{}}

	for _, m := range reJSVar.FindAllStringSubmatch(js, -1) {
		h.vars[m[1]] = m[2]
	}
	for _, m := range reJSPath.FindAllStringSubmatch(js, -1) {
		h.paths = append(h.paths, m[1])
	}
	for _, m := range reJSCall.FindAllStringSubmatch(js, -1) {
		h.calls = append(h.calls, m[1])
	}

	return h
}

// endpoints combines chapter-looking path prefixes with id-like variables
// and adds every literal fetch target.
func (h scriptHints) endpoints() []string {
	var out []string

	for _, base := range h.paths {
		if !strings.Contains(base, "chap") || !strings.HasSuffix(base, "/") {
			continue
		}
		for key, val := range h.vars {
			if strings.Contains(strings.ToLower(key), "id") {
				out = append(out, base+val)
			}
		}
	}

	return lo.Uniq(append(out, h.calls...))
}

func (p *Parser) probe(ctx context.Context, chapterURL string, hints scriptHints, col *collector, log logrus.FieldLogger) {
	candidates := hints.endpoints()
	log.WithField("endpoints", candidates).Debug("probing script endpoints")

	for _, path := range candidates {
		target := resolve(chapterURL, path)

		body, ok := p.xhr(ctx, http.MethodPost, target)
		if !ok {
			body, ok = p.xhr(ctx, http.MethodGet, target)
		}
		if !ok {
			continue
		}

		if !strings.HasPrefix(strings.TrimSpace(body), "{") {
			continue
		}

		var obj map[string]any
		if err := json.Unmarshal([]byte(body), &obj); err == nil {
			col.scanTree(obj, chapterURL)
		}
	}
}

func (p *Parser) xhr(ctx context.Context, method, target string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WithError(err).WithField("url", target).Debug("probe failed")
		return "", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", false
	}

	return string(b), true
}
