package sources

import (
	"fmt"
	"regexp"

	"github.com/samber/lo"
)

type entry struct {
	pattern *regexp.Regexp
	parser  Parser
}

// Registry holds parsers in registration order.
type Registry struct {
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds p for URLs matching pattern.
func (r *Registry) Register(pattern string, p Parser) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("register %s: %w", p.Name(), err)
	}

	r.entries = append(r.entries, entry{pattern: re, parser: p})

	return nil
}

func (r *Registry) MustRegister(pattern string, p Parser) {
	if err := r.Register(pattern, p); err != nil {
		panic(err)
	}
}

// ByURL returns the first registered parser whose pattern matches url.
func (r *Registry) ByURL(url string) (Parser, error) {
	for _, e := range r.entries {
		if e.pattern.MatchString(url) {
			return e.parser, nil
		}
	}

	return nil, UnknownSourceError{URL: url}
}

func (r *Registry) Patterns() []string {
	return lo.Map(r.entries, func(e entry, _ int) string {
		return e.pattern.String()
	})
}
