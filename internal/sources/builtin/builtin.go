// Package builtin registers the parsers shipped with tankobon.
package builtin

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/brogergvhs/tankobon/internal/sources"
	"github.com/brogergvhs/tankobon/internal/sources/generic"
	"github.com/brogergvhs/tankobon/internal/sources/mangadex"
	"github.com/brogergvhs/tankobon/internal/sources/mangakakalot"
)

type Options struct {
	// GenericDomains are patterns handed to the heuristic scraper. They are
	// registered after the dedicated parsers.
	GenericDomains []string
	CheckJS        bool
}

// Registry returns a registry holding every known parser.
func Registry(c *http.Client, opts Options, log logrus.FieldLogger) (*sources.Registry, error) {
	r := sources.NewRegistry()

	r.MustRegister(mangakakalot.Pattern, mangakakalot.New(c, log))
	r.MustRegister(mangadex.Pattern, mangadex.New(c, mangadex.Options{}, log))

	if len(opts.GenericDomains) > 0 {
		g := generic.New(c, generic.Options{CheckJS: opts.CheckJS}, log)
		for _, pattern := range opts.GenericDomains {
			if err := r.Register(pattern, g); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}
