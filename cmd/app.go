package cmd

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/brogergvhs/tankobon/internal/cache"
	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/downloader"
	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/sources"
	"github.com/brogergvhs/tankobon/internal/sources/builtin"
	"github.com/brogergvhs/tankobon/internal/ui"
	"github.com/brogergvhs/tankobon/internal/util"
)

// app holds what every cache-touching command needs.
type app struct {
	cfg      *config.Config
	log      *logrus.Logger
	fs       afero.Fs
	client   *http.Client
	cache    *cache.Cache
	registry *sources.Registry
}

func configStore() *config.Store {
	return config.NewStore(afero.NewOsFs(), config.Root())
}

func loadConfig(opts config.Options) (*config.Config, string, error) {
	opts.IgnoreConfig = flagIgnoreConfig
	opts.Debug = flagDebug
	opts.CacheDir = flagCacheDir

	return configStore().LoadMerged(opts)
}

func newApp(opts config.Options) (*app, error) {
	cfg, source, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	log := ui.NewLogger(cfg.Debug)
	log.WithField("config", source).Debug("config loaded")

	client, err := util.NewHTTPClient(util.HTTPClientOptions{
		Timeout:    cfg.TimeoutDuration(),
		UserAgent:  cfg.UserAgent,
		Cookie:     cfg.Cookie,
		CookieFile: cfg.CookieFile,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	registry, err := builtin.Registry(client, builtin.Options{
		GenericDomains: cfg.GenericDomains,
		CheckJS:        cfg.CheckJS,
	}, log)
	if err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()

	c, err := cache.Open(fs, cfg.CachePath(), log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, fs: fs, client: client, cache: c, registry: registry}, nil
}

func (a *app) Close() error {
	return a.cache.Close()
}

// resolve loads the work whose hash starts with prefix.
func (a *app) resolve(prefix string) (*manga.Manga, error) {
	hash, err := a.cache.FullHash(prefix)
	if err != nil {
		return nil, err
	}
	if hash == "" {
		return nil, cache.NotFoundError{Hash: prefix}
	}

	return a.cache.Load(hash)
}

func (a *app) downloader(m *manga.Manga) (*downloader.Downloader, error) {
	return downloader.New(a.fs, a.cache.Dir(m.Meta.Hash()), a.client, downloader.Options{
		Workers: a.cfg.Workers,
		Timeout: a.cfg.TimeoutDuration(),
	}, a.log)
}

// withApp runs fn with an opened app and always persists the cache.
func withApp(opts config.Options, fn func(a *app) error) (err error) {
	a, err := newApp(opts)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("save cache: %w", cerr)
		}
	}()

	return fn(a)
}
