// Package config loads tankobon settings from YAML profiles, the
// environment and command line flags.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigHome = "TANKOBON_CONFIG_HOME"
	EnvCacheDir   = "TANKOBON_CACHE_DIR"

	DefaultLabel = "Default"
)

type Config struct {
	CacheDir       string `yaml:"cache_dir"`
	Language       string `yaml:"language"`
	Workers        int    `yaml:"workers"`
	ChapterWorkers int    `yaml:"chapter_workers"`
	Timeout        int    `yaml:"timeout"`

	UserAgent  string `yaml:"user_agent"`
	Cookie     string `yaml:"cookie"`
	CookieFile string `yaml:"cookie_file"`

	Debug          bool     `yaml:"debug"`
	GenericDomains []string `yaml:"generic_domains"`
	CheckJS        bool     `yaml:"check_js"`
}

// Options are command line overrides. Zero values leave the loaded value alone.
type Options struct {
	IgnoreConfig   bool
	Debug          bool
	CacheDir       string
	Language       string
	Workers        int
	ChapterWorkers int
	Timeout        int
	UserAgent      string
	Cookie         string
	CookieFile     string
}

func DefaultConfig() *Config {
	return &Config{
		CacheDir:       "~/.tankobon",
		Language:       "en",
		Workers:        8,
		ChapterWorkers: 1,
		Timeout:        30,
		GenericDomains: []string{},
	}
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CachePath is CacheDir with a leading ~ expanded.
func (c *Config) CachePath() string {
	return expandHome(c.CacheDir)
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}

	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func (c *Config) merge(o Options) {
	if o.Debug {
		c.Debug = true
	}
	if o.CacheDir != "" {
		c.CacheDir = o.CacheDir
	}
	if o.Language != "" {
		c.Language = o.Language
	}
	if o.Workers != 0 {
		c.Workers = o.Workers
	}
	if o.ChapterWorkers != 0 {
		c.ChapterWorkers = o.ChapterWorkers
	}
	if o.Timeout != 0 {
		c.Timeout = o.Timeout
	}
	if o.UserAgent != "" {
		c.UserAgent = o.UserAgent
	}
	if o.Cookie != "" {
		c.Cookie = o.Cookie
	}
	if o.CookieFile != "" {
		c.CookieFile = o.CookieFile
	}
}

func (c *Config) mergeEnv() {
	if dir := os.Getenv(EnvCacheDir); dir != "" {
		c.CacheDir = dir
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()

	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Language == "" {
		c.Language = def.Language
	}
	if c.Workers < 1 {
		c.Workers = def.Workers
	}
	if c.ChapterWorkers < 1 {
		c.ChapterWorkers = def.ChapterWorkers
	}
	if c.Timeout < 1 {
		c.Timeout = def.Timeout
	}
}

// Set assigns one field by its YAML key.
func (c *Config) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		return n, nil
	}
	parseBool := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("%s must be true or false, got %q", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "cache_dir":
		c.CacheDir = value
	case "language":
		c.Language = value
	case "workers":
		c.Workers, err = atoi()
	case "chapter_workers":
		c.ChapterWorkers, err = atoi()
	case "timeout":
		c.Timeout, err = atoi()
	case "user_agent":
		c.UserAgent = value
	case "cookie":
		c.Cookie = value
	case "cookie_file":
		c.CookieFile = value
	case "debug":
		c.Debug, err = parseBool()
	case "check_js":
		c.CheckJS, err = parseBool()
	case "generic_domains":
		c.GenericDomains = nil
		for _, d := range strings.Split(value, ",") {
			if d = strings.TrimSpace(d); d != "" {
				c.GenericDomains = append(c.GenericDomains, d)
			}
		}
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	return err
}

func (c *Config) Print(w io.Writer) {
	_, _ = fmt.Fprintf(w, " -cache_dir: %s\n", c.CacheDir)
	_, _ = fmt.Fprintf(w, " -language: %s\n", c.Language)
	_, _ = fmt.Fprintf(w, " -workers: %d\n", c.Workers)
	_, _ = fmt.Fprintf(w, " -chapter_workers: %d\n", c.ChapterWorkers)
	_, _ = fmt.Fprintf(w, " -timeout: %ds\n", c.Timeout)
	if c.UserAgent != "" {
		_, _ = fmt.Fprintf(w, " -user_agent: %s\n", c.UserAgent)
	}
	if c.CookieFile != "" {
		_, _ = fmt.Fprintf(w, " -cookie_file: %s\n", c.CookieFile)
	}
	if c.Debug {
		_, _ = fmt.Fprintf(w, " -debug: %t\n", c.Debug)
	}
	if len(c.GenericDomains) > 0 {
		_, _ = fmt.Fprintf(w, " -generic_domains: %s\n", strings.Join(c.GenericDomains, ", "))
	}
	if c.CheckJS {
		_, _ = fmt.Fprintf(w, " -check_js: %t\n", c.CheckJS)
	}
}

func marshal(c *Config) ([]byte, error) {
	return yaml.Marshal(c)
}

func unmarshal(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	return &c, nil
}
