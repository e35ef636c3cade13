package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var ErrNoConfig = errors.New("no config selected")

// Root is the directory holding profiles and the active label.
func Root() string {
	if dir := os.Getenv(EnvConfigHome); dir != "" {
		return dir
	}

	if appdata := os.Getenv("APPDATA"); appdata != "" {
		return filepath.Join(appdata, "tankobon")
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tankobon")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tankobon")
}

// Store manages labelled YAML profiles under a root directory.
type Store struct {
	fs   afero.Fs
	root string
}

func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

func (s *Store) ConfigsDir() string {
	return filepath.Join(s.root, "configs")
}

func (s *Store) currentLabelFile() string {
	return filepath.Join(s.root, "current_config")
}

func (s *Store) PathByLabel(label string) string {
	return filepath.Join(s.ConfigsDir(), label+".yaml")
}

func (s *Store) ensureDirs() error {
	return s.fs.MkdirAll(s.ConfigsDir(), 0o755)
}

func (s *Store) exists(label string) bool {
	ok, _ := afero.Exists(s.fs, s.PathByLabel(label))
	return ok
}

func validLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("label cannot be empty")
	}
	if strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("label %q cannot contain path separators", label)
	}

	return nil
}

func (s *Store) CurrentLabel() (string, error) {
	b, err := afero.ReadFile(s.fs, s.currentLabelFile())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoConfig
	}
	if err != nil {
		return "", err
	}

	label := strings.TrimSpace(string(b))
	if label == "" {
		return "", ErrNoConfig
	}

	return label, nil
}

func (s *Store) ActivePath() (string, error) {
	label, err := s.CurrentLabel()
	if err != nil {
		return "", err
	}

	return s.PathByLabel(label), nil
}

func (s *Store) Save(cfg *Config, path string) error {
	b, err := marshal(cfg)
	if err != nil {
		return err
	}

	if err := s.ensureDirs(); err != nil {
		return err
	}

	return afero.WriteFile(s.fs, path, b, 0o644)
}

func (s *Store) Load(path string) (*Config, error) {
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, err
	}

	cfg, err := unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadMerged resolves the effective config. The returned string describes
// where it came from.
func (s *Store) LoadMerged(opts Options) (*Config, string, error) {
	cfg := DefaultConfig()
	source := "(default config in memory)"

	if opts.IgnoreConfig {
		source = "(ignored config)"
	} else {
		path, err := s.ActivePath()
		switch {
		case errors.Is(err, ErrNoConfig):
		case err != nil:
			return nil, "", err
		default:
			loaded, err := s.Load(path)
			if err != nil {
				return nil, "", err
			}
			cfg, source = loaded, path
		}
	}

	cfg.mergeEnv()
	cfg.merge(opts)
	cfg.normalize()

	return cfg, source, nil
}

type Info struct {
	Label  string
	Path   string
	Active bool
}

func (s *Store) List() ([]Info, error) {
	if err := s.ensureDirs(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, s.ConfigsDir())
	if err != nil {
		return nil, err
	}

	active, _ := s.CurrentLabel()

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".yaml" {
			continue
		}

		label := strings.TrimSuffix(name, ".yaml")
		out = append(out, Info{
			Label:  label,
			Path:   filepath.Join(s.ConfigsDir(), name),
			Active: label == active,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })

	return out, nil
}

func (s *Store) Switch(label string) error {
	if err := validLabel(label); err != nil {
		return err
	}
	if !s.exists(label) {
		return fmt.Errorf("config %q does not exist", label)
	}

	return afero.WriteFile(s.fs, s.currentLabelFile(), []byte(label), 0o644)
}

// Create writes a profile with default values.
func (s *Store) Create(label string) (string, error) {
	if err := validLabel(label); err != nil {
		return "", err
	}
	if s.exists(label) {
		return "", fmt.Errorf("config %q already exists", label)
	}

	path := s.PathByLabel(label)

	return path, s.Save(DefaultConfig(), path)
}

// Import copies a YAML file from src into a new profile after checking it parses.
func (s *Store) Import(label string, src afero.Fs, srcPath string) error {
	if err := validLabel(label); err != nil {
		return err
	}
	if s.exists(label) {
		return fmt.Errorf("config %q already exists", label)
	}

	raw, err := afero.ReadFile(src, srcPath)
	if err != nil {
		return err
	}
	if _, err := unmarshal(raw); err != nil {
		return fmt.Errorf("config %s: %w", srcPath, err)
	}

	if err := s.ensureDirs(); err != nil {
		return err
	}

	return afero.WriteFile(s.fs, s.PathByLabel(label), raw, 0o644)
}

func (s *Store) Rename(oldLabel, newLabel string) error {
	if err := validLabel(newLabel); err != nil {
		return err
	}
	if !s.exists(oldLabel) {
		return fmt.Errorf("config %q does not exist", oldLabel)
	}
	if s.exists(newLabel) {
		return fmt.Errorf("config %q already exists", newLabel)
	}

	if err := s.fs.Rename(s.PathByLabel(oldLabel), s.PathByLabel(newLabel)); err != nil {
		return err
	}

	if active, _ := s.CurrentLabel(); active == oldLabel {
		return afero.WriteFile(s.fs, s.currentLabelFile(), []byte(newLabel), 0o644)
	}

	return nil
}

// Remove deletes a profile. Removing the active one switches back to Default.
func (s *Store) Remove(label string) error {
	if label == DefaultLabel {
		return errors.New("cannot remove the Default config")
	}
	if !s.exists(label) {
		return fmt.Errorf("config %q does not exist", label)
	}

	if active, _ := s.CurrentLabel(); active == label {
		if err := s.Switch(DefaultLabel); err != nil {
			return fmt.Errorf("switching to %s: %w", DefaultLabel, err)
		}
	}

	return s.fs.Remove(s.PathByLabel(label))
}

// Init creates the Default profile if missing and makes it active. It
// reports whether the profile was created.
func (s *Store) Init() (string, bool, error) {
	path := s.PathByLabel(DefaultLabel)
	created := false

	if !s.exists(DefaultLabel) {
		if err := s.Save(DefaultConfig(), path); err != nil {
			return "", false, err
		}
		created = true
	}

	return path, created, s.Switch(DefaultLabel)
}
