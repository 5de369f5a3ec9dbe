package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"scribe/language"
)

var (
	ErrNoLanguages  = errors.New("config: at least one language is required")
	ErrUnknownTheme = errors.New("config: unknown theme")
)

type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
)

func (t Theme) IsValid() bool { return t == ThemeDark || t == ThemeLight }

type Deepgram struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

type Config struct {
	Languages []string `yaml:"languages"`
	Theme     Theme    `yaml:"theme"`
	Device    string   `yaml:"device,omitempty"`
	LogPath   string   `yaml:"log_path,omitempty"`
	Deepgram  Deepgram `yaml:"deepgram"`
}

func Default() *Config {
	return &Config{
		Languages: append([]string(nil), language.Default...),
		Theme:     ThemeDark,
		Deepgram:  Deepgram{Model: "nova-3"},
	}
}

// DefaultPath is config.yaml under the user's config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "scribe", "config.yaml"), nil
}

// Load reads the YAML file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	default:
		defer f.Close()
		if err := decode(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of the defaults without
// consulting the environment.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from DEEPGRAM_API_KEY, SCRIBE_LANGUAGES
// (comma separated), SCRIBE_THEME, SCRIBE_MODEL and SCRIBE_DEVICE.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DEEPGRAM_API_KEY"); v != "" {
		c.Deepgram.APIKey = v
	}
	if v := os.Getenv("SCRIBE_LANGUAGES"); v != "" {
		c.Languages = SplitLanguages(v)
	}
	if v := os.Getenv("SCRIBE_THEME"); v != "" {
		c.Theme = Theme(strings.ToLower(v))
	}
	if v := os.Getenv("SCRIBE_MODEL"); v != "" {
		c.Deepgram.Model = v
	}
	if v := os.Getenv("SCRIBE_DEVICE"); v != "" {
		c.Device = v
	}
}

// SplitLanguages parses a comma separated list of language tags, dropping
// blanks.
func SplitLanguages(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Languages) == 0 {
		errs = append(errs, ErrNoLanguages)
	}
	for _, code := range c.Languages {
		if _, ok := language.Lookup(code); !ok {
			errs = append(errs, fmt.Errorf("config: language %q is not supported", code))
		}
	}
	if !c.Theme.IsValid() {
		errs = append(errs, fmt.Errorf("%w %q; valid values: dark, light", ErrUnknownTheme, c.Theme))
	}
	return errors.Join(errs...)
}

// Save writes c to path, creating the directory if needed. The API key is
// left out so it stays in the environment.
func (c *Config) Save(path string) error {
	out := *c
	out.Deepgram.APIKey = ""
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}
