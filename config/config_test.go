package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"DEEPGRAM_API_KEY", "SCRIBE_LANGUAGES", "SCRIBE_THEME", "SCRIBE_MODEL", "SCRIBE_DEVICE"} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Languages, []string{"en-US", "hi-IN"}) {
		t.Errorf("languages = %v", cfg.Languages)
	}
	if cfg.Theme != ThemeDark || cfg.Deepgram.Model != "nova-3" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
languages: [ja-JP, en-US]
theme: light
device: USB Mic
deepgram:
  model: nova-2
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(cfg.Languages, []string{"ja-JP", "en-US"}) {
		t.Errorf("languages = %v", cfg.Languages)
	}
	if cfg.Theme != ThemeLight || cfg.Device != "USB Mic" || cfg.Deepgram.Model != "nova-2" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("empty file: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEEPGRAM_API_KEY", "secret")
	t.Setenv("SCRIBE_LANGUAGES", "de-DE, fr-FR,,")
	t.Setenv("SCRIBE_THEME", "LIGHT")
	t.Setenv("SCRIBE_MODEL", "nova-2")
	t.Setenv("SCRIBE_DEVICE", "Headset")

	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Deepgram.APIKey != "secret" || cfg.Deepgram.Model != "nova-2" {
		t.Errorf("deepgram = %+v", cfg.Deepgram)
	}
	if !slices.Equal(cfg.Languages, []string{"de-DE", "fr-FR"}) {
		t.Errorf("languages = %v", cfg.Languages)
	}
	if cfg.Theme != ThemeLight || cfg.Device != "Headset" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromReaderErrors(t *testing.T) {
	for _, tt := range []struct {
		name string
		yaml string
		want error
	}{
		{"no languages", "languages: []\n", ErrNoLanguages},
		{"bad theme", "theme: solarized\n", ErrUnknownTheme},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := LoadFromReader(strings.NewReader("colour: blue\n")); err == nil {
		t.Error("unknown field accepted")
	}
	if _, err := LoadFromReader(strings.NewReader("languages: [xx-XX]\n")); err == nil || !strings.Contains(err.Error(), "xx-XX") {
		t.Errorf("unsupported language: err = %v", err)
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := &Config{Theme: "neon"}
	err := cfg.Validate()
	if !errors.Is(err, ErrNoLanguages) || !errors.Is(err, ErrUnknownTheme) {
		t.Errorf("Validate() = %v, want both errors", err)
	}
}

func TestSaveRoundTripOmitsKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Device = "Desk Mic"
	cfg.Deepgram.APIKey = "secret"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("saved config contains API key:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Device != "Desk Mic" {
		t.Errorf("device = %q", loaded.Device)
	}
	if cfg.Deepgram.APIKey != "secret" {
		t.Error("Save modified the receiver")
	}
}

func TestSplitLanguages(t *testing.T) {
	if got := SplitLanguages(" en-US ,hi-IN,"); !slices.Equal(got, []string{"en-US", "hi-IN"}) {
		t.Errorf("SplitLanguages = %v", got)
	}
	if got := SplitLanguages(" , "); got != nil {
		t.Errorf("SplitLanguages(blank) = %v, want nil", got)
	}
}
