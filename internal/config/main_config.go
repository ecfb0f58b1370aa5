package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/oriongate/dicomdispatch/internal/resilience"
)

// MainConfig is the domain-level main configuration from spec.md §3: the
// module discovery glob, the auto-remove flag, and the refresh period.
// Unknown JSON keys are tolerated (the struct simply doesn't capture
// them); required keys are enforced with go-playground/validator struct
// tags in place of the original's manual "key in dict" loop. AutoRemove
// has no such check: a file without it loads with AutoRemove false.
type MainConfig struct {
	ModuleLoadingHeuristic string `json:"ModuleLoadingHeuristic" validate:"required"`
	AutoRemove             bool   `json:"AutoRemove"`
	AutoReloadEachSeconds  float64 `json:"AutoReloadEach" validate:"required,gt=0"`
}

// AutoReloadEach returns the refresh period as a time.Duration.
func (c MainConfig) AutoReloadEach() time.Duration {
	return time.Duration(c.AutoReloadEachSeconds * float64(time.Second))
}

// ModuleGlob resolves ModuleLoadingHeuristic relative to dir, the
// directory containing the main configuration file (spec.md §3: "resolved
// relative to the configuration file's directory").
func (c MainConfig) ModuleGlob(dir string) string {
	return filepath.Join(dir, c.ModuleLoadingHeuristic)
}

var validate = validator.New()

// LoadMainConfig reads and validates the main configuration file at path,
// returning its parsed form plus the content hash of the bytes it was
// read from. A ConfigLoad error is returned for a missing file, invalid
// JSON, or a failed mandatory-key/value check — spec.md §7 says the
// dispatcher then proceeds with no usable main configuration at startup,
// or keeps the previous configuration in effect on a failed re-read; this
// function itself just reports the error, the caller (Loader, below)
// implements that retention policy.
func LoadMainConfig(path string) (MainConfig, string, error) {
	var cfg MainConfig
	raw, err := decodeJSONC(path, &cfg)
	if err != nil {
		return MainConfig{}, "", resilience.Wrap(resilience.ConfigLoad, "main_config.load", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return MainConfig{}, "", resilience.Wrap(resilience.ConfigLoad, "main_config.validate", err)
	}
	return cfg, hashBytes(raw), nil
}

// Loader owns the currently-effective MainConfig and its content hash,
// and implements the "re-read on hash change, keep the previous valid
// config on failure" lifecycle from spec.md §3 and §7.
type Loader struct {
	path    string
	current MainConfig
	hash    string
	loaded  bool
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Dir returns the directory containing the main configuration file, the
// base for resolving ModuleLoadingHeuristic.
func (l *Loader) Dir() string { return filepath.Dir(l.path) }

// Current returns the last successfully loaded configuration and whether
// one has ever loaded successfully.
func (l *Loader) Current() (MainConfig, bool) {
	return l.current, l.loaded
}

// Refresh re-hashes the on-disk file; if the hash changed it attempts a
// reload. On success the new configuration replaces the old one. On
// failure the previous configuration (if any) remains in effect and the
// error is returned for the caller to log — this never clears an
// already-loaded configuration.
func (l *Loader) Refresh() error {
	newHash, err := hashFile(l.path)
	if err != nil {
		return resilience.Wrap(resilience.ConfigLoad, "main_config.stat", err)
	}
	if l.loaded && newHash == l.hash {
		return nil
	}

	cfg, hash, err := LoadMainConfig(l.path)
	if err != nil {
		if l.loaded {
			return fmt.Errorf("keeping previous main configuration: %w", err)
		}
		return err
	}
	l.current = cfg
	l.hash = hash
	l.loaded = true
	return nil
}
