package resource

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// AuthNone is the default (and only enforced) auth type of a resource.
const AuthNone = "none"

// Config is the per-resource JSON document stored under the config dir.
type Config struct {
	AuthType      string `json:"authType"`
	ResourceCount int    `json:"resourceCount"`
}

// CreateOptions are caller-supplied settings merged into a new Config.
type CreateOptions struct {
	AuthType string
}

// Create generates a new resource, lays out its directories and writes its
// initial config. It returns the new resource ID.
func (e *Engine) Create(opts CreateOptions) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", fmt.Errorf("create resource: %w", err)
	}
	if err := e.create(id, opts); err != nil {
		return "", err
	}
	return id, nil
}

func (e *Engine) create(id string, opts CreateOptions) error {
	configFile := e.layout.ConfigFile(id)
	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.MkdirAll(e.layout.DataPath(id), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	cfg := Config{AuthType: AuthNone}
	if opts.AuthType != "" {
		cfg.AuthType = opts.AuthType
	}
	return e.writeConfig(id, cfg)
}

// ReadConfig returns the stored config of a valid resource.
func (e *Engine) ReadConfig(id string) (Config, error) {
	if !e.layout.IsValid(id) {
		return Config{}, ErrInvalidResourceID
	}
	return e.readConfig(id)
}

// WriteConfig replaces the stored config of a valid resource wholesale.
func (e *Engine) WriteConfig(id string, cfg Config) error {
	if !e.layout.IsValid(id) {
		return ErrInvalidResourceID
	}
	unlock := e.locks.lock(id)
	defer unlock()
	return e.writeConfig(id, cfg)
}

// IncrementCount adds one to the file counter and returns the new value.
func (e *Engine) IncrementCount(id string) (int, error) {
	return e.adjustLocked(id, 1)
}

// DecrementCount subtracts by from the file counter, clamped at zero, and
// returns the new value.
func (e *Engine) DecrementCount(id string, by int) (int, error) {
	return e.adjustLocked(id, -by)
}

// ResetCount recomputes the file counter from the regular files directly
// under the data directory and persists it.
func (e *Engine) ResetCount(id string) (int, error) {
	if !e.layout.IsValid(id) {
		return 0, ErrInvalidResourceID
	}
	unlock := e.locks.lock(id)
	defer unlock()

	entries, err := os.ReadDir(e.layout.DataPath(id))
	if err != nil {
		return 0, fmt.Errorf("read data dir: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			n++
		}
	}

	cfg, err := e.readConfig(id)
	if err != nil {
		return 0, err
	}
	cfg.ResourceCount = n
	if err := e.writeConfig(id, cfg); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *Engine) adjustLocked(id string, delta int) (int, error) {
	if !e.layout.IsValid(id) {
		return 0, ErrInvalidResourceID
	}
	unlock := e.locks.lock(id)
	defer unlock()
	return e.adjustCount(id, delta)
}

// adjustCount is the unlocked read-modify-write of the counter. Callers hold
// the resource lock.
func (e *Engine) adjustCount(id string, delta int) (int, error) {
	cfg, err := e.readConfig(id)
	if err != nil {
		return 0, err
	}
	cfg.ResourceCount += delta
	if cfg.ResourceCount < 0 {
		cfg.ResourceCount = 0
	}
	if err := e.writeConfig(id, cfg); err != nil {
		return 0, err
	}
	return cfg.ResourceCount, nil
}

func (e *Engine) readConfig(id string) (Config, error) {
	data, err := os.ReadFile(e.layout.ConfigFile(id))
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ResourceCount < 0 {
		cfg.ResourceCount = 0
	}
	return cfg, nil
}

// writeConfig overwrites the whole config document via a temp file rename.
func (e *Engine) writeConfig(id string, cfg Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	path := e.layout.ConfigFile(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
