package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default returns the configuration written on first deployment.
func Default() *Config {
	c := &Config{}
	c.Server.Name = "OWSS"
	c.Server.Version = "0.0.1"
	c.Server.Port = "8088"
	c.Server.DeployType = DeployPrivate
	c.Server.CreateRateLimit = 10
	c.Server.MaxUploadSize = 100 << 20

	c.Storage.RootPath = "storage"
	c.Storage.ConfigPath = "conf"
	c.Storage.DataPath = "data"
	c.Storage.TmpPath = "tmp"
	c.Storage.SharePath = "share"
	c.Storage.IndexPath = "owss.db"
	c.Storage.MaxResource = 100
	c.Storage.StagingTTL = "1h"
	return c
}

// Load reads the YAML config at path. A missing file is created with
// defaults and the returned config has FirstTime set. DEPLOY_TYPE and PORT
// environment variables override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		c := Default()
		if err := Save(path, c); err != nil {
			return nil, err
		}
		c.FirstTime = true
		applyEnv(c)
		return c, validate(c)
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	applyEnv(c)
	if err := validate(c); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return c, nil
}

// Save writes c to path as YAML, creating parent directories.
func Save(path string, c *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("DEPLOY_TYPE"); v != "" {
		c.Server.DeployType = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
}

func validate(c *Config) error {
	switch c.Server.DeployType {
	case DeployPrivate, DeployPublic:
	case "":
		c.Server.DeployType = DeployPrivate
	default:
		return fmt.Errorf("unsupported deploy type: %s", c.Server.DeployType)
	}

	if c.Server.Port == "" {
		c.Server.Port = "8088"
	}
	if c.Server.Name == "" {
		c.Server.Name = "OWSS"
	}
	if c.Server.MaxUploadSize <= 0 {
		c.Server.MaxUploadSize = 100 << 20
	}
	if c.Server.AutoTLS && c.Server.Host == "" {
		return fmt.Errorf("server.host is required when autoTLS is enabled")
	}
	if c.Storage.RootPath == "" {
		return fmt.Errorf("storage.rootPath is required")
	}
	if c.Storage.MaxResource < 0 {
		return fmt.Errorf("storage.maxResource must not be negative")
	}
	if c.Storage.StagingTTL == "" {
		c.Storage.StagingTTL = "1h"
	}
	if _, err := time.ParseDuration(c.Storage.StagingTTL); err != nil {
		return fmt.Errorf("storage.stagingTTL: %w", err)
	}
	return nil
}

// StoragePath resolves p against the storage root unless it is absolute.
// An empty p stays empty.
func (c *Config) StoragePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.RootPath, p)
}

// StagingTTL returns how long staged uploads are kept before being swept.
func (c *Config) StagingTTL() time.Duration {
	d, err := time.ParseDuration(c.Storage.StagingTTL)
	if err != nil {
		return time.Hour
	}
	return d
}
