// Package config loads repository settings from a YAML file.
//
// A config file selects the storage backend, the log output and the
// default commit identity:
//
//	storage:
//	  backend: badger
//	  path: ${HOME}/.geocapy
//	  compression: true
//	log:
//	  level: info
//	  format: json
//	commit:
//	  author: alice
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nasdf/geocapy/core"
	"github.com/nasdf/geocapy/storage"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// BackendMemory keeps all objects in memory.
	BackendMemory = "memory"
	// BackendBadger persists objects in a badger database.
	BackendBadger = "badger"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the configuration of a repository.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Commit  CommitConfig  `yaml:"commit"`
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	// Backend is either memory or badger.
	Backend string `yaml:"backend"`
	// Path is the database directory of the badger backend.
	// Environment variables are expanded.
	Path string `yaml:"path"`
	// Compression enables zstd compression of stored values.
	Compression bool `yaml:"compression"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a logrus level name.
	Level string `yaml:"level"`
	// Format is either text or json.
	Format string `yaml:"format"`
}

// CommitConfig contains the default commit identity.
type CommitConfig struct {
	Author    string `yaml:"author"`
	Committer string `yaml:"committer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Log: LogConfig{
			Level:  logrus.InfoLevel.String(),
			Format: FormatText,
		},
	}
}

// Load returns the configuration read from the file at the given path.
//
// Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse returns the configuration decoded from the given YAML document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration is incomplete or contains unknown values.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Storage.Path == "" {
			return errors.New("badger storage requires a path")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != FormatText && c.Log.Format != FormatJSON {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Logger returns a new logger writing to out.
func (c *Config) Logger(out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if c.Log.Format == FormatJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log, nil
}

// OpenStorage returns the configured storage and a function that releases it.
func (c *Config) OpenStorage() (storage.Storage, func() error, error) {
	var (
		s     storage.Storage
		release = func() error { return nil }
	)
	switch c.Storage.Backend {
	case BackendMemory:
		s = storage.NewMemory()
	case BackendBadger:
		db, err := storage.OpenBadger(c.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		s, release = db, db.Close
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if !c.Storage.Compression {
		return s, release, nil
	}
	compressed, err := storage.Compressed(s)
	if err != nil {
		release()
		return nil, nil, err
	}
	return compressed, release, nil
}

// Open opens the configured repository, initializing it when the storage is empty.
//
// The returned function releases the storage and must be called once the
// repository is no longer used.
func (c *Config) Open(ctx context.Context) (*core.Repository, func() error, error) {
	log, err := c.Logger(os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	s, release, err := c.OpenStorage()
	if err != nil {
		return nil, nil, err
	}
	repo, err := core.Open(ctx, s, c.Options(log))
	if err != nil {
		release()
		return nil, nil, err
	}
	return repo, release, nil
}

// Options returns the repository options of the configuration.
func (c *Config) Options(log logrus.FieldLogger) core.Options {
	return core.Options{
		Logger:    log,
		Author:    c.Commit.Author,
		Committer: c.Commit.Committer,
	}
}
