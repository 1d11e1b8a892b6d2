package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"
)

const envPrefix = "VRT_"

type Config struct {
	Server        string `koanf:"server" yaml:"server"`
	Session       string `koanf:"session" yaml:"session,omitempty"`
	SessionCookie string `koanf:"session_cookie" yaml:"session_cookie,omitempty"`
	Timeout       string `koanf:"timeout" yaml:"timeout,omitempty"`
}

// Keys lists the keys accepted by Get and Set.
var Keys = []string{"server", "session", "session_cookie", "timeout"}

func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "vrt", "config.yaml")
}

func Load(path string) (*Config, error) {
	cfg, err := loadFileAndEnv(path)
	if err != nil {
		return nil, err
	}

	// The keyring sits between env and file for the session.
	if os.Getenv(envPrefix+"SESSION") == "" {
		if session, err := keyringGet(); err == nil && session != "" {
			cfg.Session = session
		}
	}
	return cfg, nil
}

func loadFileAndEnv(path string) (*Config, error) {
	return load(path, true)
}

// loadFile reads only the config file. Paths that write the file back use
// it so values from the environment never end up on disk.
func loadFile(path string) (*Config, error) {
	return load(path, false)
}

func load(path string, withEnv bool) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Environment variables override file config (VRT_SERVER, VRT_SESSION, ...)
	if withEnv {
		if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
			return strings.ToLower(strings.TrimPrefix(s, envPrefix))
		}), nil); err != nil {
			return nil, fmt.Errorf("loading env config: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required (set VRT_SERVER env var or server in %s)", DefaultPath())
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// TimeoutDuration parses Timeout. Zero means the client default.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid timeout %q: must not be negative", c.Timeout)
	}
	return d, nil
}

func errUnknownKey(key string) error {
	return fmt.Errorf("unknown config key: %s (valid keys: %s)", key, strings.Join(Keys, ", "))
}

func Get(path, key string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	switch key {
	case "server":
		return cfg.Server, nil
	case "session":
		return cfg.Session, nil
	case "session_cookie":
		return cfg.SessionCookie, nil
	case "timeout":
		return cfg.Timeout, nil
	default:
		return "", errUnknownKey(key)
	}
}

func Set(path, key, value string) error {
	if path == "" {
		path = DefaultPath()
	}
	if key == "session" {
		_, err := SetSession(path, value)
		return err
	}
	cfg, err := loadFile(path)
	if err != nil {
		cfg = &Config{}
	}
	switch key {
	case "server":
		cfg.Server = value
	case "session_cookie":
		cfg.SessionCookie = value
	case "timeout":
		cfg.Timeout = value
		if _, err := cfg.TimeoutDuration(); err != nil {
			return err
		}
	default:
		return errUnknownKey(key)
	}
	return Save(path, cfg)
}

func Save(path string, cfg *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// SessionSource says where the session value was found.
type SessionSource string

const (
	SessionSourceEnv     SessionSource = "env"
	SessionSourceKeyring SessionSource = "keyring"
	SessionSourceFile    SessionSource = "file"
	SessionSourceNone    SessionSource = "none"
)

func resolveSessionSource(cfg *Config) SessionSource {
	if os.Getenv(envPrefix+"SESSION") != "" {
		return SessionSourceEnv
	}
	if session, err := keyringGet(); err == nil && session != "" {
		return SessionSourceKeyring
	}
	if cfg.Session != "" {
		return SessionSourceFile
	}
	return SessionSourceNone
}

// ResolveSessionSource reports where the session of the config at path
// comes from.
func ResolveSessionSource(path string) (SessionSource, error) {
	cfg, err := loadFileAndEnv(path)
	if err != nil {
		return SessionSourceNone, err
	}
	return resolveSessionSource(cfg), nil
}

// SetSession stores the session in the OS keyring, or in the config file
// when the keyring is not available.
func SetSession(path, session string) (SessionSource, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := loadFile(path)
	if err != nil {
		cfg = &Config{}
	}

	if err := keyringSet(session); err == nil {
		// Drop any plaintext copy left from an earlier fallback.
		if cfg.Session != "" {
			cfg.Session = ""
			if err := Save(path, cfg); err != nil {
				return SessionSourceKeyring, err
			}
		}
		return SessionSourceKeyring, nil
	}

	cfg.Session = session
	if err := Save(path, cfg); err != nil {
		return SessionSourceNone, err
	}
	return SessionSourceFile, nil
}

// ClearSession removes the session from the keyring and the config file.
func ClearSession(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	// An unavailable keyring has nothing to clear.
	_ = keyringDelete()

	if _, err := os.Stat(path); err == nil {
		cfg, err := loadFile(path)
		if err != nil {
			return err
		}
		if cfg.Session != "" {
			cfg.Session = ""
			if err := Save(path, cfg); err != nil {
				return err
			}
		}
	}
	return nil
}
