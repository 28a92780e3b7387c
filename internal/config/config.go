// Package config loads server settings from flags, an optional YAML file and
// the environment.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/and161185/sitecfg/internal/describe"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNone     = "none"
)

// Environment variables consulted when the matching setting is empty.
const (
	EnvDSN    = "SITECFG_DSN"
	EnvJWTKey = "SITECFG_JWT_KEY"
)

// Config holds server settings. Precedence: flags, then the YAML file, then
// the environment for DSN and JWTKey, then defaults.
type Config struct {
	Addr       string        `yaml:"addr" validate:"required"`
	HTTPAddr   string        `yaml:"http_addr"`
	Driver     string        `yaml:"driver" validate:"oneof=postgres sqlite none"`
	DSN        string        `yaml:"dsn"`
	SQLitePath string        `yaml:"sqlite_path"`
	LocalFile  string        `yaml:"local_file"`
	Fallback   bool          `yaml:"fallback"`
	RedisURL   string        `yaml:"redis_url" validate:"omitempty,url"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"gte=0"`
	JWTKey     string        `yaml:"jwt_key" validate:"required"`
	AccessTTL  time.Duration `yaml:"access_ttl" validate:"gt=0"`
	TLSCert    string        `yaml:"tls_cert"`
	TLSKey     string        `yaml:"tls_key"`
	Dev        bool          `yaml:"dev"`

	// DefaultLocale is the fallback locale for localized field reads.
	DefaultLocale string `yaml:"default_locale"`

	Describe describe.Describer `yaml:"describe"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:       ":8443",
		HTTPAddr:   ":8080",
		Driver:     DriverPostgres,
		SQLitePath: "sitecfg.db",
		CacheTTL:   5 * time.Minute,
		AccessTTL:  time.Hour,

		DefaultLocale: "en",
	}
}

// bind registers flags writing into c, using its current values as defaults.
func bind(fs *flag.FlagSet, c *Config, path *string) {
	fs.StringVar(path, "config", "", "YAML config file")
	fs.StringVar(&c.Addr, "addr", c.Addr, "gRPC listen address")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "HTTP listen address (empty disables)")
	fs.StringVar(&c.Driver, "driver", c.Driver, "versioned store: postgres|sqlite|none")
	fs.StringVar(&c.DSN, "dsn", c.DSN, "PostgreSQL DSN (env "+EnvDSN+")")
	fs.StringVar(&c.SQLitePath, "sqlite-path", c.SQLitePath, "SQLite database file")
	fs.StringVar(&c.LocalFile, "local-file", c.LocalFile, "degraded local document file (.json|.yaml)")
	fs.BoolVar(&c.Fallback, "fallback", c.Fallback, "fall back to the local file when the store is unavailable")
	fs.StringVar(&c.RedisURL, "redis-url", c.RedisURL, "Redis URL for the document cache (empty disables)")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "document cache TTL")
	fs.StringVar(&c.JWTKey, "jwt-key", c.JWTKey, "HS256 signing key (env "+EnvJWTKey+")")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "issued token TTL")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "TLS certificate (PEM)")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "TLS private key (PEM)")
	fs.BoolVar(&c.Dev, "dev", c.Dev, "development mode: reflection, plaintext allowed, debug logs")
	fs.StringVar(&c.DefaultLocale, "default-locale", c.DefaultLocale, "fallback locale for localized field reads")
}

// Load parses args (without the program name).
func Load(args []string) (*Config, error) {
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (*Config, error) {
	// first pass only finds -config
	var path string
	first := Default()
	pre := flag.NewFlagSet("sitecfg", flag.ContinueOnError)
	pre.SetOutput(io.Discard)
	bind(pre, &first, &path)
	if err := pre.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	fs := flag.NewFlagSet("sitecfg", flag.ContinueOnError)
	bind(fs, &cfg, &path)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.DSN == "" {
		cfg.DSN = getenv(EnvDSN)
	}
	if cfg.JWTKey == "" {
		cfg.JWTKey = getenv(EnvJWTKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Driver {
	case DriverPostgres:
		if c.DSN == "" {
			return errors.New("invalid config: postgres driver needs -dsn")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("invalid config: sqlite driver needs -sqlite-path")
		}
	case DriverNone:
		if c.LocalFile == "" {
			return errors.New("invalid config: driver none needs -local-file")
		}
	}
	if c.Fallback && c.LocalFile == "" {
		return errors.New("invalid config: -fallback needs -local-file")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("invalid config: -tls-cert and -tls-key go together")
	}
	if c.TLSCert == "" && !c.Dev {
		return errors.New("invalid config: TLS is required outside -dev")
	}
	return nil
}
