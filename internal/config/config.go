// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

// Package config loads the server configuration. Values come from, in
// increasing precedence: built-in defaults, an optional YAML file,
// NATOURS_* environment variables and command-line flags.
//
// Environment keys use a double underscore between sections, so
// NATOURS_AUTH__JWT_SECRET sets auth.jwt_secret.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/natours/natours/internal/auth"
	"github.com/natours/natours/internal/httpapi"
	"github.com/natours/natours/internal/logging"
	"github.com/natours/natours/internal/mail"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "NATOURS_"

// Environments.
const (
	Development = "development"
	Production  = "production"
)

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config is the server configuration.
type Config struct {
	Env     string        `koanf:"env"`
	HTTP    HTTPConfig    `koanf:"http"`
	Metrics MetricsConfig `koanf:"metrics"`
	Store   StoreConfig   `koanf:"store"`
	Auth    AuthConfig    `koanf:"auth"`
	Mail    MailConfig    `koanf:"mail"`
	Log     LogConfig     `koanf:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// PublicURL is the externally visible base URL used in mailed links.
	// Empty means links are built from the incoming request.
	PublicURL string `koanf:"public_url"`
	// TLSCert and TLSKey switch the listener to HTTPS when both are set.
	TLSCert string `koanf:"tls_cert"`
	TLSKey  string `koanf:"tls_key"`
	// RateLimit caps /api requests per client IP. Max 0 disables it.
	RateLimit httpapi.RateLimit `koanf:"rate_limit"`
}

// MetricsConfig configures the observability listener. An empty address
// disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Kind            string `koanf:"kind"`
	DatabaseURL     string `koanf:"database_url"`
	MaxConns        int32  `koanf:"max_conns"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	AutoMigrate     bool   `koanf:"auto_migrate"`
}

// AuthConfig configures tokens and password hashing.
type AuthConfig struct {
	JWTSecret string            `koanf:"jwt_secret"`
	TokenTTL  time.Duration     `koanf:"token_ttl"`
	CookieTTL time.Duration     `koanf:"cookie_ttl"`
	Argon2    auth.Argon2Params `koanf:"argon2"`
}

// MailConfig selects the outbound mail driver.
type MailConfig struct {
	Driver string          `koanf:"driver"`
	SMTP   mail.SMTPConfig `koanf:"smtp"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Env: Development,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       httpapi.RateLimit{Max: 300, Window: time.Hour},
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Store: StoreConfig{
			Kind:            StorePostgres,
			MaxConns:        10,
			ConnectAttempts: 5,
		},
		Auth: AuthConfig{
			TokenTTL:  auth.DefaultTokenTTL,
			CookieTTL: auth.DefaultTokenTTL,
			Argon2:    auth.DefaultArgon2Params(),
		},
		Mail: MailConfig{
			Driver: MailLog,
			SMTP:   mail.SMTPConfig{Port: 587, FromName: "Natours", TLS: mail.TLSMandatory, Timeout: 10 * time.Second},
		},
		Log: LogConfig{Format: "json", Level: "info"},
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"env":          "env",
	"addr":         "http.addr",
	"public-url":   "http.public_url",
	"tls-cert":     "http.tls_cert",
	"tls-key":      "http.tls_key",
	"metrics-addr": "metrics.addr",
	"store":        "store.kind",
	"database-url": "store.database_url",
	"auto-migrate": "store.auto_migrate",
	"mail":         "mail.driver",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the overridable settings to fs, with defaults taken
// from def.
func RegisterFlags(fs *pflag.FlagSet, def Config) {
	fs.String("env", def.Env, "environment (development or production)")
	fs.String("addr", def.HTTP.Addr, "API listen address")
	fs.String("public-url", def.HTTP.PublicURL, "public base URL used in mailed links")
	fs.String("tls-cert", def.HTTP.TLSCert, "TLS certificate file (enables HTTPS)")
	fs.String("tls-key", def.HTTP.TLSKey, "TLS private key file")
	fs.String("metrics-addr", def.Metrics.Addr, "metrics/health listen address (empty disables)")
	fs.String("store", def.Store.Kind, "document store (postgres or memory)")
	fs.String("database-url", def.Store.DatabaseURL, "PostgreSQL connection URL")
	fs.Bool("auto-migrate", def.Store.AutoMigrate, "apply pending migrations on startup")
	fs.String("mail", def.Mail.Driver, "mail driver (smtp or log)")
	fs.String("log-format", def.Log.Format, "log format (json or text)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

// envKey turns NATOURS_AUTH__JWT_SECRET into auth.jwt_secret.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load reads path (when not empty), the environment and the changed flags
// of fs (when not nil) over Default, and validates the result.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}
	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// TLS reports whether the API listener serves HTTPS.
func (c *Config) TLS() bool { return c.HTTP.TLSCert != "" }

// Production reports whether the server runs in production mode.
func (c *Config) Production() bool { return c.Env == Production }

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !slices.Contains([]string{Development, Production}, c.Env) {
		bad("env must be %q or %q, got %q", Development, Production, c.Env)
	}
	if c.HTTP.Addr == "" {
		bad("http.addr is required")
	}
	if c.HTTP.RateLimit.Max < 0 {
		bad("http.rate_limit.max must not be negative")
	}
	if c.HTTP.RateLimit.Max > 0 && c.HTTP.RateLimit.Window <= 0 {
		bad("http.rate_limit.window must be positive")
	}
	if (c.HTTP.TLSCert == "") != (c.HTTP.TLSKey == "") {
		bad("http.tls_cert and http.tls_key must be set together")
	}
	switch c.Store.Kind {
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			bad("store.database_url is required for the postgres store")
		}
	case StoreMemory:
	default:
		bad("store.kind must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store.Kind)
	}
	if len(c.Auth.JWTSecret) < auth.MinSecretLen {
		bad("auth.jwt_secret must be at least %d bytes", auth.MinSecretLen)
	}
	if c.Auth.TokenTTL <= 0 {
		bad("auth.token_ttl must be positive")
	}
	if c.Auth.CookieTTL <= 0 {
		bad("auth.cookie_ttl must be positive")
	}
	switch c.Mail.Driver {
	case MailLog:
	case MailSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.From == "" {
			bad("mail.smtp.host and mail.smtp.from are required for the smtp driver")
		}
	default:
		bad("mail.driver must be %q or %q, got %q", MailSMTP, MailLog, c.Mail.Driver)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		bad("log.format must be \"json\" or \"text\", got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		bad("log.level: %v", err)
	}

	if len(errs) == 0 {
		return nil
	}
	return oops.Code("CONFIG_INVALID").Wrap(errors.Join(errs...))
}
