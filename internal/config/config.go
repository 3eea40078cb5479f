// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CMS Contributors

// Package config loads the CMS configuration.
//
// Sources are layered, later ones winning: built-in defaults, the YAML file
// named by --config, CMS_* environment variables (with .env loaded first)
// and flags set on the command line.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CMS_"

// CurrentVersion is written by `cms config print` and matched by ^1.
const CurrentVersion = "1.0.0"

// Token backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Mail drivers.
const (
	MailSMTP = "smtp"
	MailLog  = "log"
)

// Config is the full CMS configuration.
type Config struct {
	Version  string         `koanf:"version" json:"version" yaml:"version" jsonschema:"required,description=Config file format version (semver ^1)"`
	HTTP     HTTPConfig     `koanf:"http" json:"http,omitempty" yaml:"http"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty" yaml:"metrics"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty" yaml:"log"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty" yaml:"database"`
	Tokens   TokensConfig   `koanf:"tokens" json:"tokens,omitempty" yaml:"tokens"`
	Redis    RedisConfig    `koanf:"redis" json:"redis,omitempty" yaml:"redis"`
	JWT      JWTConfig      `koanf:"jwt" json:"jwt,omitempty" yaml:"jwt"`
	OTP      OTPConfig      `koanf:"otp" json:"otp,omitempty" yaml:"otp"`
	Reset    ResetConfig    `koanf:"reset" json:"reset,omitempty" yaml:"reset"`
	Recovery RecoveryConfig `koanf:"recovery" json:"recovery,omitempty" yaml:"recovery"`
	Mail     MailConfig     `koanf:"mail" json:"mail,omitempty" yaml:"mail"`
	Storage  StorageConfig  `koanf:"storage" json:"storage,omitempty" yaml:"storage"`
}

// Duration is a time.Duration written as text, e.g. "10m".
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return oops.Code("CONFIG_DURATION_INVALID").With("value", string(b)).Wrap(err)
	}
	*d = Duration(v)
	return nil
}

// JSONSchema describes Duration as a Go duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Duration such as 30m or 1h",
	}
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr        string   `koanf:"addr" json:"addr,omitempty" yaml:"addr" validate:"required" jsonschema:"description=API listen address"`
	CORSOrigins []string `koanf:"cors_origins" json:"cors_origins,omitempty" yaml:"cors_origins" jsonschema:"description=Allowed CORS origins as glob patterns"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" yaml:"addr" jsonschema:"description=Metrics and health listen address; empty disables it"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" yaml:"format" validate:"oneof=json text" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" yaml:"level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// DatabaseConfig configures Postgres.
type DatabaseConfig struct {
	URL         string `koanf:"url" json:"url,omitempty" yaml:"url" validate:"required" jsonschema:"description=PostgreSQL connection URL"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" yaml:"auto_migrate" jsonschema:"description=Apply pending migrations on serve"`
}

// TokensConfig selects where verification codes and reset grants live.
type TokensConfig struct {
	Backend string `koanf:"backend" json:"backend,omitempty" yaml:"backend" validate:"oneof=postgres redis" jsonschema:"enum=postgres,enum=redis"`
}

// RedisConfig configures the Redis token backend.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty" yaml:"addr" validate:"required_with=Password"`
	Password string `koanf:"password" json:"password,omitempty" yaml:"password"`
	DB       int    `koanf:"db" json:"db,omitempty" yaml:"db" validate:"gte=0"`
	Prefix   string `koanf:"prefix" json:"prefix,omitempty" yaml:"prefix"`
}

// JWTConfig configures session tokens.
type JWTConfig struct {
	Secret string   `koanf:"secret" json:"secret,omitempty" yaml:"secret" validate:"required,min=32" jsonschema:"description=HS512 signing secret of at least 32 bytes"`
	Issuer string   `koanf:"issuer" json:"issuer,omitempty" yaml:"issuer"`
	TTL    Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl" validate:"gt=0"`
}

// OTPConfig configures verification codes.
type OTPConfig struct {
	TTL Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl" validate:"gt=0"`
}

// ResetConfig configures password reset grants.
type ResetConfig struct {
	TTL     Duration `koanf:"ttl" json:"ttl,omitempty" yaml:"ttl" validate:"gt=0"`
	URLBase string   `koanf:"url_base" json:"url_base,omitempty" yaml:"url_base" validate:"required,url" jsonschema:"description=Base of the link mailed for a reset token"`
}

// RecoveryConfig holds recovery policy.
type RecoveryConfig struct {
	RevealUnknownAccounts bool `koanf:"reveal_unknown_accounts" json:"reveal_unknown_accounts,omitempty" yaml:"reveal_unknown_accounts"`
}

// MailConfig configures outgoing mail.
type MailConfig struct {
	Driver   string `koanf:"driver" json:"driver,omitempty" yaml:"driver" validate:"oneof=smtp log" jsonschema:"enum=smtp,enum=log"`
	Host     string `koanf:"host" json:"host,omitempty" yaml:"host" validate:"required_if=Driver smtp"`
	Port     int    `koanf:"port" json:"port,omitempty" yaml:"port" validate:"gte=0,lte=65535"`
	Username string `koanf:"username" json:"username,omitempty" yaml:"username"`
	Password string `koanf:"password" json:"password,omitempty" yaml:"password"`
	From     string `koanf:"from" json:"from,omitempty" yaml:"from" validate:"required_if=Driver smtp"`
	TLS      string `koanf:"tls" json:"tls,omitempty" yaml:"tls" validate:"omitempty,oneof=mandatory opportunistic none" jsonschema:"enum=mandatory,enum=opportunistic,enum=none"`
	Retries  uint64 `koanf:"retries" json:"retries,omitempty" yaml:"retries" validate:"lte=10"`
}

// StorageConfig configures profile image storage.
type StorageConfig struct {
	S3 S3Config `koanf:"s3" json:"s3,omitempty" yaml:"s3"`
}

// S3Config configures the S3 image store. An empty bucket disables uploads.
type S3Config struct {
	Bucket    string `koanf:"bucket" json:"bucket,omitempty" yaml:"bucket"`
	Region    string `koanf:"region" json:"region,omitempty" yaml:"region"`
	Endpoint  string `koanf:"endpoint" json:"endpoint,omitempty" yaml:"endpoint" validate:"omitempty,url"`
	AccessKey string `koanf:"access_key" json:"access_key,omitempty" yaml:"access_key"`
	SecretKey string `koanf:"secret_key" json:"secret_key,omitempty" yaml:"secret_key"`
	PublicURL string `koanf:"public_url" json:"public_url,omitempty" yaml:"public_url" validate:"omitempty,url"`
}

// Defaults returns the built-in values, keyed by dotted path. Every known
// key is present so that environment variables can be matched against it.
func Defaults() map[string]any {
	return map[string]any{
		"version":                          CurrentVersion,
		"http.addr":                        ":8080",
		"http.cors_origins":                []string{"http://localhost:*"},
		"metrics.addr":                     "127.0.0.1:9100",
		"log.format":                       "json",
		"log.level":                        "info",
		"database.url":                     "",
		"database.auto_migrate":            false,
		"tokens.backend":                   BackendPostgres,
		"redis.addr":                       "",
		"redis.password":                   "",
		"redis.db":                         0,
		"redis.prefix":                     "cms",
		"jwt.secret":                       "",
		"jwt.issuer":                       "cms",
		"jwt.ttl":                          "1h",
		"otp.ttl":                          "10m",
		"reset.ttl":                        "30m",
		"reset.url_base":                   "http://localhost:5173/reset-password",
		"recovery.reveal_unknown_accounts": false,
		"mail.driver":                      MailSMTP,
		"mail.host":                        "",
		"mail.port":                        587,
		"mail.username":                    "",
		"mail.password":                    "",
		"mail.from":                        "",
		"mail.tls":                         "mandatory",
		"mail.retries":                     3,
		"storage.s3.bucket":                "",
		"storage.s3.region":                "us-east-1",
		"storage.s3.endpoint":              "",
		"storage.s3.access_key":            "",
		"storage.s3.secret_key":            "",
		"storage.s3.public_url":            "",
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":         "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"mail-driver":  "mail.driver",
}

// Options controls Load.
type Options struct {
	// File is the YAML config path. Empty skips the file layer.
	File string
	// DotEnv is the .env path. A missing file is ignored.
	DotEnv string
	// Flags are consulted for flags the user set explicitly.
	Flags *pflag.FlagSet
	// Environ replaces os.Environ, mainly for tests.
	Environ func() []string
}

// Load builds a Config from the layered sources. It does not validate.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "defaults").Wrap(err)
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "file").With("path", opts.File).Wrap(err)
		}
	}

	if err := loadDotEnv(opts.DotEnv); err != nil {
		return nil, err
	}

	if err := loadEnv(k, opts.Environ); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		flags := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(flags, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_LOAD_FAILED").With("source", "dotenv").With("path", path).Wrap(err)
	}
	return nil
}

// loadEnv applies CMS_* variables whose name matches a known key. A nil
// environ reads the process environment.
func loadEnv(k *koanf.Koanf, environ func() []string) error {
	index := envKeyIndex(k.Keys())
	mapper := func(name, value string) (string, any) {
		key, ok := index[strings.ToLower(strings.TrimPrefix(name, EnvPrefix))]
		if !ok {
			return "", nil
		}
		if key == "http.cors_origins" {
			return key, splitList(value)
		}
		return key, value
	}

	if environ == nil {
		return k.Load(env.ProviderWithValue(EnvPrefix, ".", mapper), nil)
	}

	values := map[string]any{}
	for _, kv := range environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if key, v := mapper(name, value); key != "" {
			values[key] = v
		}
	}
	return k.Load(confmap.Provider(values, "."), nil)
}

// envKeyIndex maps "jwt_secret" style names to their dotted keys.
func envKeyIndex(keys []string) map[string]string {
	idx := make(map[string]string, len(keys))
	for _, key := range keys {
		idx[strings.ReplaceAll(key, ".", "_")] = key
	}
	return idx
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
