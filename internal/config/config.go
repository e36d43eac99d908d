// Package config loads the service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (from
// --config or SIGNALDESK_CONFIG), then environment variables, then command
// line flags. Later layers override earlier ones.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/isdelr/signaldesk-be/internal/database"
	"github.com/isdelr/signaldesk-be/internal/models"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "SIGNALDESK_CONFIG"

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Bootstrap []BootstrapUser `yaml:"bootstrap"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres" (aliases per database.ParseDriver).
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite and a connection URL for postgres.
	DSN string `yaml:"dsn"`
}

// AuthConfig configures token issuance and password hashing.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// StorageConfig configures chart image storage. Leaving Bucket empty
// disables chart uploads.
type StorageConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Region     string        `yaml:"region"`
	Bucket     string        `yaml:"bucket"`
	AccessKey  string        `yaml:"access_key"`
	SecretKey  string        `yaml:"secret_key"`
	PathStyle  bool          `yaml:"path_style"`
	PresignTTL time.Duration `yaml:"presign_ttl"`
}

// JobsConfig configures the housekeeping scheduler. An empty spec disables
// the job.
type JobsConfig struct {
	PruneSpec      string        `yaml:"prune_spec"`
	EventRetention time.Duration `yaml:"event_retention"`
	DigestSpec     string        `yaml:"digest_spec"`
}

// BootstrapUser is an account created at startup when missing.
type BootstrapUser struct {
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DisplayName string `yaml:"display_name"`
	Role        string `yaml:"role"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "./signaldesk.db"},
		Auth:     AuthConfig{TokenTTL: time.Hour, BcryptCost: 10},
		Log:      LogConfig{Level: "info", Format: "console"},
		Storage:  StorageConfig{Region: "us-east-1", PresignTTL: 15 * time.Minute},
		Jobs: JobsConfig{
			PruneSpec:      "@daily",
			EventRetention: 30 * 24 * time.Hour,
			DigestSpec:     "@every 15m",
		},
	}
}

// Load builds the configuration from the process arguments (without the
// program name) and environment.
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv, os.ReadFile)
}

func load(args []string, lookup func(string) (string, bool), readFile func(string) ([]byte, error)) (*Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("signaldesk", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to a YAML config file")
	port := fs.Int("port", cfg.Server.Port, "HTTP listen port")
	driver := fs.String("database-driver", cfg.Database.Driver, "store backend: sqlite or postgres")
	dsn := fs.String("database-dsn", cfg.Database.DSN, "sqlite file path or postgres URL")
	logLevel := fs.String("log-level", cfg.Log.Level, "log level")
	logFormat := fs.String("log-format", cfg.Log.Format, "log format: console or json")
	tokenTTL := fs.Duration("token-ttl", cfg.Auth.TokenTTL, "access token lifetime")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	path := *configPath
	if path == "" {
		path, _ = lookup(ConfigEnv)
	}
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if fs.Changed("port") {
		cfg.Server.Port = *port
	}
	if fs.Changed("database-driver") {
		cfg.Database.Driver = *driver
	}
	if fs.Changed("database-dsn") {
		cfg.Database.DSN = *dsn
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = *logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = *logFormat
	}
	if fs.Changed("token-ttl") {
		cfg.Auth.TokenTTL = *tokenTTL
	}

	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	integer("PORT", &c.Server.Port)
	if v, ok := lookup("CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	duration("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	duration("TOKEN_TTL", &c.Auth.TokenTTL)
	integer("BCRYPT_COST", &c.Auth.BcryptCost)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("S3_ENDPOINT", &c.Storage.Endpoint)
	str("S3_REGION", &c.Storage.Region)
	str("S3_BUCKET", &c.Storage.Bucket)
	str("S3_ACCESS_KEY", &c.Storage.AccessKey)
	str("S3_SECRET_KEY", &c.Storage.SecretKey)
	boolean("S3_PATH_STYLE", &c.Storage.PathStyle)
	duration("S3_PRESIGN_TTL", &c.Storage.PresignTTL)
	str("JOBS_PRUNE_SPEC", &c.Jobs.PruneSpec)
	duration("JOBS_EVENT_RETENTION", &c.Jobs.EventRetention)
	str("JOBS_DIGEST_SPEC", &c.Jobs.DigestSpec)

	if handle, ok := lookup("ADMIN_HANDLE"); ok && handle != "" {
		password, _ := lookup("ADMIN_PASSWORD")
		c.Bootstrap = append(c.Bootstrap, BootstrapUser{
			Username: handle,
			Password: password,
			Role:     string(models.RoleAdmin),
		})
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(errs...))
	}
	return nil
}

// Validate reports configuration the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if _, err := database.ParseDriver(c.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required (set JWT_SECRET)"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.Auth.BcryptCost < 10 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d is below the minimum of 10", c.Auth.BcryptCost))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	seen := make(map[string]bool)
	for i, u := range c.Bootstrap {
		if u.Username == "" || u.Password == "" {
			errs = append(errs, fmt.Errorf("bootstrap user %d: username and password are required", i))
		}
		if _, ok := models.ParseRole(u.Role); !ok {
			errs = append(errs, fmt.Errorf("bootstrap user %q: unknown role %q", u.Username, u.Role))
		}
		if seen[u.Username] {
			errs = append(errs, fmt.Errorf("bootstrap user %q listed twice", u.Username))
		}
		seen[u.Username] = true
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
