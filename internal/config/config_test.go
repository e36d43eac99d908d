package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func files(contents map[string]string) func(string) ([]byte, error) {
	return func(path string) ([]byte, error) {
		if c, ok := contents[path]; ok {
			return []byte(c), nil
		}
		return nil, errors.New("no such file")
	}
}

const sampleYAML = `
server:
  port: 9000
  cors_origins: ["https://app.example.com"]
database:
  driver: postgres
  dsn: postgres://localhost/signals
auth:
  jwt_secret: from-file
  token_ttl: 2h
log:
  level: debug
jobs:
  digest_spec: "@every 5m"
bootstrap:
  - username: root
    password: rootpass
    role: admin
  - username: caller
    password: callpass
    role: callmaker
`

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(nil, env(nil), files(nil))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "@daily", cfg.Jobs.PruneSpec)

	// No secret configured.
	assert.ErrorContains(t, cfg.Validate(), "jwt secret")
}

func TestLoad_Precedence(t *testing.T) {
	cfg, err := load(
		[]string{"--config", "app.yaml", "--log-level", "warn"},
		env(map[string]string{"PORT": "7000", "LOG_LEVEL": "error", "JWT_SECRET": "from-env"}),
		files(map[string]string{"app.yaml": sampleYAML}),
	)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port, "env overrides file")
	assert.Equal(t, "warn", cfg.Log.Level, "flag overrides env")
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "postgres", cfg.Database.Driver, "file overrides default")
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "@every 5m", cfg.Jobs.DigestSpec)
	assert.Equal(t, "@daily", cfg.Jobs.PruneSpec, "unset file keys keep defaults")
	require.Len(t, cfg.Bootstrap, 2)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	cfg, err := load(nil, env(map[string]string{ConfigEnv: "app.yaml"}), files(map[string]string{"app.yaml": sampleYAML}))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := load([]string{"--config", "missing.yaml"}, env(nil), files(nil))
	assert.ErrorContains(t, err, "read config file")

	_, err = load([]string{"--config", "bad.yaml"}, env(nil), files(map[string]string{"bad.yaml": "server:\n  prot: 1\n"}))
	assert.ErrorContains(t, err, "parse config file")

	_, err = load(nil, env(map[string]string{"PORT": "eighty", "TOKEN_TTL": "soon"}), files(nil))
	assert.ErrorContains(t, err, "PORT")
	assert.ErrorContains(t, err, "TOKEN_TTL")

	_, err = load([]string{"--no-such-flag"}, env(nil), files(nil))
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := load(nil, env(map[string]string{
		"CORS_ORIGINS":   "https://a.example.com, https://b.example.com,",
		"S3_BUCKET":      "charts",
		"S3_PATH_STYLE":  "true",
		"S3_PRESIGN_TTL": "5m",
		"BCRYPT_COST":    "12",
		"ADMIN_HANDLE":   "boss",
		"ADMIN_PASSWORD": "bosspass",
	}), files(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "charts", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.PathStyle)
	assert.Equal(t, 5*time.Minute, cfg.Storage.PresignTTL)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	require.Len(t, cfg.Bootstrap, 1)
	assert.Equal(t, BootstrapUser{Username: "boss", Password: "bosspass", Role: "admin"}, cfg.Bootstrap[0])
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Auth.JWTSecret = "s"
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"driver":       func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":          func(c *Config) { c.Database.DSN = "" },
		"secret":       func(c *Config) { c.Auth.JWTSecret = "  " },
		"cost":         func(c *Config) { c.Auth.BcryptCost = 4 },
		"ttl":          func(c *Config) { c.Auth.TokenTTL = 0 },
		"port":         func(c *Config) { c.Server.Port = 70000 },
		"log format":   func(c *Config) { c.Log.Format = "xml" },
		"role":         func(c *Config) { c.Bootstrap = []BootstrapUser{{Username: "x", Password: "y", Role: "root"}} },
		"missing pass": func(c *Config) { c.Bootstrap = []BootstrapUser{{Username: "x", Role: "admin"}} },
		"duplicate": func(c *Config) {
			c.Bootstrap = []BootstrapUser{{Username: "x", Password: "y", Role: "admin"}, {Username: "x", Password: "y", Role: "user"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
