package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlnvch/collabdocs/config"
)

const testSecret = "c2VjcmV0" // "secret"

func TestLoad_DefaultsWithEnvSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2*time.Second, cfg.Realtime.DisplacementGrace)
	assert.Equal(t, 10*time.Second, cfg.Store.ConnectTimeout)
	assert.Equal(t, time.Hour, cfg.Mail.ResetTokenTTL)

	secret, err := cfg.JWTSecretBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), secret)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
auth:
  jwt_secret: c2VjcmV0
store:
  driver: postgres
  postgres_url: postgres://localhost/docs
realtime:
  displacement_grace: 5s
server:
  allowed_origins: ["http://a.test"]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	t.Setenv("DISPLACEMENT_GRACE", "3s")
	t.Setenv("ALLOWED_ORIGINS", "http://b.test, http://c.test")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 3*time.Second, cfg.Realtime.DisplacementGrace)
	assert.Equal(t, []string{"http://b.test", "http://c.test"}, cfg.Server.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"missing secret", func(c *config.Config) { c.Auth.JWTSecret = "" }},
		{"secret not base64", func(c *config.Config) { c.Auth.JWTSecret = "not base64!" }},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "mongo" }},
		{"postgres without url", func(c *config.Config) { c.Store.Driver = config.DriverPostgres }},
		{"zero grace", func(c *config.Config) { c.Realtime.DisplacementGrace = 0 }},
		{"zero connect timeout", func(c *config.Config) { c.Store.ConnectTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Auth.JWTSecret = testSecret
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TOKEN_TTL", "forever")

	_, err := config.Load("")
	assert.Error(t, err)
}
