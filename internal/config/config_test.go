package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "NAS", cfg.KIS.DefaultExchange)
	require.Equal(t, "/oauth2/tokenP", cfg.KIS.TokenPath)
	require.True(t, cfg.SSLVerify)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: "9090"
kis:
  app_key: yaml-key
  base_url: https://broker.example.test
cache:
  quote_ttl_sec: 45
concurrency: 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "yaml-key", cfg.KIS.AppKey)
	require.Equal(t, 45, cfg.Cache.QuoteTTLSeconds)
	require.Equal(t, 3, cfg.Concurrency)
	// untouched defaults survive a partial file
	require.Equal(t, "FHKST01010100", cfg.KIS.TrIDPrice)
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("KIS_APP_KEY", "env-key")
	t.Setenv("KIS_BASE_URL", " https://env.example.test/ ")
	t.Setenv("KIS_DEFAULT_EXCD", "nys")
	t.Setenv("QUOTE_CACHE_TTL", "20")
	t.Setenv("QUOTE_SSL_VERIFY", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, "env-key", cfg.KIS.AppKey)
	require.Equal(t, "https://env.example.test", cfg.KIS.BaseURL)
	require.Equal(t, "NYS", cfg.KIS.DefaultExchange)
	require.Equal(t, 20, cfg.Cache.QuoteTTLSeconds)
	require.False(t, cfg.SSLVerify)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}

func TestClamps(t *testing.T) {
	cfg := Default()

	cfg.Cache.QuoteTTLSeconds = 5
	require.Equal(t, 15, cfg.QuoteTTLSeconds())
	cfg.Cache.QuoteTTLSeconds = 600
	require.Equal(t, 60, cfg.QuoteTTLSeconds())
	cfg.Cache.QuoteTTLSeconds = 30
	require.Equal(t, 30, cfg.QuoteTTLSeconds())

	cfg.FX.TTLSeconds = 0
	require.Equal(t, cfg.QuoteTTLSeconds(), cfg.FXTTLSeconds())
	cfg.FX.TTLSeconds = 10
	require.Equal(t, 15, cfg.FXTTLSeconds())

	cfg.Concurrency = 0
	require.Equal(t, 1, cfg.ConcurrencyLimit())
	cfg.Concurrency = 100
	require.Equal(t, 8, cfg.ConcurrencyLimit())
	cfg.Concurrency = 6
	require.Equal(t, 6, cfg.ConcurrencyLimit())
}
