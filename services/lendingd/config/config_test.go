package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " :6000 "
tls:
  allow_insecure: true
signatures:
  timestamp_skew: 90s
cors:
  allowed_origins: [" https://app.test ", " "]
rate_limits:
  offers:
    requests_per_minute: 30
    burst: 5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":6000", cfg.ListenAddress)
	require.Equal(t, "prod", cfg.Environment)
	require.Equal(t, defaultDataDir, cfg.DataDir)
	require.Equal(t, 90*time.Second, cfg.Signatures.TimestampSkew)
	require.Equal(t, defaultNonceCapacity, cfg.Signatures.NonceCapacity)
	require.Equal(t, []string{"https://app.test"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, "lending:admin", cfg.Auth.AdminScope)
	require.Equal(t, "sqlite", cfg.Indexer.Driver)
	require.Equal(t, 5, cfg.RateLimits["offers"].Burst)
	require.False(t, cfg.TLS.Enabled())
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
listen: ":6000"
tls:
  allow_insecure: true
lsiten: ":7000"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadConfigValidatesTLS(t *testing.T) {
	_, err := Load(writeConfig(t, `
tls:
  cert: "server.crt"
`))
	require.ErrorContains(t, err, "tls")

	_, err = Load(writeConfig(t, `listen: ":6000"`))
	require.ErrorContains(t, err, "allow_insecure")
}

func TestLoadConfigRequiresSecretForAuth(t *testing.T) {
	_, err := Load(writeConfig(t, `
tls:
  allow_insecure: true
auth:
  enabled: true
`))
	require.ErrorContains(t, err, "hmac_secret")
}

func TestLoadConfigValidatesIndexer(t *testing.T) {
	_, err := Load(writeConfig(t, `
tls:
  allow_insecure: true
indexer:
  enabled: true
  driver: postgres
`))
	require.ErrorContains(t, err, "dsn")

	_, err = Load(writeConfig(t, `
tls:
  allow_insecure: true
indexer:
  enabled: true
  driver: mysql
`))
	require.ErrorContains(t, err, "unsupported driver")
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LENDINGD_JWT_SECRET=from-dotenv\nLENDINGD_ENV=dev\n"), 0o600))
	t.Setenv("LENDINGD_LISTEN", ":9999")
	t.Setenv("LENDINGD_ENV", "staging")
	t.Setenv("LENDINGD_JWT_SECRET", "")
	os.Unsetenv("LENDINGD_JWT_SECRET")

	require.NoError(t, LoadEnv(envPath, filepath.Join(dir, "missing.env")))

	cfg, err := Load(writeConfig(t, `
listen: ":6000"
tls:
  allow_insecure: true
auth:
  enabled: true
`))
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment, "process env wins over .env")
	require.Equal(t, "from-dotenv", cfg.Auth.HMACSecret)
}

func TestEnvOverrideRejectsBadBool(t *testing.T) {
	t.Setenv("LENDINGD_ALLOW_MIGRATE", "maybe")
	_, err := Load(writeConfig(t, `
tls:
  allow_insecure: true
`))
	require.ErrorContains(t, err, "LENDINGD_ALLOW_MIGRATE")
}
