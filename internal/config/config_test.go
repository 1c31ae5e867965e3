package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, "https://api.blockcypher.com/v1/btc/main", cfg.Blockchain.Endpoint)
	assert.Equal(t, "https://api.coingecko.com/api/v3/simple/price", cfg.Price.Endpoint)
	assert.Equal(t, "bitcoin", cfg.Price.Asset)
	assert.Equal(t, "usd", cfg.Price.Currency)
	assert.Equal(t, 10*time.Second, cfg.Blockchain.RequestTimeout)
	assert.Equal(t, "bitcoin_details", cfg.Database.Table)
	assert.Empty(t, cfg.Metrics.ListenAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: postgres://postgres:postgres@db:5432/postgres
scheduler:
  interval: 2m
blockchain:
  endpoint: http://chain.local/v1/btc/main
price:
  endpoint: http://price.local/simple/price
  currency: eur
metrics:
  listen_addr: ":9102"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://postgres:postgres@db:5432/postgres", cfg.Database.DSN)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "http://chain.local/v1/btc/main", cfg.Blockchain.Endpoint)
	assert.Equal(t, "eur", cfg.Price.Currency)
	assert.Equal(t, ":9102", cfg.Metrics.ListenAddr)
}

func TestLoadIntervalAsSeconds(t *testing.T) {
	cfg, err := Load(writeConfig(t, "scheduler:\n  interval: 30\n"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BTCCOLLECTOR_DATABASE_DSN", "postgres://env@localhost/btc")
	t.Setenv("BTCCOLLECTOR_SCHEDULER_INTERVAL", "15")
	t.Setenv("BTCCOLLECTOR_PRICE_ENDPOINT", "https://pro-api.example/simple/price")

	cfg, err := Load(writeConfig(t, "scheduler:\n  interval: 5m\n"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env@localhost/btc", cfg.Database.DSN)
	assert.Equal(t, 15*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, "https://pro-api.example/simple/price", cfg.Price.Endpoint)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero interval", body: "scheduler:\n  interval: 0s\n"},
		{name: "relative endpoint", body: "blockchain:\n  endpoint: /v1/btc/main\n"},
		{name: "ftp endpoint", body: "price:\n  endpoint: ftp://price.local/\n"},
		{name: "empty asset", body: "price:\n  asset: \"\"\n"},
		{name: "empty table", body: "database:\n  table: \"\"\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	assert.Equal(t, 100, cfg.ResolveMaxPoints(0))
	assert.Equal(t, 7, cfg.ResolveMaxPoints(7))
}
