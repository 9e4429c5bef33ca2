package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimal = `
server:
  addr: ":8080"
db:
  dsn: "postgres://localhost/quickshop"
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "usd", cfg.Pricing.BaseCurrency, "base currency defaults")
	assert.EqualValues(t, 60, cfg.Worker.IntervalSeconds)
	assert.EqualValues(t, 120, cfg.Worker.MinAgeSeconds)
}

func TestLoadRequiresAddrAndDSN(t *testing.T) {
	_, err := Load(writeConfig(t, "db:\n  dsn: x\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  addr: x\n"))
	require.Error(t, err)
}

func TestLoadRejectsAlternateCurrencyWithoutRate(t *testing.T) {
	_, err := Load(writeConfig(t, minimal+`
pricing:
  alternate_currency: "gnf"
`))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("ALTERNATE_CURRENCY", "gnf")
	t.Setenv("EXCHANGE_RATE", "8600")
	t.Setenv("WORKER_INTERVAL_SECONDS", "30")

	cfg, err := Load(writeConfig(t, minimal))
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "gnf", cfg.Pricing.AlternateCurrency)
	assert.EqualValues(t, 8600, cfg.Pricing.ExchangeRate)
	assert.EqualValues(t, 30, cfg.Worker.IntervalSeconds)
}
