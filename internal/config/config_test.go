package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("RPC_URL", "")

	cfg := Load(New())

	assert.Empty(t, cfg.RPCURLs)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, uint64(5000), cfg.FeeLamports)
	assert.Equal(t, 4, cfg.AccountsPerEndpoint)
	assert.Equal(t, 5, cfg.ErrorThreshold)
	assert.Equal(t, 5*time.Minute, cfg.ReportInterval)
	assert.Equal(t, 60*time.Second, cfg.ConfirmTimeout)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "282RaYXcDsxJhNMDiG3ZPHRUM4MFX1aVPQ3dYKxDPg7b", cfg.Destination)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingBotToken)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("RPC_URL", "https://one.example.com")
	t.Setenv("RPC_URL3", " wss://three.example.com ")
	t.Setenv("RPC_URL10", "https://ten.example.com")
	t.Setenv("RPC_URL11", "https://ignored.example.com")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("PORT", "8080")
	t.Setenv("REPORT_INTERVAL", "30s")
	t.Setenv("STORE_DRIVER", "Memory")

	cfg := Load(New())

	assert.Equal(t, []string{
		"https://one.example.com",
		"wss://three.example.com",
		"https://ten.example.com",
	}, cfg.RPCURLs)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ReportInterval)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_StoreDriver(t *testing.T) {
	cfg := &Config{BotToken: "t", StoreDriver: DriverPostgres}
	assert.ErrorIs(t, cfg.Validate(), ErrMissingPostgresDSN)

	cfg.PostgresDSN = "postgres://localhost/db"
	assert.NoError(t, cfg.Validate())

	cfg.StoreDriver = "mongo"
	assert.ErrorIs(t, cfg.Validate(), ErrUnknownStoreDriver)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SWEEPER_TEST_VAR=from-file\n"), 0o600))
	t.Setenv("SWEEPER_TEST_VAR", "")
	os.Unsetenv("SWEEPER_TEST_VAR")

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("SWEEPER_TEST_VAR"))
}
