package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load("order-ledger")
	require.NoError(t, err)

	assert.Equal(t, "order-ledger", cfg.App.Name)
	assert.Equal(t, uint64(10_000_000_000_000), cfg.App.FixedFee)
	assert.Equal(t, int64(300), cfg.App.GraceWindow)
	assert.Equal(t, "memory", cfg.App.Store)
	assert.False(t, cfg.Infra.Nacos.Enabled)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9001
  grace_window: 60
  status_policy: "next > current"
  relay_interval: 250ms
infra:
  kafka:
    brokers: ["k1:9092", "k2:9092"]
log:
  level: debug
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("APP_PORT", "9100")
	t.Setenv("LEDGER_REJECTING_RECIPIENTS", "0xabc, 0xdef")

	cfg, err := Load("order-ledger")
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.Port, "env overrides file")
	assert.Equal(t, int64(60), cfg.App.GraceWindow)
	assert.Equal(t, "next > current", cfg.App.StatusPolicy)
	assert.Equal(t, 250*time.Millisecond, cfg.App.RelayInterval)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, []string{"0xabc", "0xdef"}, cfg.App.RejectingRecipients)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, uint64(10_000_000_000_000), cfg.App.FixedFee, "untouched defaults survive")
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LEDGER_GRACE_WINDOW", "five minutes")

	_, err := Load("order-ledger")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_GRACE_WINDOW")
}

func TestMergeRemote(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	_, err := Init("order-ledger")
	require.NoError(t, err)
	t.Cleanup(func() { current.Store(nil) })

	cfg, err := MergeRemote("app:\n  status_policy: \"next != 0\"\n")
	require.NoError(t, err)
	assert.Equal(t, "next != 0", cfg.App.StatusPolicy)
	assert.Equal(t, "next != 0", GetCurrentConfig().App.StatusPolicy)
	assert.Equal(t, int64(300), GetCurrentConfig().App.GraceWindow)

	_, err = MergeRemote("app: [")
	assert.Error(t, err)
	assert.Equal(t, "next != 0", GetCurrentConfig().App.StatusPolicy, "bad remote config is ignored")
}
