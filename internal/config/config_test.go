package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), "telegram-bot", nil)
	require.NoError(t, err)

	assert.Equal(t, "telegram-bot", cfg.App)
	assert.Equal(t, ":8090", cfg.HTTP.Addr)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, filepath.Join("data", "telegram-bot-journal.db"), filepath.Clean(cfg.Storage.JournalPath))
	assert.Equal(t, "router1", cfg.RouterDefaults.ID)
	assert.Equal(t, 8728, cfg.RouterDefaults.Port)
	assert.Equal(t, 5, cfg.Telegram.MaxErrors)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Greater(t, cfg.Telegram.RequestTimeout, cfg.Telegram.PollTimeout)
	assert.Equal(t, 3, cfg.Telegram.MaxDeliveryAttempts)
}

func TestLoadFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
http:
  addr: ":9000"
telegram:
  bot_token: "123:abc"
  admin_chat_ids: ["42", "43"]
  poll_timeout: 20s
voucher:
  comment_prefix: "vc-test"
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "debug"}))

	cfg, err := Load(path, "mikrotik-gateway", flags)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, []string{"42", "43"}, cfg.Telegram.AdminChatIDs)
	assert.Equal(t, "vc-test", cfg.Voucher.CommentPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 35*time.Second, cfg.Telegram.RequestTimeout)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http: [unterminated"), 0o600))

	_, err := Load(path, "mikrotik-gateway", nil)
	require.Error(t, err)
}
