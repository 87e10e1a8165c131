package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/acs-lite/mikrotik-gateway/internal/botconfig"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBotConfigFallsBackToAdminFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"bot_token":"123:file","admin_chat_ids":[42]}}`), 0o600))
	cfg := &config.Config{}
	cfg.Telegram.AdminFile = path

	botCfg, closer, err := LoadBotConfig(context.Background(), cfg, zerolog.Nop())
	defer closer()
	require.NoError(t, err)
	assert.Equal(t, "123:file", botCfg.Token)
	assert.True(t, botCfg.Allowlist().Allowed(42))
}

func TestLoadBotConfigStaticWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admin.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"telegram":{"bot_token":"123:file","admin_chat_ids":[42]}}`), 0o600))
	cfg := &config.Config{}
	cfg.Telegram.BotToken = "999:static"
	cfg.Telegram.AdminFile = path

	botCfg, closer, err := LoadBotConfig(context.Background(), cfg, zerolog.Nop())
	defer closer()
	require.NoError(t, err)
	assert.Equal(t, "999:static", botCfg.Token)
}

func TestLoadBotConfigNotConfigured(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.AdminFile = filepath.Join(t.TempDir(), "absent.json")
	cfg.Telegram.DBDriver = "nope"
	cfg.Telegram.DBDSN = "whatever"

	_, closer, err := LoadBotConfig(context.Background(), cfg, zerolog.Nop())
	require.NotNil(t, closer)
	closer()
	assert.ErrorIs(t, err, botconfig.ErrNotConfigured)
}
