package app

import (
	"context"

	"github.com/acs-lite/mikrotik-gateway/internal/botconfig"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/rs/zerolog"
)

// LoadBotConfig tries static config, then the SQL tables, then admin.json.
// Both processes use it so they agree on the token and the admins. The
// returned func closes any database handle that was opened and is never nil.
func LoadBotConfig(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*botconfig.BotConfig, func(), error) {
	closer := func() {}
	sources := []botconfig.Source{
		botconfig.Static{Token: cfg.Telegram.BotToken, AdminChatIDs: cfg.Telegram.AdminChatIDs},
	}
	if cfg.Telegram.DBDSN != "" {
		db, err := botconfig.OpenDB(cfg.Telegram.DBDriver, cfg.Telegram.DBDSN)
		if err != nil {
			log.Warn().Err(err).Msg("bot config database unavailable")
		} else {
			closer = func() { _ = db.Close() }
			sources = append(sources, botconfig.SQL{DB: db})
		}
	}
	sources = append(sources, botconfig.File{Path: cfg.Telegram.AdminFile})

	botCfg, err := botconfig.Chain{Sources: sources, Log: log}.Load(ctx)
	return botCfg, closer, err
}
