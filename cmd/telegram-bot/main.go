package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acs-lite/mikrotik-gateway/internal/app"
	"github.com/acs-lite/mikrotik-gateway/internal/bot"
	"github.com/acs-lite/mikrotik-gateway/internal/botconfig"
	"github.com/acs-lite/mikrotik-gateway/internal/command"
	"github.com/acs-lite/mikrotik-gateway/internal/config"
	"github.com/acs-lite/mikrotik-gateway/internal/logger"
	"github.com/acs-lite/mikrotik-gateway/internal/metrics"
	"github.com/acs-lite/mikrotik-gateway/internal/pidfile"
	"github.com/acs-lite/mikrotik-gateway/internal/poller"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "telegram-bot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("telegram-bot", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "Path to config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, "telegram-bot", flags)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Output: cfg.Log.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.WithComponent("main")
	log.Info().Msg("starting telegram bot (long polling mode)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botCfg, closeSources, err := app.LoadBotConfig(ctx, cfg, log)
	defer closeSources()
	if errors.Is(err, botconfig.ErrNotConfigured) {
		log.Error().Msg("bot token not configured")
		return err
	}
	if err != nil {
		return err
	}
	allow := botCfg.Allowlist()
	log.Info().Str("source", botCfg.Source).Int("admins", len(allow)).Msg("bot configuration loaded")
	if len(allow) == 0 {
		log.Warn().Msg("no admin chat ids configured, every sender will be rejected")
	}

	if cfg.Metrics.Enabled && cfg.Telegram.MetricsAddr != "" {
		metrics.Init()
		go serveMetrics(ctx, cfg, log)
	}

	pid, err := pidfile.Write(cfg.Telegram.PIDFile)
	if err != nil {
		log.Warn().Err(err).Msg("pid file not written")
	} else {
		defer func() {
			if err := pid.Remove(); err != nil {
				log.Warn().Err(err).Msg("remove pid file")
			}
		}()
	}

	stack, err := app.Build(cfg, nil)
	if err != nil {
		return err
	}
	defer stack.Close()

	client, err := telegram.New(cfg.Telegram.APIBaseURL, botCfg.Token, cfg.Telegram.RequestTimeout)
	if err != nil {
		return fmt.Errorf("init telegram client: %w", err)
	}
	router := command.New(stack.Dispatcher, logger.WithComponent("command"))
	processor := bot.NewProcessor(client, router, allow, logger.WithComponent("bot"))

	loop := poller.New(client, processor, poller.Config{
		PollTimeout:         cfg.Telegram.PollTimeout,
		RequestTimeout:      cfg.Telegram.RequestTimeout,
		MaxErrors:           cfg.Telegram.MaxErrors,
		ShortBackoff:        cfg.Telegram.ShortBackoff,
		LongBackoff:         cfg.Telegram.LongBackoff,
		MaxDeliveryAttempts: cfg.Telegram.MaxDeliveryAttempts,
		StartupNotice:       cfg.Telegram.StartupNotice,
	}, logger.WithComponent("poller"))

	if _, err := loop.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to connect to telegram api")
		return err
	}
	return loop.Run(ctx)
}

// serveMetrics exposes the poller collectors until ctx is done.
func serveMetrics(ctx context.Context, cfg *config.Config, log zerolog.Logger) {
	path := cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	srv := fiber.New(fiber.Config{AppName: "telegram-bot", DisableStartupMessage: true})
	srv.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()
	if err := srv.Listen(cfg.Telegram.MetricsAddr); err != nil {
		log.Warn().Err(err).Msg("metrics listener stopped")
	}
}
