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
	"github.com/acs-lite/mikrotik-gateway/internal/server"
	"github.com/acs-lite/mikrotik-gateway/internal/telegram"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mikrotik-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("mikrotik-gateway", pflag.ExitOnError)
	configPath := flags.String("config", "config.yaml", "Path to config file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, "mikrotik-gateway", flags)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Output: cfg.Log.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.WithComponent("main")
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	stack, err := app.Build(cfg, nil)
	if err != nil {
		return err
	}
	defer stack.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webhook, closeSources, err := webhookProcessor(ctx, cfg, stack, log)
	defer closeSources()
	if err != nil {
		return err
	}
	srv := server.New(cfg, stack.Dispatcher, webhook, logger.WithComponent("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// webhookProcessor loads the bot configuration from the same sources as the
// polling bot and returns a nil processor when no token is configured.
func webhookProcessor(ctx context.Context, cfg *config.Config, stack *app.Stack, log zerolog.Logger) (server.UpdateProcessor, func(), error) {
	botCfg, closer, err := app.LoadBotConfig(ctx, cfg, log)
	if errors.Is(err, botconfig.ErrNotConfigured) {
		log.Info().Msg("bot token not configured, webhook disabled")
		return nil, closer, nil
	}
	if err != nil {
		return nil, closer, err
	}
	client, err := telegram.New(cfg.Telegram.APIBaseURL, botCfg.Token, cfg.Telegram.RequestTimeout)
	if err != nil {
		return nil, closer, fmt.Errorf("init telegram client: %w", err)
	}
	log.Info().Str("source", botCfg.Source).Msg("webhook enabled")
	router := command.New(stack.Dispatcher, logger.WithComponent("command"))
	return bot.NewProcessor(client, router, botCfg.Allowlist(), logger.WithComponent("bot")), closer, nil
}
