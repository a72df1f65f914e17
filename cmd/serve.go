package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ObiAU/newssearch/internal/aggregator"
	"github.com/ObiAU/newssearch/internal/cache"
	"github.com/ObiAU/newssearch/internal/server"
	"github.com/ObiAU/newssearch/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and, when configured, the Telegram bot",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agg, err := aggregator.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer agg.Close()

	janitor, err := cache.StartJanitor(agg.Store(), cfg.CacheEvictSchedule)
	if err != nil {
		return err
	}
	defer janitor.Stop()

	var (
		bot     *telegram.Bot
		webhook http.Handler
	)
	if cfg.TelegramToken != "" {
		bot, err = telegram.NewBot(cfg.TelegramToken, cfg.TelegramWebhookURL, agg)
		if err != nil {
			return err
		}
		if cfg.TelegramWebhookURL != "" {
			webhook = bot
		}
	}

	srv := server.New(cfg.ServerPort, agg, webhook)

	slog.Info("starting newssearch", "port", cfg.ServerPort, "cache", cfg.CachePath, "telegram", bot != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if bot != nil {
		g.Go(func() error {
			if err := bot.Start(gctx); err != nil {
				return fmt.Errorf("failed to start telegram bot: %w", err)
			}
			<-gctx.Done()
			bot.Wait()
			return nil
		})
	}

	err = g.Wait()
	slog.Info("newssearch stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
