// cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dnd-mplus-bot/handlers"
	"dnd-mplus-bot/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var noBot bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord bot, the scheduler and the admin HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noBot, "no-bot", false, "run scheduler and admin server without connecting to Discord")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, !noBot)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	sched, err := workers.NewScheduler(ctx, a.loc,
		func(ctx context.Context) error { _, err := a.rotation.Run(ctx); return err },
		func(ctx context.Context) error { _, err := a.sync.Run(ctx); return err },
		logger.Named("scheduler"))
	if err != nil {
		return err
	}
	sched.Start()
	defer func() {
		if err := sched.Shutdown(); err != nil {
			logger.Warn("Scheduler shutdown failed", zap.Error(err))
		}
	}()

	if !noBot {
		bot, err := handlers.NewDiscordBot(a.cfg.Discord.Token, a.cfg.Discord.GuildID, a.registrations, logger.Named("discord"))
		if err != nil {
			return err
		}
		if err := bot.Open(ctx); err != nil {
			return err
		}
		defer bot.Close()
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handlers.SetupAdminRoutes(app, &handlers.AdminHandler{
		Signups:   a.registrations,
		Rotator:   a.rotation,
		Syncer:    a.sync,
		Scheduler: sched,
		Logger:    logger.Named("admin"),
	}, a.cfg.Admin.ServiceToken)

	errCh := make(chan error, 1)
	go func() {
		if err := app.Listen(a.cfg.Admin.Addr); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()

	logger.Info("✅ Admin server running", zap.String("addr", a.cfg.Admin.Addr))
	logger.Info("✅ Scheduler running", zap.String("timezone", a.loc.String()))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Info("Shutting down...")
	return app.Shutdown()
}
