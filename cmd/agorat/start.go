package agorat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/bot"
	"github.com/agora-at/agorat/pkg/gateway"
	"github.com/agora-at/agorat/pkg/telemetry"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the agorat gateway and mention bot",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting agorat",
		slog.String("version", version),
		slog.Int("port", cfg.Gateway.Port),
		slog.String("bind", cfg.Gateway.Bind),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "agorat",
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	gw := gateway.New(gateway.Config{
		Bind:      cfg.Gateway.Bind,
		Port:      cfg.Gateway.Port,
		Bridge:    application.bridge,
		Logger:    logger,
		AuthToken: cfg.Gateway.AuthToken,
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- gw.Start(ctx)
	}()

	if cfg.Bot.Enabled {
		interval, err := time.ParseDuration(cfg.Bot.Interval)
		if err != nil {
			return fmt.Errorf("parsing bot interval: %w", err)
		}
		handle := cfg.Bot.Handle
		if handle == "" {
			handle = cfg.ATProto.Identifier
		}
		mentionBot, err := bot.New(application.atproto, bot.Config{
			Handle:      handle,
			Interval:    interval,
			MaxMentions: cfg.Bot.MaxMentions,
		}, logger)
		if err != nil {
			return fmt.Errorf("building bot: %w", err)
		}
		go func() {
			errCh <- mentionBot.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}
}
