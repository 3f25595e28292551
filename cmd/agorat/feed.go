package agorat

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/telemetry"
)

var (
	feedLimit       int
	feedMessageType string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Fetch the AT timeline and send it to the Agora agent for analysis",
	RunE:  runFeed,
}

func init() {
	feedCmd.Flags().IntVar(&feedLimit, "limit", 20, "number of feed items to fetch")
	feedCmd.Flags().StringVar(&feedMessageType, "message-type", "", "negotiated message type to attach")
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	ctx := telemetry.WithLogger(context.Background(), logger)

	application, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.bridge.AnalyzeFeed(ctx, feedLimit, feedMessageType)
	if err != nil {
		return fmt.Errorf("feed analysis failed: %w", err)
	}

	fmt.Println(result)
	return nil
}
