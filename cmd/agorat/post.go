package agorat

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/telemetry"
)

var postCmd = &cobra.Command{
	Use:   "post <text>",
	Short: "Create a post on the AT side and notify subscribers",
	Args:  cobra.ExactArgs(1),
	RunE:  runPost,
}

func runPost(cmd *cobra.Command, args []string) error {
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

	result, err := application.bridge.PostAndNotify(ctx, args[0])
	if err != nil {
		return fmt.Errorf("posting failed: %w", err)
	}

	fmt.Println(result)
	return nil
}
