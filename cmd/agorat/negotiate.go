package agorat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agora-at/agorat/pkg/telemetry"
)

var negotiateMessageType string

var negotiateCmd = &cobra.Command{
	Use:   "negotiate <description>",
	Short: "Negotiate a protocol with the remote Agora agent",
	Long:  "Negotiate sends a natural-language protocol description to the configured Agora endpoint. With --message-type the negotiated protocol is registered and persisted for that type.",
	Args:  cobra.ExactArgs(1),
	RunE:  runNegotiate,
}

func init() {
	negotiateCmd.Flags().StringVar(&negotiateMessageType, "message-type", "", "register the protocol under this message type")
}

func runNegotiate(cmd *cobra.Command, args []string) error {
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

	negotiated, err := application.bridge.Negotiate(ctx, args[0], negotiateMessageType)
	if err != nil {
		return fmt.Errorf("negotiation failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(negotiated)
}
