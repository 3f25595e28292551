package agorat

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "agorat",
	Short: "agorat - a bridge between Agora agents and the AT Protocol",
	Long:  "agorat connects negotiated-protocol Agora agents to the AT Protocol social network, with capability-scoped agents, persisted protocol registration and an HTTP gateway.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.agorat/agorat.toml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(negotiateCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(keygenCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of agorat",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agorat v%s\n", version)
	},
}
