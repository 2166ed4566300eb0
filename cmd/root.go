package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/piececount/puzzledex/internal/config"
)

var cfg *config.Config

// cliUser is the identity CLI commands act as. The HTTP API resolves users
// from bearer tokens instead.
var cliUser string

var rootCmd = &cobra.Command{
	Use:   "puzzledex",
	Short: "Jigsaw puzzle catalog with AI price lookups",
	Long:  "Catalogs jigsaw puzzles with photos, estimates resale prices via Claude, and enforces a per-puzzle weekly lookup limit.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cliUser, "user", "local", "user ID to act as")
}
