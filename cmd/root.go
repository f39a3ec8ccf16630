package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sdmlab/fim-catalog/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fim-catalog",
	Short: "FIM catalog and tile pipeline",
	Long:  "Crawls flood inundation map metadata on S3, normalizes it into a versioned catalog snapshot with a spatial extract, and builds vector tiles for map clients.",
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
