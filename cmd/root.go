package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ObiAU/newssearch/internal/config"
	"github.com/ObiAU/newssearch/internal/logging"
)

var (
	configPath string
	logLevel   string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "newssearch",
	Short: "Search, read and summarize news",
	Long: `newssearch finds recent coverage for a query, extracts the article text,
drops duplicate stories and summarizes each article with an LLM.

Modes:
  newssearch search <query>   One-off search printed to the terminal
  newssearch serve            HTTP API and Telegram bot
  newssearch cache stats      Inspect the summary cache`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		level, err := logging.ParseLevel(loaded.LogLevel)
		if err != nil {
			return err
		}
		logging.Init(level, loaded.LogFormat, os.Stderr)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to a YAML config file (default $NEWSSEARCH_CONFIG or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "",
		"Log level: debug, info, warn, error (overrides LOG_LEVEL)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
