package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/hndigest/internal/app"
	"github.com/deusflow/hndigest/internal/config"
	"github.com/deusflow/hndigest/internal/logger"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hndigest",
	Short: "Post a curated Hacker News digest to Telegram",
	Long: `hndigest fetches the Hacker News top stories, keeps the popular ones,
asks a language model to pick and summarise seven of them, and posts the
digest to a Telegram chat.

Configuration comes from the environment or a .env file.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runDigest,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevelName(), Encoding: cfg.LogEncoding})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if err := app.Run(cmd.Context(), cfg, log); err != nil {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
