package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshhsoj1902/deck-achievements/internal/config"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "deck-achievements",
	Short: "Steam achievement tracker for handheld PCs",
	Long: "deck-achievements runs a backend that merges Steam Web API data with the local " +
		"Steam client, and a set of client commands that show achievements from it.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (a .env next to it is also read)")
	rootCmd.PersistentFlags().String("backend", "", "Backend URL (overrides BACKEND_URL)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(currentCmd)
	rootCmd.AddCommand(achievementsCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(gamesCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(watchCmd)
}

// setup loads configuration and logging before any command runs. Flags win
// over the environment, which wins over the config file.
func setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if url, _ := cmd.Flags().GetString("backend"); url != "" {
		loaded.RPC.URL = url
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		loaded.Log.Level = level
	}
	cfg = loaded

	logger.Init(cfg.Log.Level, cfg.Log.File)
	if cmd != serveCmd && cfg.Log.File == "" {
		logger.UseStderr()
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
