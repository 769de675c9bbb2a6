package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/spf13/cobra"
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List games (owned library, falling back to locally installed)",
	RunE: func(cmd *cobra.Command, args []string) error {
		recent, _ := cmd.Flags().GetInt("recent")

		ctx, cancel := commandContext()
		defer cancel()
		facade := newFacade()

		var games []achievements.GameInfo
		if recent > 0 {
			games = facade.RecentlyPlayedGames(ctx, recent)
		} else {
			games = facade.Games(ctx)
		}
		printGames(cmd.OutOrStdout(), games)
		return nil
	},
}

var trackCmd = &cobra.Command{
	Use:   "track <app-id> [name]",
	Short: "Pin a game so it shows when nothing is running",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, err := strconv.Atoi(args[0])
		if err != nil || appID <= 0 {
			return fmt.Errorf("invalid app id %q", args[0])
		}
		name := ""
		if len(args) == 2 {
			name = strings.TrimSpace(args[1])
		}

		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient().SetTrackedGame(ctx, appID, name); err != nil {
			return fmt.Errorf("track game: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tracking app %d\n", appID)
		return nil
	},
}

var untrackCmd = &cobra.Command{
	Use:   "untrack",
	Short: "Stop tracking the pinned game",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient().ClearTrackedGame(ctx); err != nil {
			return fmt.Errorf("clear tracked game: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No longer tracking a game")
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [app-id]",
	Short: "Drop cached Steam data for one game, or for everything",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appID := 0
		if len(args) == 1 {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid app id %q", args[0])
			}
			appID = id
		}

		ctx, cancel := commandContext()
		defer cancel()
		if !newFacade().RefreshCache(ctx, appID) {
			return errors.New("cache refresh failed, see log for details")
		}
		if appID == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared for app %d\n", appID)
		}
		return nil
	},
}

func init() {
	gamesCmd.Flags().Int("recent", 0, "Only show this many recently played games")
}
