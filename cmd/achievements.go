package cmd

import (
	"fmt"
	"strconv"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/viewmodel"
	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the running or tracked game",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		printGame(cmd.OutOrStdout(), newFacade().CurrentGame(ctx))
		return nil
	},
}

var achievementsCmd = &cobra.Command{
	Use:   "achievements [app-id]",
	Short: "List achievements for a game (default: the current game)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()
		out := cmd.OutOrStdout()
		facade := newFacade()

		if len(args) == 1 {
			appID, err := strconv.Atoi(args[0])
			if err != nil || appID <= 0 {
				return fmt.Errorf("invalid app id %q", args[0])
			}
			set := facade.Achievements(ctx, appID)
			if set == nil {
				fmt.Fprintln(out, "No achievements available.")
				return nil
			}
			if set.Error != "" {
				return fmt.Errorf("couldn't load achievements: %s", set.Error)
			}
			printAchievements(out, set, achievements.Project(set.Items, opts))
			return nil
		}

		ctrl := viewmodel.NewController(facade, printNotification(cmd.ErrOrStderr()), opts)
		defer ctrl.Close()

		state := ctrl.Refresh(ctx)
		printGame(out, state.CurrentGame)
		if state.Achievements == nil || state.LastError != "" {
			return nil
		}
		printAchievements(out, state.Achievements, state.Visible)
		return nil
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recently unlocked achievements across games",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := commandContext()
		defer cancel()
		out := cmd.OutOrStdout()

		recent := newFacade().RecentAchievements(ctx, limit)
		if len(recent) == 0 {
			fmt.Fprintln(out, "No recent achievements.")
			return nil
		}
		fmt.Fprintf(out, "%-16s  %-28s  %-32s  %s\n", "Unlocked", "Game", "Achievement", "Global")
		for _, r := range recent {
			fmt.Fprintf(out, "%-16s  %-28s  %-32s  %s\n",
				formatUnlock(r.Achievement),
				truncate(r.GameName, 28),
				truncate(r.DisplayName, 32),
				formatPercent(r.Achievement),
			)
		}
		return nil
	},
}

func init() {
	addDisplayFlags(achievementsCmd)
	recentCmd.Flags().Int("limit", 10, "Maximum number of achievements")
}

func addDisplayFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("sort", string(achievements.SortByUnlock), "Sort by: unlock, name, rarity")
	f.String("order", string(achievements.SortDesc), "Sort order: asc, desc")
	f.Bool("show-hidden", false, "Include hidden achievements that are still locked")
	f.Float64("rarity", 0, "Only show achievements unlocked by at most this percent of players")
	f.Bool("unlocked-only", false, "Only show unlocked achievements")
	f.Bool("locked-only", false, "Only show locked achievements")
}

func optionsFromFlags(cmd *cobra.Command) (achievements.Options, error) {
	sortBy, _ := cmd.Flags().GetString("sort")
	order, _ := cmd.Flags().GetString("order")
	showHidden, _ := cmd.Flags().GetBool("show-hidden")
	rarity, _ := cmd.Flags().GetFloat64("rarity")
	unlockedOnly, _ := cmd.Flags().GetBool("unlocked-only")
	lockedOnly, _ := cmd.Flags().GetBool("locked-only")

	opts, err := achievements.ParseOptions(sortBy, order, showHidden, rarity, unlockedOnly, lockedOnly)
	if err != nil {
		return achievements.Options{}, fmt.Errorf("invalid display options: %w", err)
	}
	return opts, nil
}
