package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/viewmodel"
	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show achievement progress across the whole library",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		out := cmd.OutOrStdout()

		ctx, stop := signalContext()
		defer stop()

		ctrl := viewmodel.NewController(newFacade(), printNotification(cmd.ErrOrStderr()), achievements.DefaultOptions())
		defer ctrl.Close()

		last := ""
		ctrl.OnChange(func(s viewmodel.State) {
			if s.ProgressStatus != "" && s.ProgressStatus != last {
				fmt.Fprintln(cmd.ErrOrStderr(), s.ProgressStatus)
			}
			last = s.ProgressStatus
		})

		result := ctrl.LoadProgress(ctx, force)
		switch result.State {
		case viewmodel.PollDone:
			printProgress(out, result.Progress)
			return nil
		case viewmodel.PollTimedOut:
			return fmt.Errorf("progress still calculating after %d attempts", result.Attempts)
		default:
			if result.Err != nil && ctx.Err() == context.Canceled {
				return nil
			}
			return fmt.Errorf("progress failed: %w", result.Err)
		}
	},
}

func init() {
	progressCmd.Flags().Bool("force", false, "Discard the cached result and recalculate")
}

func printProgress(w io.Writer, p *achievements.OverallProgress) {
	if p == nil {
		fmt.Fprintln(w, "No progress available.")
		return
	}
	fmt.Fprintf(w, "Games owned:             %d\n", p.TotalGames)
	fmt.Fprintf(w, "Games with achievements: %d\n", p.GamesWithAchievements)
	fmt.Fprintf(w, "Achievements unlocked:   %d/%d\n", p.UnlockedAchievements, p.TotalAchievements)
	fmt.Fprintf(w, "Average completion:      %.2f%%\n", p.AverageCompletion)
	fmt.Fprintf(w, "Perfect games:           %d\n", p.PerfectGamesCount)
	for _, g := range p.PerfectGames {
		fmt.Fprintf(w, "  - %s (%d)\n", g.Name, g.AppID)
	}
	if !p.CalculatedAt.IsZero() {
		fmt.Fprintf(w, "Calculated at:           %s\n", p.CalculatedAt.Local().Format("2006-01-02 15:04"))
	}
}
