package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/localsteam"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/joshhsoj1902/deck-achievements/internal/viewmodel"
)

func newClient() *rpc.Client {
	return rpc.NewClient(cfg.RPC.URL, cfg.RPC.Secret, cfg.RPC.Timeout)
}

// newFacade combines the backend with the local Steam install, when present.
func newFacade() *viewmodel.Facade {
	client := newClient()
	poller := viewmodel.NewPoller(client, viewmodel.PollerConfig{
		MaxAttempts:      cfg.Poller.MaxAttempts,
		Delay:            cfg.Poller.Delay,
		InProgressMarker: cfg.Poller.InProgressMarker,
	})

	var native viewmodel.Native
	if local := localsteam.New(cfg.Steam.Root); local.Available() {
		native = local
	}
	return viewmodel.NewFacade(client, native, poller)
}

func printNotification(w io.Writer) viewmodel.Notifier {
	return viewmodel.NotifierFunc(func(n viewmodel.Notification) {
		fmt.Fprintf(w, "! %s: %s\n", n.Title, n.Body)
	})
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.RPC.Timeout)
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func formatUnlock(a achievements.Achievement) string {
	t := a.UnlockedAt()
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatPercent(a achievements.Achievement) string {
	if p, ok := a.KnownPercent(); ok {
		return fmt.Sprintf("%.1f%%", p)
	}
	return "?"
}

func printGame(w io.Writer, game *achievements.GameInfo) {
	if game == nil {
		fmt.Fprintln(w, "No game running or tracked.")
		return
	}
	state := "tracked"
	if game.IsRunning {
		state = "running"
	}
	fmt.Fprintf(w, "%s (%d) [%s]\n", game.Name, game.AppID, state)
	if game.TotalAchievements > 0 {
		fmt.Fprintf(w, "  %d achievements\n", game.TotalAchievements)
	}
	if game.PlaytimeMinutes > 0 {
		fmt.Fprintf(w, "  %s played\n", (time.Duration(game.PlaytimeMinutes) * time.Minute).String())
	}
}

func printAchievements(w io.Writer, set *achievements.AchievementSet, visible []achievements.Achievement) {
	fmt.Fprintf(w, "%s: %d/%d unlocked (%.1f%%)\n", set.GameName, set.UnlockedCount, set.Total, set.Percentage())
	if len(visible) == 0 {
		fmt.Fprintln(w, "No achievements to show.")
		return
	}

	fmt.Fprintf(w, "%-3s  %-32s  %-7s  %-16s  %s\n", "", "Name", "Global", "Unlocked", "Description")
	fmt.Fprintln(w, strings.Repeat("─", 100))
	for _, a := range visible {
		mark := " "
		if a.Unlocked {
			mark = "✓"
		}
		name := a.DisplayName
		if name == "" {
			name = a.APIName
		}
		fmt.Fprintf(w, "%-3s  %-32s  %-7s  %-16s  %s\n",
			mark,
			truncate(name, 32),
			formatPercent(a),
			formatUnlock(a),
			a.VisibleDescription(),
		)
	}
}

func printGames(w io.Writer, games []achievements.GameInfo) {
	if len(games) == 0 {
		fmt.Fprintln(w, "No games found.")
		return
	}
	fmt.Fprintf(w, "%-10s  %-40s  %-10s  %s\n", "App ID", "Name", "Playtime", "Achievements")
	fmt.Fprintln(w, strings.Repeat("─", 80))
	for _, g := range games {
		ach := "-"
		if g.TotalAchievements > 0 {
			ach = fmt.Sprintf("%d", g.TotalAchievements)
		} else if g.HasAchievements {
			ach = "yes"
		}
		fmt.Fprintf(w, "%-10d  %-40s  %-10s  %s\n",
			g.AppID,
			truncate(g.Name, 40),
			fmt.Sprintf("%dh%02dm", g.PlaytimeMinutes/60, g.PlaytimeMinutes%60),
			ach,
		)
	}
}
