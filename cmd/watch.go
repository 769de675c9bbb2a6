package cmd

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/joshhsoj1902/deck-achievements/internal/viewmodel"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the current game and print unlocks as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := optionsFromFlags(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		ctx, stop := signalContext()
		defer stop()

		ctrl := viewmodel.NewController(newFacade(), printNotification(cmd.ErrOrStderr()), opts)
		defer ctrl.Close()

		var mu sync.Mutex
		lastApp := -1
		ctrl.OnChange(func(s viewmodel.State) {
			mu.Lock()
			defer mu.Unlock()
			if s.Loading {
				return
			}
			appID := 0
			if s.CurrentGame != nil {
				appID = s.CurrentGame.AppID
			}
			if appID != lastApp {
				printGame(out, s.CurrentGame)
				lastApp = appID
			}
			if s.Achievements != nil && s.Achievements.OK() {
				fmt.Fprintf(out, "  %d/%d unlocked\n", s.Achievements.UnlockedCount, s.Achievements.Total)
			}
		})

		ctrl.Refresh(ctx)
		ctrl.Watch(ctx)
		ctrl.StartAutoRefresh(cfg.Refresh.Interval)

		// The backend pushes unlocks it sees through the Web API.
		client := newClient()
		dispose, err := client.Subscribe(ctx, func(ev rpc.Event) {
			switch ev.Type {
			case rpc.EventAchievementUnlocked:
				var a achievements.Achievement
				if err := json.Unmarshal(ev.Data, &a); err == nil {
					fmt.Fprintf(out, "★ Unlocked: %s - %s\n", a.DisplayName, a.VisibleDescription())
				}
				go ctrl.Refresh(ctx)
			case rpc.EventGameChanged:
				go ctrl.Refresh(ctx)
			}
		})
		if err != nil {
			logger.Log.WithError(err).Warn("Backend event stream unavailable, relying on local changes and polling")
		} else {
			defer dispose()
		}

		<-ctx.Done()
		return nil
	},
}

func init() {
	addDisplayFlags(watchCmd)
}
