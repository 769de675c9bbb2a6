package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change backend settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		s, err := newClient().LoadSettings(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Make the backend re-read its persisted settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		s, err := newClient().ReloadSettings(ctx)
		if err != nil {
			return fmt.Errorf("reload settings: %w", err)
		}
		printSettings(cmd.OutOrStdout(), s)
		return nil
	},
}

var settingsKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the Steam Web API key (an empty string clears it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient().SetSteamAPIKey(ctx, args[0]); err != nil {
			return fmt.Errorf("set api key: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key saved")
		return nil
	},
}

var settingsAutoRefreshCmd = &cobra.Command{
	Use:   "auto-refresh <on|off>",
	Short: "Turn backend auto refresh on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		enabled, err := parseSwitch(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient().SetAutoRefresh(ctx, enabled); err != nil {
			return fmt.Errorf("set auto refresh: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Auto refresh %s\n", onOff(enabled))
		return nil
	},
}

var settingsIntervalCmd = &cobra.Command{
	Use:   "interval <duration>",
	Short: "Set the auto refresh interval (e.g. 90s, 5m)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			seconds, aerr := strconv.Atoi(args[0])
			if aerr != nil {
				return fmt.Errorf("invalid interval %q", args[0])
			}
			d = time.Duration(seconds) * time.Second
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := newClient().SetRefreshInterval(ctx, int(d/time.Second)); err != nil {
			return fmt.Errorf("set refresh interval: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Refresh interval set to %s\n", d)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsReloadCmd)
	settingsCmd.AddCommand(settingsKeyCmd)
	settingsCmd.AddCommand(settingsAutoRefreshCmd)
	settingsCmd.AddCommand(settingsIntervalCmd)
}

func parseSwitch(v string) (bool, error) {
	switch v {
	case "on", "enable", "enabled":
		return true, nil
	case "off", "disable", "disabled":
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", v)
	}
	return b, nil
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func printSettings(w io.Writer, s *rpc.Settings) {
	key := "not set"
	if s.APIKeySet {
		key = "set"
	}
	steamID := s.SteamID
	if steamID == "" {
		steamID = "(local login)"
	}
	tracked := "none"
	if s.TrackedAppID > 0 {
		tracked = fmt.Sprintf("%s (%d)", s.TrackedName, s.TrackedAppID)
	}

	fmt.Fprintf(w, "API key:          %s\n", key)
	fmt.Fprintf(w, "Steam ID:         %s\n", steamID)
	fmt.Fprintf(w, "Tracked game:     %s\n", tracked)
	fmt.Fprintf(w, "Auto refresh:     %s\n", onOff(s.AutoRefresh))
	fmt.Fprintf(w, "Refresh interval: %s\n", time.Duration(s.RefreshIntervalSeconds)*time.Second)
	if s.TestAppID > 0 {
		fmt.Fprintf(w, "Test app:         %d\n", s.TestAppID)
	}
}
