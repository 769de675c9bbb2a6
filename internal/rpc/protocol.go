// Package rpc defines the JSON envelope spoken between the backend service and
// its clients, and an HTTP client for it.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Remote-callable backend functions.
const (
	MethodGetCurrentGame         = "get_current_game"
	MethodGetAchievements        = "get_achievements"
	MethodGetRecentAchievements  = "get_recent_achievements"
	MethodGetAchievementProgress = "get_achievement_progress"
	MethodGetInstalledGames      = "get_installed_games"
	MethodGetUserGames           = "get_user_games"
	MethodGetRecentlyPlayedGames = "get_recently_played_games"
	MethodGetGameArtwork         = "get_game_artwork"
	MethodSetSteamAPIKey         = "set_steam_api_key"
	MethodSetTrackedGame         = "set_tracked_game"
	MethodClearTrackedGame       = "clear_tracked_game"
	MethodRefreshCache           = "refresh_cache"
	MethodLoadSettings           = "load_settings"
	MethodReloadSettings         = "reload_settings"
	MethodSetAutoRefresh         = "set_auto_refresh"
	MethodSetRefreshInterval     = "set_refresh_interval"
)

// Error codes carried next to the error text.
const (
	CodeInProgress      = "in_progress"
	CodeNoAPIKey        = "no_api_key"
	CodeInvalidArgument = "invalid_argument"
	CodeUnknownMethod   = "unknown_method"
	CodeUnauthorized    = "unauthorized"
	CodeInternal        = "internal"
)

// Envelope is the body of every RPC response. A null Result with no Error
// means "nothing available".
type Envelope struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Args are the named arguments of a call.
type Args map[string]any

// Error is an error reported by the backend inside the envelope, as opposed to
// a transport failure.
type Error struct {
	Method  string
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Method, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Method, e.Message, e.Code)
}

// AsError extracts a backend error from err.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr, true
	}
	return nil, false
}

// Settings mirrors what load_settings returns.
type Settings struct {
	APIKeySet              bool   `json:"api_key_set"`
	SteamID                string `json:"steam_id,omitempty"`
	TrackedAppID           int    `json:"tracked_app_id,omitempty"`
	TrackedName            string `json:"tracked_name,omitempty"`
	AutoRefresh            bool   `json:"auto_refresh"`
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	TestAppID              int    `json:"test_app_id,omitempty"`
}

// Event is pushed over the /events websocket.
type Event struct {
	Type      string          `json:"type"`
	AppID     int             `json:"app_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

const (
	EventAchievementUnlocked = "achievement_unlocked"
	EventGameChanged         = "game_changed"
)
