// Package viewmodel is the client-side core behind the achievement views: a
// data source facade over the backend and the local Steam client, the
// overall-progress poller, and a single-owner view state controller.
package viewmodel

import (
	"context"
	"errors"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

// Remote is the out-of-process backend.
type Remote interface {
	CurrentGame(ctx context.Context) (*achievements.GameInfo, error)
	Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error)
	RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error)
	AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error)
	UserGames(ctx context.Context) ([]achievements.GameInfo, error)
	RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error)
	SetTrackedGame(ctx context.Context, appID int, name string) error
	ClearTrackedGame(ctx context.Context) error
	RefreshCache(ctx context.Context, appID int) error
}

// Native is the in-process Steam client integration. It may be absent at
// runtime, which Available reports.
type Native interface {
	Available() bool
	RunningGame(ctx context.Context) (*achievements.GameInfo, error)
	Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error)
	AppDetails(ctx context.Context, appID int) (*achievements.GameInfo, error)
	Playtime(ctx context.Context, appID int) (int, error)
	CurrentUser(ctx context.Context) (*achievements.User, error)
	InstalledGames(ctx context.Context) ([]achievements.GameInfo, error)
	SubscribeAchievementChanges(fn func(appID int)) (func(), error)
}

// Facade picks between the native integration and the backend for each data
// need. It never returns errors: absence and failure both end in a sentinel
// (nil, an empty slice, or a set carrying Error).
type Facade struct {
	remote Remote
	native Native
	poller *Poller
}

func NewFacade(remote Remote, native Native, poller *Poller) *Facade {
	return &Facade{
		remote: remote,
		native: native,
		poller: poller,
	}
}

func (f *Facade) nativeAvailable() bool {
	return f.native != nil && f.native.Available()
}

func logFailure(op string, source string, err error) {
	logger.Log.WithFields(logrus.Fields{
		"op":     op,
		"source": source,
		"error":  err.Error(),
	}).Warn("Data source call failed")
}

// CurrentGame asks the native integration for the running game first, then
// the backend (which also knows tracked and override games).
func (f *Facade) CurrentGame(ctx context.Context) *achievements.GameInfo {
	if f.nativeAvailable() {
		game, err := f.native.RunningGame(ctx)
		if err != nil {
			logFailure("current_game", "native", err)
		} else if game != nil {
			return game
		}
	}

	game, err := f.remote.CurrentGame(ctx)
	if err != nil {
		logFailure("current_game", "remote", err)
		return nil
	}
	return game
}

// Achievements loads the set for appID, or for the current game when appID is
// 0. The backend goes first because only it has global percentages.
func (f *Facade) Achievements(ctx context.Context, appID int) *achievements.AchievementSet {
	if appID <= 0 {
		game := f.CurrentGame(ctx)
		if game == nil {
			return nil
		}
		appID = game.AppID
	}

	var lastErr error
	remoteSet, err := f.remote.Achievements(ctx, appID)
	switch {
	case err != nil:
		logFailure("achievements", "remote", err)
		lastErr = err
	case remoteSet != nil && remoteSet.Error != "":
		logger.Log.WithFields(logrus.Fields{
			"app_id": appID,
			"error":  remoteSet.Error,
		}).Warn("Backend returned achievement error")
		lastErr = errors.New(remoteSet.Error)
		remoteSet = nil
	case remoteSet != nil && remoteSet.Total > 0:
		return remoteSet
	}

	if f.nativeAvailable() {
		nativeSet, err := f.native.Achievements(ctx, appID)
		if err != nil {
			logFailure("achievements", "native", err)
			lastErr = err
		} else if nativeSet.OK() && nativeSet.Total > 0 {
			return nativeSet
		}
	}

	if remoteSet != nil {
		// The game exists but has no achievements.
		return remoteSet
	}
	if lastErr != nil {
		return achievements.ErrorSet(appID, "%s", lastErr.Error())
	}
	return nil
}

// GameInfo comes from the native integration only.
func (f *Facade) GameInfo(ctx context.Context, appID int) *achievements.GameInfo {
	if !f.nativeAvailable() {
		return nil
	}
	info, err := f.native.AppDetails(ctx, appID)
	if err != nil {
		logFailure("game_info", "native", err)
		return nil
	}
	if info == nil {
		return nil
	}
	if info.PlaytimeMinutes == 0 {
		if minutes, err := f.native.Playtime(ctx, appID); err == nil {
			info.PlaytimeMinutes = minutes
		} else {
			logger.Log.WithError(err).WithField("app_id", appID).Debug("Playtime lookup failed")
		}
	}
	return info
}

// InstalledGames prefers the backend's full library and falls back to the
// locally installed games.
func (f *Facade) InstalledGames(ctx context.Context) []achievements.GameInfo {
	games, err := f.remote.UserGames(ctx)
	if err != nil {
		logFailure("installed_games", "remote", err)
	} else if len(games) > 0 {
		return games
	}

	if f.nativeAvailable() {
		local, err := f.native.InstalledGames(ctx)
		if err != nil {
			logFailure("installed_games", "native", err)
		} else if local != nil {
			return local
		}
	}
	return []achievements.GameInfo{}
}

// Games is an alias of InstalledGames.
func (f *Facade) Games(ctx context.Context) []achievements.GameInfo {
	return f.InstalledGames(ctx)
}

func (f *Facade) RecentAchievements(ctx context.Context, limit int) []achievements.RecentAchievement {
	recent, err := f.remote.RecentAchievements(ctx, limit)
	if err != nil {
		logFailure("recent_achievements", "remote", err)
		return []achievements.RecentAchievement{}
	}
	if recent == nil {
		return []achievements.RecentAchievement{}
	}
	return recent
}

func (f *Facade) RecentlyPlayedGames(ctx context.Context, count int) []achievements.GameInfo {
	games, err := f.remote.RecentlyPlayedGames(ctx, count)
	if err != nil {
		logFailure("recently_played_games", "remote", err)
		return []achievements.GameInfo{}
	}
	if games == nil {
		return []achievements.GameInfo{}
	}
	return games
}

func (f *Facade) CurrentUser(ctx context.Context) *achievements.User {
	if !f.nativeAvailable() {
		return nil
	}
	user, err := f.native.CurrentUser(ctx)
	if err != nil {
		logFailure("current_user", "native", err)
		return nil
	}
	return user
}

// AchievementProgress runs the overall progress computation through the poller.
func (f *Facade) AchievementProgress(ctx context.Context, forceRefresh bool, status StatusFunc) PollResult {
	return f.poller.Poll(ctx, forceRefresh, status)
}

func (f *Facade) SetTrackedGame(ctx context.Context, appID int, name string) bool {
	if err := f.remote.SetTrackedGame(ctx, appID, name); err != nil {
		logFailure("set_tracked_game", "remote", err)
		return false
	}
	return true
}

func (f *Facade) ClearTrackedGame(ctx context.Context) bool {
	if err := f.remote.ClearTrackedGame(ctx); err != nil {
		logFailure("clear_tracked_game", "remote", err)
		return false
	}
	return true
}

func (f *Facade) RefreshCache(ctx context.Context, appID int) bool {
	if err := f.remote.RefreshCache(ctx, appID); err != nil {
		logFailure("refresh_cache", "remote", err)
		return false
	}
	return true
}

// SubscribeAchievementChanges registers fn with the native integration. The
// returned disposer is always safe to call.
func (f *Facade) SubscribeAchievementChanges(fn func(appID int)) func() {
	if !f.nativeAvailable() {
		return func() {}
	}
	unsubscribe, err := f.native.SubscribeAchievementChanges(fn)
	if err != nil {
		logFailure("subscribe", "native", err)
		return func() {}
	}
	return unsubscribe
}
