// Package backend implements the functions the UI calls remotely: current
// game resolution, achievements, progress, library listings, tracking and
// settings.
package backend

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/joshhsoj1902/deck-achievements/internal/settings"
	"github.com/joshhsoj1902/deck-achievements/internal/steam"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRecentLimit = 10
	DefaultRecentCount = 10
)

// SteamAPI is the cached Web API service.
type SteamAPI interface {
	Achievements(ctx context.Context, steamID string, appID int) (*achievements.AchievementSet, error)
	OwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error)
	RecentlyPlayed(ctx context.Context, steamID string, count int) ([]steam.OwnedGame, error)
	RecentAchievements(ctx context.Context, steamID string, limit, concurrency int) ([]achievements.RecentAchievement, error)
	Invalidate(ctx context.Context, steamID string, appID int) error
	SetAPIKey(key string)
	HasAPIKey() bool
}

// Progress is the background overall progress calculation.
type Progress interface {
	Get(ctx context.Context, steamID string, force bool) (*achievements.OverallProgress, error)
	Invalidate(ctx context.Context, steamID string) error
}

// Local is the Steam client on the same machine.
type Local interface {
	Available() bool
	RunningGame(ctx context.Context) (*achievements.GameInfo, error)
	CurrentUser(ctx context.Context) (*achievements.User, error)
	InstalledGames(ctx context.Context) ([]achievements.GameInfo, error)
	AppDetails(ctx context.Context, appID int) (*achievements.GameInfo, error)
	Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error)
}

// Scheduler receives auto refresh changes made through settings.
type Scheduler interface {
	SetEnabled(enabled bool)
	SetInterval(d time.Duration)
}

type Backend struct {
	steam       SteamAPI
	progress    Progress
	local       Local
	settings    *settings.Store
	scheduler   Scheduler
	concurrency int
}

// New wires the backend. local and scheduler may be nil.
func New(api SteamAPI, progress Progress, local Local, store *settings.Store, concurrency int) *Backend {
	return &Backend{
		steam:       api,
		progress:    progress,
		local:       local,
		settings:    store,
		concurrency: max(concurrency, 1),
	}
}

// SetScheduler attaches the auto refresh manager. It is set after
// construction because the manager itself reads from the backend.
func (b *Backend) SetScheduler(s Scheduler) {
	b.scheduler = s
}

func (b *Backend) localAvailable() bool {
	return b.local != nil && b.local.Available()
}

// steamID picks the configured user, falling back to the local login.
func (b *Backend) steamID(ctx context.Context) (string, error) {
	if id := b.settings.Get().SteamID; id != "" {
		return id, nil
	}
	if b.localAvailable() {
		user, err := b.local.CurrentUser(ctx)
		if err != nil {
			logger.Log.WithError(err).Warn("Reading local Steam user failed")
		} else if user != nil {
			return user.SteamID, nil
		}
	}
	return "", ErrNoSteamID
}

// credentials returns the Steam id once an API key is known to be set.
func (b *Backend) credentials(ctx context.Context) (string, error) {
	if !b.steam.HasAPIKey() {
		return "", ErrNoAPIKey
	}
	return b.steamID(ctx)
}

func (b *Backend) gameInfo(ctx context.Context, appID int, name string) *achievements.GameInfo {
	if b.localAvailable() {
		if info, err := b.local.AppDetails(ctx, appID); err == nil && info != nil {
			return info
		}
	}
	if name == "" {
		name = fmt.Sprintf("App %d", appID)
	}
	return &achievements.GameInfo{
		AppID:          appID,
		Name:           name,
		HeaderImageURL: achievements.HeaderImageURL(appID),
	}
}

// CurrentGame resolves, in order: the test override, the running game, the
// tracked game. nil means nothing to show.
func (b *Backend) CurrentGame(ctx context.Context) (*achievements.GameInfo, error) {
	s := b.settings.Get()

	if s.TestAppID > 0 {
		game := b.gameInfo(ctx, s.TestAppID, "")
		game.IsRunning = true
		return game, nil
	}

	if b.localAvailable() {
		game, err := b.local.RunningGame(ctx)
		if err != nil {
			logger.Log.WithError(err).Warn("Reading running game failed")
		} else if game != nil {
			return game, nil
		}
	}

	if s.Tracked != nil {
		return b.gameInfo(ctx, s.Tracked.AppID, s.Tracked.Name), nil
	}
	return nil, nil
}

// Achievements returns the set for appID, or for the current game when appID
// is 0. Without a current game the result is nil.
func (b *Backend) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	var known *achievements.GameInfo
	if appID <= 0 {
		game, err := b.CurrentGame(ctx)
		if err != nil || game == nil {
			return nil, err
		}
		known = game
		appID = game.AppID
	}

	steamID, err := b.credentials(ctx)
	if err != nil {
		if set := b.localAchievements(ctx, appID); set != nil {
			return set, nil
		}
		return nil, err
	}

	set, err := b.steam.Achievements(ctx, steamID, appID)
	switch {
	case errors.Is(err, steam.ErrPrivateProfile):
		return achievements.ErrorSet(appID, "Steam profile game details are private"), nil
	case errors.Is(err, steam.ErrRateLimited):
		if local := b.localAchievements(ctx, appID); local != nil {
			return local, nil
		}
		return nil, err
	case err != nil:
		return nil, err
	}

	if set.GameName == "" {
		if known == nil {
			known = b.gameInfo(ctx, appID, "")
		}
		set.GameName = known.Name
	}
	return set, nil
}

func (b *Backend) localAchievements(ctx context.Context, appID int) *achievements.AchievementSet {
	if !b.localAvailable() {
		return nil
	}
	set, err := b.local.Achievements(ctx, appID)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"app_id": appID, "error": err.Error()}).Warn("Reading local achievements failed")
		return nil
	}
	return set
}

func (b *Backend) RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	steamID, err := b.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return b.steam.RecentAchievements(ctx, steamID, limit, b.concurrency)
}

// AchievementProgress returns ErrProgressInProgress until the background
// calculation has a result.
func (b *Backend) AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error) {
	steamID, err := b.credentials(ctx)
	if err != nil {
		return nil, err
	}
	return b.progress.Get(ctx, steamID, forceRefresh)
}

// InstalledGames lists games installed on this machine.
func (b *Backend) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	if !b.localAvailable() {
		return []achievements.GameInfo{}, nil
	}
	return b.local.InstalledGames(ctx)
}

// UserGames lists the whole owned library, most played first.
func (b *Backend) UserGames(ctx context.Context) ([]achievements.GameInfo, error) {
	steamID, err := b.credentials(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := b.steam.OwnedGames(ctx, steamID)
	if err != nil {
		return nil, err
	}
	games := toGameInfos(owned)
	slices.SortStableFunc(games, func(a, b achievements.GameInfo) int {
		return cmp.Compare(b.PlaytimeMinutes, a.PlaytimeMinutes)
	})
	return games, nil
}

func (b *Backend) RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error) {
	if count <= 0 {
		count = DefaultRecentCount
	}
	steamID, err := b.credentials(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := b.steam.RecentlyPlayed(ctx, steamID, count)
	if err != nil {
		return nil, err
	}
	return toGameInfos(recent), nil
}

func toGameInfos(owned []steam.OwnedGame) []achievements.GameInfo {
	games := make([]achievements.GameInfo, 0, len(owned))
	for _, g := range owned {
		games = append(games, achievements.GameInfo{
			AppID:           g.AppID,
			Name:            g.Name,
			HasAchievements: g.HasStats,
			HeaderImageURL:  achievements.HeaderImageURL(g.AppID),
			PlaytimeMinutes: g.PlaytimeForever,
		})
	}
	return games
}

func (b *Backend) GameArtwork(ctx context.Context, appID int) (*achievements.Artwork, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("%w: app_id must be positive", ErrInvalidArgument)
	}
	art := achievements.ArtworkFor(appID)
	return &art, nil
}

// SetSteamAPIKey stores the key and applies it immediately. An empty key
// clears it.
func (b *Backend) SetSteamAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if err := b.settings.SetAPIKey(ctx, key); err != nil {
		return err
	}
	b.steam.SetAPIKey(key)
	logger.Log.WithField("api_key_set", key != "").Info("Steam API key updated")
	return nil
}

func (b *Backend) SetTrackedGame(ctx context.Context, appID int, name string) error {
	if appID <= 0 {
		return fmt.Errorf("%w: app_id must be positive", ErrInvalidArgument)
	}
	if name == "" {
		name = b.gameInfo(ctx, appID, "").Name
	}
	if err := b.settings.SetTracked(ctx, achievements.TrackedGame{AppID: appID, Name: name}); err != nil {
		return err
	}
	logger.Log.WithFields(logrus.Fields{"app_id": appID, "name": name}).Info("Tracking game")
	return nil
}

func (b *Backend) ClearTrackedGame(ctx context.Context) error {
	return b.settings.ClearTracked(ctx)
}

// RefreshCache drops cached player data for appID, or for everything
// (including overall progress) when appID is 0.
func (b *Backend) RefreshCache(ctx context.Context, appID int) error {
	steamID, err := b.steamID(ctx)
	if err != nil {
		return err
	}
	if err := b.steam.Invalidate(ctx, steamID, appID); err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	if appID <= 0 {
		if err := b.progress.Invalidate(ctx, steamID); err != nil {
			return fmt.Errorf("invalidating progress: %w", err)
		}
	}
	return nil
}

// LoadSettings returns the settings without the key itself.
func (b *Backend) LoadSettings(ctx context.Context) (*rpc.Settings, error) {
	return publicSettings(b.settings.Get()), nil
}

// ReloadSettings re-reads persisted settings and applies them.
func (b *Backend) ReloadSettings(ctx context.Context) (*rpc.Settings, error) {
	s, err := b.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	b.apply(s)
	return publicSettings(s), nil
}

// Apply pushes the current settings into the Steam client and scheduler.
func (b *Backend) Apply() {
	b.apply(b.settings.Get())
}

func (b *Backend) apply(s settings.Settings) {
	b.steam.SetAPIKey(s.APIKey)
	if b.scheduler != nil {
		b.scheduler.SetInterval(s.RefreshInterval)
		b.scheduler.SetEnabled(s.AutoRefresh)
	}
}

func (b *Backend) SetAutoRefresh(ctx context.Context, enabled bool) error {
	if err := b.settings.SetAutoRefresh(ctx, enabled); err != nil {
		return err
	}
	if b.scheduler != nil {
		b.scheduler.SetEnabled(enabled)
	}
	return nil
}

func (b *Backend) SetRefreshInterval(ctx context.Context, seconds int) error {
	d := time.Duration(seconds) * time.Second
	if err := b.settings.SetRefreshInterval(ctx, d); err != nil {
		if errors.Is(err, settings.ErrInvalidInterval) {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return err
	}
	if b.scheduler != nil {
		b.scheduler.SetInterval(d)
	}
	return nil
}

func publicSettings(s settings.Settings) *rpc.Settings {
	out := &rpc.Settings{
		APIKeySet:              s.APIKey != "",
		SteamID:                s.SteamID,
		AutoRefresh:            s.AutoRefresh,
		RefreshIntervalSeconds: int(s.RefreshInterval / time.Second),
		TestAppID:              s.TestAppID,
	}
	if s.Tracked != nil {
		out.TrackedAppID = s.Tracked.AppID
		out.TrackedName = s.Tracked.Name
	}
	return out
}
