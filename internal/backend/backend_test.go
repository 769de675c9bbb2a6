package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/settings"
	"github.com/joshhsoj1902/deck-achievements/internal/steam"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSteam struct {
	key         string
	sets        map[int]*achievements.AchievementSet
	achieveErr  error
	owned       []steam.OwnedGame
	recent      []achievements.RecentAchievement
	invalidated []int
	steamIDs    []string
}

func (f *fakeSteam) Achievements(ctx context.Context, steamID string, appID int) (*achievements.AchievementSet, error) {
	f.steamIDs = append(f.steamIDs, steamID)
	if f.achieveErr != nil {
		return nil, f.achieveErr
	}
	set, ok := f.sets[appID]
	if !ok {
		return achievements.NewAchievementSet(appID, "", []achievements.Achievement{}), nil
	}
	return set, nil
}

func (f *fakeSteam) OwnedGames(ctx context.Context, steamID string) ([]steam.OwnedGame, error) {
	return f.owned, nil
}

func (f *fakeSteam) RecentlyPlayed(ctx context.Context, steamID string, count int) ([]steam.OwnedGame, error) {
	if count < len(f.owned) {
		return f.owned[:count], nil
	}
	return f.owned, nil
}

func (f *fakeSteam) RecentAchievements(ctx context.Context, steamID string, limit, concurrency int) ([]achievements.RecentAchievement, error) {
	return f.recent, nil
}

func (f *fakeSteam) Invalidate(ctx context.Context, steamID string, appID int) error {
	f.invalidated = append(f.invalidated, appID)
	return nil
}

func (f *fakeSteam) SetAPIKey(key string) { f.key = key }
func (f *fakeSteam) HasAPIKey() bool      { return f.key != "" }

type fakeProgress struct {
	forced      []bool
	result      *achievements.OverallProgress
	invalidated int
}

func (f *fakeProgress) Get(ctx context.Context, steamID string, force bool) (*achievements.OverallProgress, error) {
	f.forced = append(f.forced, force)
	if f.result == nil || force {
		return nil, steam.ErrProgressInProgress
	}
	return f.result, nil
}

func (f *fakeProgress) Invalidate(ctx context.Context, steamID string) error {
	f.invalidated++
	return nil
}

type fakeLocal struct {
	available bool
	running   *achievements.GameInfo
	user      *achievements.User
	installed []achievements.GameInfo
	details   map[int]*achievements.GameInfo
	sets      map[int]*achievements.AchievementSet
}

func (f *fakeLocal) Available() bool { return f.available }
func (f *fakeLocal) RunningGame(ctx context.Context) (*achievements.GameInfo, error) {
	return f.running, nil
}
func (f *fakeLocal) CurrentUser(ctx context.Context) (*achievements.User, error) { return f.user, nil }
func (f *fakeLocal) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	return f.installed, nil
}
func (f *fakeLocal) AppDetails(ctx context.Context, appID int) (*achievements.GameInfo, error) {
	info, ok := f.details[appID]
	if !ok {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}
func (f *fakeLocal) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	return f.sets[appID], nil
}

type fakeScheduler struct {
	enabled  *bool
	interval time.Duration
}

func (f *fakeScheduler) SetEnabled(v bool)           { f.enabled = &v }
func (f *fakeScheduler) SetInterval(d time.Duration) { f.interval = d }

type fixture struct {
	backend  *Backend
	steam    *fakeSteam
	progress *fakeProgress
	local    *fakeLocal
	store    *settings.Store
}

func newFixture(t *testing.T, defaults settings.Settings) *fixture {
	t.Helper()
	logger.Silence()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{
		steam:    &fakeSteam{key: defaults.APIKey, sets: map[int]*achievements.AchievementSet{}},
		progress: &fakeProgress{},
		local: &fakeLocal{
			available: true,
			user:      &achievements.User{SteamID: "76561197960287930"},
			details:   map[int]*achievements.GameInfo{},
			sets:      map[int]*achievements.AchievementSet{},
		},
		store: settings.NewStore(c, defaults),
	}
	f.backend = New(f.steam, f.progress, f.local, f.store, 2)
	return f
}

func TestCurrentGame_ResolutionOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{APIKey: "k"})

	game, err := f.backend.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Nil(t, game)

	require.NoError(t, f.backend.SetTrackedGame(ctx, 70, "Half-Life"))
	game, err = f.backend.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70, game.AppID)
	assert.Equal(t, "Half-Life", game.Name)
	assert.False(t, game.IsRunning)

	f.local.running = &achievements.GameInfo{AppID: 620, Name: "Portal 2", IsRunning: true}
	game, err = f.backend.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 620, game.AppID)

	require.NoError(t, f.store.SetTestAppID(ctx, 440))
	game, err = f.backend.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 440, game.AppID)
	assert.True(t, game.IsRunning)
}

func TestAchievements_CurrentGameAndNameFill(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{APIKey: "k"})
	f.local.running = &achievements.GameInfo{AppID: 620, Name: "Portal 2", IsRunning: true}
	f.steam.sets[620] = achievements.NewAchievementSet(620, "", []achievements.Achievement{{APIName: "A"}})

	set, err := f.backend.Achievements(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 620, set.AppID)
	assert.Equal(t, "Portal 2", set.GameName)
	assert.Equal(t, []string{"76561197960287930"}, f.steam.steamIDs)
}

func TestAchievements_NoGameIsNil(t *testing.T) {
	f := newFixture(t, settings.Settings{APIKey: "k"})
	set, err := f.backend.Achievements(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestAchievements_MissingKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{})

	_, err := f.backend.Achievements(ctx, 620)
	assert.ErrorIs(t, err, ErrNoAPIKey)

	local := achievements.NewAchievementSet(620, "Portal 2", []achievements.Achievement{{APIName: "A", Unlocked: true}})
	f.local.sets[620] = local
	set, err := f.backend.Achievements(ctx, 620)
	require.NoError(t, err)
	assert.Same(t, local, set)
}

func TestAchievements_MissingSteamID(t *testing.T) {
	f := newFixture(t, settings.Settings{APIKey: "k"})
	f.local.user = nil

	_, err := f.backend.Achievements(context.Background(), 620)
	assert.ErrorIs(t, err, ErrNoSteamID)
}

func TestAchievements_PrivateProfileIsErrorSet(t *testing.T) {
	f := newFixture(t, settings.Settings{APIKey: "k", SteamID: "76561197960287999"})
	f.steam.achieveErr = steam.ErrPrivateProfile

	set, err := f.backend.Achievements(context.Background(), 620)
	require.NoError(t, err)
	assert.False(t, set.OK())
	assert.Contains(t, set.Error, "private")
	assert.Equal(t, []string{"76561197960287999"}, f.steam.steamIDs)
}

func TestAchievements_OtherErrorsPropagate(t *testing.T) {
	f := newFixture(t, settings.Settings{APIKey: "k"})
	f.steam.achieveErr = errors.New("boom")

	_, err := f.backend.Achievements(context.Background(), 620)
	assert.EqualError(t, err, "boom")
}

func TestAchievementProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{APIKey: "k"})

	_, err := f.backend.AchievementProgress(ctx, false)
	assert.ErrorIs(t, err, ErrProgressInProgress)

	f.progress.result = &achievements.OverallProgress{TotalGames: 3}
	p, err := f.backend.AchievementProgress(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TotalGames)

	_, err = f.backend.AchievementProgress(ctx, true)
	assert.ErrorIs(t, err, ErrProgressInProgress)
	assert.Equal(t, []bool{false, false, true}, f.progress.forced)

	f.steam.key = ""
	_, err = f.backend.AchievementProgress(ctx, false)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestGameListings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{APIKey: "k"})
	f.steam.owned = []steam.OwnedGame{
		{AppID: 1, Name: "little", PlaytimeForever: 5},
		{AppID: 2, Name: "lots", PlaytimeForever: 500, HasStats: true},
	}
	f.local.installed = []achievements.GameInfo{{AppID: 3, Name: "installed"}}

	games, err := f.backend.UserGames(ctx)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, 2, games[0].AppID)
	assert.True(t, games[0].HasAchievements)

	recent, err := f.backend.RecentlyPlayedGames(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	installed, err := f.backend.InstalledGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, f.local.installed, installed)

	f.local.available = false
	installed, err = f.backend.InstalledGames(ctx)
	require.NoError(t, err)
	assert.NotNil(t, installed)
	assert.Empty(t, installed)
}

func TestGameArtwork(t *testing.T) {
	f := newFixture(t, settings.Settings{})
	art, err := f.backend.GameArtwork(context.Background(), 620)
	require.NoError(t, err)
	assert.Contains(t, art.Header, "/620/header.jpg")

	_, err = f.backend.GameArtwork(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{})
	f.local.details[620] = &achievements.GameInfo{AppID: 620, Name: "Portal 2"}

	assert.ErrorIs(t, f.backend.SetTrackedGame(ctx, -1, "x"), ErrInvalidArgument)

	require.NoError(t, f.backend.SetTrackedGame(ctx, 620, ""))
	s, err := f.backend.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 620, s.TrackedAppID)
	assert.Equal(t, "Portal 2", s.TrackedName)

	require.NoError(t, f.backend.ClearTrackedGame(ctx))
	s, err = f.backend.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Zero(t, s.TrackedAppID)
}

func TestRefreshCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{APIKey: "k"})

	require.NoError(t, f.backend.RefreshCache(ctx, 620))
	assert.Zero(t, f.progress.invalidated)

	require.NoError(t, f.backend.RefreshCache(ctx, 0))
	assert.Equal(t, []int{620, 0}, f.steam.invalidated)
	assert.Equal(t, 1, f.progress.invalidated)
}

func TestSettingsFunctions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, settings.Settings{AutoRefresh: true, RefreshInterval: time.Minute})
	sched := &fakeScheduler{}
	f.backend.SetScheduler(sched)

	require.NoError(t, f.backend.SetSteamAPIKey(ctx, "  new-key  "))
	assert.Equal(t, "new-key", f.steam.key)

	s, err := f.backend.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, s.APIKeySet)
	assert.Equal(t, 60, s.RefreshIntervalSeconds)

	require.NoError(t, f.backend.SetAutoRefresh(ctx, false))
	require.NotNil(t, sched.enabled)
	assert.False(t, *sched.enabled)

	require.NoError(t, f.backend.SetRefreshInterval(ctx, 120))
	assert.Equal(t, 2*time.Minute, sched.interval)
	assert.ErrorIs(t, f.backend.SetRefreshInterval(ctx, 1), ErrInvalidArgument)

	f.steam.key = ""
	s, err = f.backend.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new-key", f.steam.key)
	assert.False(t, s.AutoRefresh)
	assert.Equal(t, 120, s.RefreshIntervalSeconds)
}
