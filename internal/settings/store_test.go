package settings

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, defaults Settings) (*Store, *cache.Cache) {
	t.Helper()
	logger.Silence()
	mr := miniredis.RunT(t)
	c := cache.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return NewStore(c, defaults), c
}

func TestStore_LoadUsesDefaults(t *testing.T) {
	defaults := Settings{APIKey: "env-key", AutoRefresh: true, RefreshInterval: time.Minute}
	store, _ := newTestStore(t, defaults)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t, Settings{AutoRefresh: true, RefreshInterval: time.Minute})

	require.NoError(t, store.SetAPIKey(ctx, "abc"))
	require.NoError(t, store.SetSteamID(ctx, "76561197960287930"))
	require.NoError(t, store.SetTracked(ctx, achievements.TrackedGame{AppID: 620, Name: "Portal 2"}))
	require.NoError(t, store.SetAutoRefresh(ctx, false))
	require.NoError(t, store.SetRefreshInterval(ctx, 90*time.Second))
	require.NoError(t, store.SetTestAppID(ctx, 440))

	reopened := NewStore(c, Settings{AutoRefresh: true, RefreshInterval: time.Minute})
	got, err := reopened.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, "abc", got.APIKey)
	assert.Equal(t, "76561197960287930", got.SteamID)
	assert.Equal(t, &achievements.TrackedGame{AppID: 620, Name: "Portal 2"}, got.Tracked)
	assert.False(t, got.AutoRefresh)
	assert.Equal(t, 90*time.Second, got.RefreshInterval)
	assert.Equal(t, 440, got.TestAppID)
}

func TestStore_ClearTracked(t *testing.T) {
	ctx := context.Background()
	store, c := newTestStore(t, Settings{})

	require.NoError(t, store.SetTracked(ctx, achievements.TrackedGame{AppID: 1, Name: "x"}))
	require.NoError(t, store.ClearTracked(ctx))
	assert.Nil(t, store.Get().Tracked)

	got, err := NewStore(c, Settings{}).Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got.Tracked)
}

func TestStore_RefreshIntervalBounds(t *testing.T) {
	store, _ := newTestStore(t, Settings{RefreshInterval: time.Minute})

	err := store.SetRefreshInterval(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	err = store.SetRefreshInterval(context.Background(), 2*time.Hour)
	assert.ErrorIs(t, err, ErrInvalidInterval)
	assert.Equal(t, time.Minute, store.Get().RefreshInterval)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t, Settings{})
	require.NoError(t, store.SetTracked(context.Background(), achievements.TrackedGame{AppID: 1, Name: "x"}))

	snap := store.Get()
	snap.Tracked.Name = "changed"
	assert.Equal(t, "x", store.Get().Tracked.Name)
}
