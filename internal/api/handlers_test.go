package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/backend"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu          sync.Mutex
	game        *achievements.GameInfo
	sets        map[int]*achievements.AchievementSet
	progressErr error
	apiKey      string
	tracked     *achievements.TrackedGame
	interval    int
}

func (f *fakeBackend) CurrentGame(ctx context.Context) (*achievements.GameInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.game, nil
}

func (f *fakeBackend) setGame(game *achievements.GameInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.game = game
}

func (f *fakeBackend) trackedGame() *achievements.TrackedGame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tracked
}

func (f *fakeBackend) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if appID == 0 {
		if f.game == nil {
			return nil, nil
		}
		appID = f.game.AppID
	}
	if f.apiKey == "" {
		return nil, backend.ErrNoAPIKey
	}
	return f.sets[appID], nil
}

func (f *fakeBackend) RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error) {
	return []achievements.RecentAchievement{}, nil
}

func (f *fakeBackend) AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error) {
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	return &achievements.OverallProgress{TotalGames: 4}, nil
}

func (f *fakeBackend) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	return []achievements.GameInfo{{AppID: 620, Name: "Portal 2"}}, nil
}

func (f *fakeBackend) UserGames(ctx context.Context) ([]achievements.GameInfo, error) {
	return nil, errors.New("steam is down")
}

func (f *fakeBackend) RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error) {
	return []achievements.GameInfo{}, nil
}

func (f *fakeBackend) GameArtwork(ctx context.Context, appID int) (*achievements.Artwork, error) {
	art := achievements.ArtworkFor(appID)
	return &art, nil
}

func (f *fakeBackend) SetSteamAPIKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = key
	return nil
}

func (f *fakeBackend) SetTrackedGame(ctx context.Context, appID int, name string) error {
	if appID <= 0 {
		return fmt.Errorf("%w: app_id must be positive", backend.ErrInvalidArgument)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = &achievements.TrackedGame{AppID: appID, Name: name}
	return nil
}

func (f *fakeBackend) ClearTrackedGame(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = nil
	return nil
}

func (f *fakeBackend) RefreshCache(ctx context.Context, appID int) error { return nil }

func (f *fakeBackend) LoadSettings(ctx context.Context) (*rpc.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.Settings{APIKeySet: f.apiKey != "", RefreshIntervalSeconds: f.interval}, nil
}

func (f *fakeBackend) ReloadSettings(ctx context.Context) (*rpc.Settings, error) {
	return f.LoadSettings(ctx)
}

func (f *fakeBackend) SetAutoRefresh(ctx context.Context, enabled bool) error { return nil }

func (f *fakeBackend) SetRefreshInterval(ctx context.Context, seconds int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interval = seconds
	return nil
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestServer(t *testing.T, b Backend, secret string) (*httptest.Server, *Hub) {
	t.Helper()
	logger.Silence()
	hub := NewHub()
	srv := httptest.NewServer(NewRouter(NewHandlers(b, fakePinger{}, hub), secret))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub
}

func portalSet() *achievements.AchievementSet {
	return achievements.NewAchievementSet(620, "Portal 2", []achievements.Achievement{
		{APIName: "A", DisplayName: "Wake Up", Unlocked: true, UnlockTime: 1000},
		{APIName: "B", Hidden: true},
	})
}

func TestRPC_RoundTrip(t *testing.T) {
	fb := &fakeBackend{apiKey: "k", sets: map[int]*achievements.AchievementSet{620: portalSet()}}
	srv, _ := newTestServer(t, fb, "")
	client := rpc.NewClient(srv.URL, "", 5*time.Second)
	ctx := context.Background()

	game, err := client.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Nil(t, game)

	set, err := client.Achievements(ctx, 620)
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, 2, set.Total)
	assert.Equal(t, "Wake Up", set.Items[0].DisplayName)

	fb.setGame(&achievements.GameInfo{AppID: 620, Name: "Portal 2", IsRunning: true})
	game, err = client.CurrentGame(ctx)
	require.NoError(t, err)
	assert.Equal(t, 620, game.AppID)

	set, err = client.Achievements(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 620, set.AppID)

	installed, err := client.InstalledGames(ctx)
	require.NoError(t, err)
	assert.Len(t, installed, 1)

	art, err := client.GameArtwork(ctx, 620)
	require.NoError(t, err)
	assert.Contains(t, art.Header, "620")

	require.NoError(t, client.SetTrackedGame(ctx, 620, "Portal 2"))
	assert.Equal(t, 620, fb.trackedGame().AppID)
	require.NoError(t, client.ClearTrackedGame(ctx))
	assert.Nil(t, fb.trackedGame())

	require.NoError(t, client.SetRefreshInterval(ctx, 90))
	settings, err := client.LoadSettings(ctx)
	require.NoError(t, err)
	assert.True(t, settings.APIKeySet)
	assert.Equal(t, 90, settings.RefreshIntervalSeconds)
}

func TestRPC_ErrorCodes(t *testing.T) {
	fb := &fakeBackend{progressErr: backend.ErrProgressInProgress}
	srv, _ := newTestServer(t, fb, "")
	client := rpc.NewClient(srv.URL, "", 5*time.Second)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{"in progress", func() error { _, err := client.AchievementProgress(ctx, false); return err }, rpc.CodeInProgress},
		{"no api key", func() error { _, err := client.Achievements(ctx, 620); return err }, rpc.CodeNoAPIKey},
		{"invalid argument", func() error { return client.SetTrackedGame(ctx, 0, "") }, rpc.CodeInvalidArgument},
		{"internal", func() error { _, err := client.UserGames(ctx); return err }, rpc.CodeInternal},
		{"unknown method", func() error { _, err := client.Call(ctx, "launch_missiles", nil, nil); return err }, rpc.CodeUnknownMethod},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpcErr, ok := rpc.AsError(tt.call())
			require.True(t, ok)
			assert.Equal(t, tt.code, rpcErr.Code)
		})
	}
}

func TestRPC_MalformedArguments(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, "")

	resp, err := http.Post(srv.URL+"/rpc/"+rpc.MethodSetTrackedGame, "application/json", strings.NewReader(`{"app_id":"nope"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var env rpc.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, rpc.CodeInvalidArgument, env.Code)
}

func TestRPC_RequiresToken(t *testing.T) {
	fb := &fakeBackend{}
	srv, _ := newTestServer(t, fb, "s3cret")
	ctx := context.Background()

	_, err := rpc.NewClient(srv.URL, "", time.Second).LoadSettings(ctx)
	rpcErr, ok := rpc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)

	_, err = rpc.NewClient(srv.URL, "wrong", time.Second).LoadSettings(ctx)
	rpcErr, ok = rpc.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpc.CodeUnauthorized, rpcErr.Code)

	_, err = rpc.NewClient(srv.URL, "s3cret", time.Second).LoadSettings(ctx)
	assert.NoError(t, err)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEvents_BroadcastReachesSubscriber(t *testing.T) {
	srv, hub := newTestServer(t, &fakeBackend{}, "")
	client := rpc.NewClient(srv.URL, "", time.Second)

	events := make(chan rpc.Event, 4)
	dispose, err := client.Subscribe(context.Background(), func(e rpc.Event) { events <- e })
	require.NoError(t, err)
	defer dispose()

	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(rpc.Event{Type: rpc.EventAchievementUnlocked, AppID: 620, Timestamp: 42})
	hub.Broadcast(rpc.Event{Type: rpc.EventGameChanged, AppID: 70, Timestamp: 43})

	var got []rpc.Event
	for len(got) < 2 {
		select {
		case e := <-events:
			got = append(got, e)
		case <-time.After(2 * time.Second):
			t.Fatal("events not delivered")
		}
	}
	assert.Equal(t, rpc.EventAchievementUnlocked, got[0].Type)
	assert.Equal(t, 70, got[1].AppID)

	dispose()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHealth_ReportsRedisFailure(t *testing.T) {
	logger.Silence()
	hub := NewHub()
	h := NewHandlers(&fakeBackend{}, fakePinger{err: errors.New("connection refused")}, hub)
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

var testSteamGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "steam_test_gauge", Help: "test"})

func init() {
	prometheus.MustRegister(testSteamGauge)
}

func TestMetrics_SplitBySteamPrefix(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, "")
	testSteamGauge.Set(1)
	_, _ = rpc.NewClient(srv.URL, "", time.Second).LoadSettings(context.Background())

	body := func(path string) string {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(data)
	}

	system := body("/metrics")
	assert.Contains(t, system, "go_goroutines")
	assert.Contains(t, system, "deck_rpc_calls_total")
	assert.NotContains(t, system, "steam_test_gauge")

	steamOnly := body("/metrics/steam")
	assert.Contains(t, steamOnly, "steam_test_gauge")
	assert.NotContains(t, steamOnly, "go_goroutines")
}
