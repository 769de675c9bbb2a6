// Package settings persists user settings (API key, tracked game, refresh
// preferences) in a Redis hash.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	hashKey = "settings"

	fieldAPIKey          = "api_key"
	fieldSteamID         = "steam_id"
	fieldTrackedAppID    = "tracked_app_id"
	fieldTrackedName     = "tracked_name"
	fieldAutoRefresh     = "auto_refresh"
	fieldRefreshInterval = "refresh_interval_seconds"
	fieldTestAppID       = "test_app_id"

	MinRefreshInterval = 10 * time.Second
	MaxRefreshInterval = time.Hour
)

var ErrInvalidInterval = errors.New("refresh interval out of range")

type Settings struct {
	APIKey          string
	SteamID         string
	Tracked         *achievements.TrackedGame
	AutoRefresh     bool
	RefreshInterval time.Duration
	TestAppID       int
}

// Store keeps an in-memory copy of the settings and writes every change
// through to Redis. Values never written fall back to the defaults.
type Store struct {
	cache    *cache.Cache
	defaults Settings

	mu      sync.RWMutex
	current Settings
}

func NewStore(c *cache.Cache, defaults Settings) *Store {
	return &Store{
		cache:    c,
		defaults: defaults,
		current:  defaults,
	}
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.current
	if s.current.Tracked != nil {
		t := *s.current.Tracked
		out.Tracked = &t
	}
	return out
}

// Load reads the persisted settings over the defaults.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	fields, err := s.cache.HGetAll(ctx, hashKey)
	if err != nil {
		return s.Get(), fmt.Errorf("loading settings: %w", err)
	}

	loaded := s.defaults
	if v, ok := fields[fieldAPIKey]; ok {
		loaded.APIKey = v
	}
	if v, ok := fields[fieldSteamID]; ok {
		loaded.SteamID = v
	}
	if v, ok := fields[fieldTrackedAppID]; ok {
		if id, err := strconv.Atoi(v); err == nil && id > 0 {
			loaded.Tracked = &achievements.TrackedGame{AppID: id, Name: fields[fieldTrackedName]}
		}
	}
	if v, ok := fields[fieldAutoRefresh]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			loaded.AutoRefresh = b
		}
	}
	if v, ok := fields[fieldRefreshInterval]; ok {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			loaded.RefreshInterval = time.Duration(secs) * time.Second
		}
	}
	if v, ok := fields[fieldTestAppID]; ok {
		if id, err := strconv.Atoi(v); err == nil {
			loaded.TestAppID = id
		}
	}

	s.mu.Lock()
	s.current = loaded
	s.mu.Unlock()

	logger.Log.WithFields(logrus.Fields{
		"api_key_set":      loaded.APIKey != "",
		"tracked":          loaded.Tracked != nil,
		"auto_refresh":     loaded.AutoRefresh,
		"refresh_interval": loaded.RefreshInterval,
	}).Debug("Settings loaded")

	return s.Get(), nil
}

func (s *Store) write(ctx context.Context, values map[string]string, apply func(*Settings)) error {
	if err := s.cache.HSet(ctx, hashKey, values); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	s.mu.Lock()
	apply(&s.current)
	s.mu.Unlock()
	return nil
}

func (s *Store) SetAPIKey(ctx context.Context, key string) error {
	return s.write(ctx, map[string]string{fieldAPIKey: key}, func(c *Settings) {
		c.APIKey = key
	})
}

func (s *Store) SetSteamID(ctx context.Context, steamID string) error {
	return s.write(ctx, map[string]string{fieldSteamID: steamID}, func(c *Settings) {
		c.SteamID = steamID
	})
}

func (s *Store) SetTracked(ctx context.Context, game achievements.TrackedGame) error {
	values := map[string]string{
		fieldTrackedAppID: strconv.Itoa(game.AppID),
		fieldTrackedName:  game.Name,
	}
	return s.write(ctx, values, func(c *Settings) {
		c.Tracked = &game
	})
}

func (s *Store) ClearTracked(ctx context.Context) error {
	if err := s.cache.HDel(ctx, hashKey, fieldTrackedAppID, fieldTrackedName); err != nil {
		return fmt.Errorf("clearing tracked game: %w", err)
	}
	s.mu.Lock()
	s.current.Tracked = nil
	s.mu.Unlock()
	return nil
}

func (s *Store) SetAutoRefresh(ctx context.Context, enabled bool) error {
	return s.write(ctx, map[string]string{fieldAutoRefresh: strconv.FormatBool(enabled)}, func(c *Settings) {
		c.AutoRefresh = enabled
	})
}

// SetRefreshInterval accepts intervals between MinRefreshInterval and
// MaxRefreshInterval.
func (s *Store) SetRefreshInterval(ctx context.Context, d time.Duration) error {
	if d < MinRefreshInterval || d > MaxRefreshInterval {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidInterval, d, MinRefreshInterval, MaxRefreshInterval)
	}
	secs := int(d / time.Second)
	return s.write(ctx, map[string]string{fieldRefreshInterval: strconv.Itoa(secs)}, func(c *Settings) {
		c.RefreshInterval = time.Duration(secs) * time.Second
	})
}

func (s *Store) SetTestAppID(ctx context.Context, appID int) error {
	return s.write(ctx, map[string]string{fieldTestAppID: strconv.Itoa(appID)}, func(c *Settings) {
		c.TestAppID = appID
	})
}
