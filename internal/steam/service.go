package steam

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service answers achievement questions from the Steam Web API, caching every
// response in Redis.
type Service struct {
	client *Client
	cache  *cache.Cache
}

func NewService(client *Client, c *cache.Cache) *Service {
	return &Service{client: client, cache: c}
}

func (s *Service) Client() *Client {
	return s.client
}

func (s *Service) SetAPIKey(key string) {
	s.client.SetAPIKey(key)
}

func (s *Service) HasAPIKey() bool {
	return s.client.HasAPIKey()
}

func schemaKey(appID int) string { return fmt.Sprintf("steam:schema:%d", appID) }
func globalKey(appID int) string { return fmt.Sprintf("steam:global_achievements:%d", appID) }
func ownedKey(steamID string) string {
	return fmt.Sprintf("steam:owned_games:%s", steamID)
}
func usernameKey(steamID string) string {
	return fmt.Sprintf("steam:username:%s", steamID)
}
func recentKey(steamID string, count int) string {
	return fmt.Sprintf("steam:recently_played:%s:%d", steamID, count)
}
func playerPrefix(steamID string) string {
	return fmt.Sprintf("steam:player_achievements:%s:", steamID)
}
func playerKey(steamID string, appID int) string {
	return fmt.Sprintf("%s%d", playerPrefix(steamID), appID)
}

// playerStaleKey keeps a long lived copy served while rate limited.
func playerStaleKey(steamID string, appID int) string {
	return fmt.Sprintf("steam:player_achievements_stale:%s:%d", steamID, appID)
}

func jitter(base time.Duration, spread time.Duration) time.Duration {
	return base + time.Duration(rand.Int63n(int64(spread)))
}

// cached returns the value under key, fetching and storing it on a miss.
func cached[T any](ctx context.Context, c *cache.Cache, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if data, ok := c.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			logger.Log.WithFields(logrus.Fields{"key": key, "cache": "hit"}).Debug("Serving Steam data from cache")
			return v, nil
		}
		logger.Log.WithField("key", key).Warn("Cache hit but failed to unmarshal, fetching fresh")
	}

	v, err := fetch()
	if err != nil {
		return v, err
	}
	if data, err := json.Marshal(v); err == nil {
		_ = c.Set(ctx, key, data, ttl)
	}
	return v, nil
}

func (s *Service) schema(ctx context.Context, appID int) (GameSchema, error) {
	return cached(ctx, s.cache, schemaKey(appID), jitter(7*24*time.Hour, 12*time.Hour), func() (GameSchema, error) {
		schema, err := s.client.GetSchemaForGame(ctx, appID)
		if errors.Is(err, ErrNoStats) {
			return GameSchema{}, nil
		}
		return schema, err
	})
}

func (s *Service) globalPercentages(ctx context.Context, appID int) (map[string]float64, error) {
	return cached(ctx, s.cache, globalKey(appID), jitter(7*24*time.Hour, 12*time.Hour), func() (map[string]float64, error) {
		list, err := s.client.GetGlobalAchievementPercentages(ctx, appID)
		if err != nil {
			return nil, err
		}
		out := make(map[string]float64, len(list))
		for _, g := range list {
			if p, ok := g.PercentValue(); ok {
				out[g.Name] = p
			}
		}
		return out, nil
	})
}

func (s *Service) playerAchievements(ctx context.Context, steamID string, appID int) (PlayerStats, error) {
	stats, err := cached(ctx, s.cache, playerKey(steamID, appID), jitter(2*time.Minute, 3*time.Minute), func() (PlayerStats, error) {
		stats, err := s.client.GetPlayerAchievements(ctx, steamID, appID)
		if err != nil {
			return stats, err
		}
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, playerStaleKey(steamID, appID), data, 24*time.Hour)
		}
		return stats, nil
	})
	if err == nil || !errors.Is(err, ErrRateLimited) {
		return stats, err
	}

	if data, ok := s.cache.Get(ctx, playerStaleKey(steamID, appID)); ok {
		var stale PlayerStats
		if uerr := json.Unmarshal(data, &stale); uerr == nil {
			logger.Log.WithFields(logrus.Fields{
				"steam_id": steamID,
				"app_id":   appID,
			}).Warn("Rate limited: serving stale player achievements")
			return stale, nil
		}
	}
	return PlayerStats{}, err
}

// Achievements merges the game schema, the player's unlock state and the
// global unlock percentages into one set. A game without achievements yields
// an empty set, not an error.
func (s *Service) Achievements(ctx context.Context, steamID string, appID int) (*achievements.AchievementSet, error) {
	schema, err := s.schema(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("loading schema for app %d: %w", appID, err)
	}

	defs := schema.AvailableGameStats.Achievements
	if len(defs) == 0 {
		return achievements.NewAchievementSet(appID, schema.GameName, []achievements.Achievement{}), nil
	}

	player, err := s.playerAchievements(ctx, steamID, appID)
	switch {
	case errors.Is(err, ErrNoStats):
		player = PlayerStats{}
	case err != nil:
		return nil, fmt.Errorf("loading player achievements for app %d: %w", appID, err)
	}

	global, err := s.globalPercentages(ctx, appID)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"app_id": appID,
			"error":  err.Error(),
		}).Warn("Global achievement percentages unavailable")
	}

	unlocked := make(map[string]PlayerAchievement, len(player.Achievements))
	for _, pa := range player.Achievements {
		unlocked[pa.APIName] = pa
	}

	items := make([]achievements.Achievement, 0, len(defs))
	for _, def := range defs {
		a := achievements.Achievement{
			APIName:      def.Name,
			DisplayName:  def.DisplayName,
			Description:  def.Description,
			IconUnlocked: def.Icon,
			IconLocked:   def.IconGray,
			Hidden:       def.Hidden == 1,
		}
		if pa, ok := unlocked[def.Name]; ok {
			a.Unlocked = pa.Achieved == 1
			if a.Unlocked {
				a.UnlockTime = pa.UnlockTime
			}
			if a.Description == "" {
				a.Description = pa.Description
			}
		}
		if p, ok := global[def.Name]; ok {
			a.GlobalPercent = achievements.Percent(p)
		}
		items = append(items, a)
	}

	name := schema.GameName
	if player.GameName != "" {
		name = player.GameName
	}
	set := achievements.NewAchievementSet(appID, name, items)
	ReportAchievements(set)
	return set, nil
}

// OwnedGames retrieves owned games, using cache if available
func (s *Service) OwnedGames(ctx context.Context, steamID string) ([]OwnedGame, error) {
	resp, err := cached(ctx, s.cache, ownedKey(steamID), 30*time.Minute, func() (OwnedGamesResponse, error) {
		return s.client.GetOwnedGames(ctx, steamID)
	})
	return resp.Games, err
}

// RecentlyPlayed returns the games played in the last two weeks, most played first.
func (s *Service) RecentlyPlayed(ctx context.Context, steamID string, count int) ([]OwnedGame, error) {
	return cached(ctx, s.cache, recentKey(steamID, count), 5*time.Minute, func() ([]OwnedGame, error) {
		return s.client.GetRecentlyPlayedGames(ctx, steamID, count)
	})
}

// PlayerSummary retrieves the user's profile, cached for about a day.
func (s *Service) PlayerSummary(ctx context.Context, steamID string) (*PlayerSummary, error) {
	summary, err := cached(ctx, s.cache, usernameKey(steamID), jitter(24*time.Hour, 2*time.Hour), func() (PlayerSummary, error) {
		summaries, err := s.client.GetPlayerSummaries(ctx, []string{steamID})
		if err != nil {
			return PlayerSummary{}, fmt.Errorf("failed to get player summary: %w", err)
		}
		if len(summaries) == 0 {
			return PlayerSummary{}, fmt.Errorf("no player summary found for Steam ID %s", steamID)
		}
		return summaries[0], nil
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// RecentAchievements collects unlocked achievements across recently played
// games, newest first.
func (s *Service) RecentAchievements(ctx context.Context, steamID string, limit, concurrency int) ([]achievements.RecentAchievement, error) {
	games, err := s.RecentlyPlayed(ctx, steamID, 0)
	if err != nil {
		return nil, err
	}

	sets := make([]*achievements.AchievementSet, len(games))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, game := range games {
		i, game := i, game
		g.Go(func() error {
			set, err := s.Achievements(gctx, steamID, game.AppID)
			if err != nil {
				if fatal(err) {
					return err
				}
				logger.Log.WithFields(logrus.Fields{
					"app_id": game.AppID,
					"error":  err.Error(),
				}).Warn("Skipping game for recent achievements")
				return nil
			}
			if set.GameName == "" {
				set.GameName = game.Name
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recent := []achievements.RecentAchievement{}
	for _, set := range sets {
		if set == nil {
			continue
		}
		for _, a := range set.Items {
			if _, ok := a.EffectiveUnlockTime(); ok {
				recent = append(recent, achievements.RecentAchievement{Achievement: a, AppID: set.AppID, GameName: set.GameName})
			}
		}
	}
	slices.SortStableFunc(recent, func(a, b achievements.RecentAchievement) int {
		return cmp.Compare(b.UnlockTime, a.UnlockTime)
	})
	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	return recent, nil
}

// Invalidate drops cached player data. appID 0 drops every game.
func (s *Service) Invalidate(ctx context.Context, steamID string, appID int) error {
	if appID > 0 {
		return s.cache.Delete(ctx, playerKey(steamID, appID))
	}
	if _, err := s.cache.DeleteByPrefix(ctx, playerPrefix(steamID)); err != nil {
		return err
	}
	if _, err := s.cache.DeleteByPrefix(ctx, fmt.Sprintf("steam:recently_played:%s:", steamID)); err != nil {
		return err
	}
	return s.cache.Delete(ctx, ownedKey(steamID))
}

// fatal errors abort a multi-game fan out since every other request would
// fail the same way.
func fatal(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
