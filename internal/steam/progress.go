package steam

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrProgressInProgress means a background calculation is running; ask again later.
var ErrProgressInProgress = errors.New("progress calculation in progress")

const (
	progressTTL     = time.Hour
	progressTimeout = 15 * time.Minute
)

func progressKey(steamID string) string {
	return fmt.Sprintf("steam:progress:%s", steamID)
}

// ProgressCalculator computes library-wide progress in the background. Get
// never blocks on the Steam API: it returns a cached result or
// ErrProgressInProgress.
type ProgressCalculator struct {
	service     *Service
	cache       *cache.Cache
	concurrency int
	now         func() time.Time

	mu      sync.Mutex
	running map[string]bool
	failed  map[string]error
	wg      sync.WaitGroup
}

func NewProgressCalculator(service *Service, c *cache.Cache, concurrency int) *ProgressCalculator {
	return &ProgressCalculator{
		service:     service,
		cache:       c,
		concurrency: max(concurrency, 1),
		now:         time.Now,
		running:     map[string]bool{},
		failed:      map[string]error{},
	}
}

// Get returns the cached progress for steamID. On a miss, or when force is
// set, it starts a calculation and returns ErrProgressInProgress. The error
// of a failed calculation is returned once, to the next caller.
func (p *ProgressCalculator) Get(ctx context.Context, steamID string, force bool) (*achievements.OverallProgress, error) {
	if !force {
		if data, ok := p.cache.Get(ctx, progressKey(steamID)); ok {
			var progress achievements.OverallProgress
			if err := json.Unmarshal(data, &progress); err == nil {
				return &progress, nil
			}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running[steamID] {
		return nil, ErrProgressInProgress
	}
	if err, ok := p.failed[steamID]; ok {
		delete(p.failed, steamID)
		if !force {
			return nil, err
		}
	}

	p.running[steamID] = true
	p.wg.Add(1)
	go p.run(steamID)

	return nil, ErrProgressInProgress
}

// Running reports whether a calculation for steamID is in flight.
func (p *ProgressCalculator) Running(steamID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running[steamID]
}

// Wait blocks until every background calculation has finished.
func (p *ProgressCalculator) Wait() {
	p.wg.Wait()
}

// Invalidate drops the cached result.
func (p *ProgressCalculator) Invalidate(ctx context.Context, steamID string) error {
	return p.cache.Delete(ctx, progressKey(steamID))
}

func (p *ProgressCalculator) run(steamID string) {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), progressTimeout)
	defer cancel()

	start := p.now()
	progress, err := p.Calculate(ctx, steamID)
	if err == nil {
		// store before clearing running so no caller sees neither
		if data, merr := json.Marshal(progress); merr == nil {
			_ = p.cache.Set(ctx, progressKey(steamID), data, progressTTL)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, steamID)

	if err != nil {
		logger.Log.WithFields(logrus.Fields{
			"steam_id": steamID,
			"error":    err.Error(),
		}).Error("Progress calculation failed")
		p.failed[steamID] = err
		return
	}

	logger.Log.WithFields(logrus.Fields{
		"steam_id":    steamID,
		"total_games": progress.TotalGames,
		"duration":    p.now().Sub(start).String(),
	}).Info("Progress calculation finished")
}

// Calculate walks every played game in the library. Games never played are
// counted in TotalGames but not fetched since they cannot have unlocks.
func (p *ProgressCalculator) Calculate(ctx context.Context, steamID string) (*achievements.OverallProgress, error) {
	owned, err := p.service.OwnedGames(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("loading owned games: %w", err)
	}

	played := make([]OwnedGame, 0, len(owned))
	for _, game := range owned {
		if game.PlaytimeForever > 0 {
			played = append(played, game)
		}
	}

	sets := make([]*achievements.AchievementSet, len(played))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, game := range played {
		i, game := i, game
		g.Go(func() error {
			set, err := p.service.Achievements(gctx, steamID, game.AppID)
			if err != nil {
				if fatal(err) {
					return err
				}
				logger.Log.WithFields(logrus.Fields{
					"app_id": game.AppID,
					"game":   game.Name,
					"error":  err.Error(),
				}).Debug("Skipping game in progress calculation")
				return nil
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	progress := &achievements.OverallProgress{
		TotalGames:   len(owned),
		PerfectGames: []achievements.GameInfo{},
		CalculatedAt: p.now(),
	}
	var completionSum float64
	for i, set := range sets {
		if set == nil || set.Total == 0 {
			continue
		}
		game := played[i]
		progress.GamesWithAchievements++
		progress.TotalAchievements += set.Total
		progress.UnlockedAchievements += set.UnlockedCount
		completionSum += set.Percentage()

		if set.UnlockedCount == set.Total {
			name := set.GameName
			if name == "" {
				name = game.Name
			}
			progress.PerfectGames = append(progress.PerfectGames, achievements.GameInfo{
				AppID:             game.AppID,
				Name:              name,
				HasAchievements:   true,
				TotalAchievements: set.Total,
				HeaderImageURL:    achievements.HeaderImageURL(game.AppID),
				PlaytimeMinutes:   game.PlaytimeForever,
			})
		}
	}

	if progress.GamesWithAchievements > 0 {
		avg := completionSum / float64(progress.GamesWithAchievements)
		progress.AverageCompletion = math.Round(avg*100) / 100
	}
	slices.SortFunc(progress.PerfectGames, func(a, b achievements.GameInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})
	progress.PerfectGamesCount = len(progress.PerfectGames)

	ReportProgress(progress)
	return progress, nil
}
