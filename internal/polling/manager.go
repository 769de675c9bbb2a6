// Package polling runs the backend auto refresh: it periodically re-reads the
// current game's achievements and pushes events when the game changes or
// something new is unlocked.
package polling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/sirupsen/logrus"
)

// Source is the part of the backend the manager polls.
type Source interface {
	CurrentGame(ctx context.Context) (*achievements.GameInfo, error)
	Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error)
	RefreshCache(ctx context.Context, appID int) error
}

type Broadcaster interface {
	Broadcast(event rpc.Event)
}

type Manager struct {
	source      Source
	broadcaster Broadcaster
	now         func() time.Time

	mu       sync.Mutex
	enabled  bool
	interval time.Duration
	lastGame int
	// seen holds the unlocked achievement names per app from the last poll
	seen map[int]map[string]bool

	intervalCh chan time.Duration
	triggerCh  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(source Source, broadcaster Broadcaster, interval time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		source:      source,
		broadcaster: broadcaster,
		now:         time.Now,
		interval:    interval,
		seen:        make(map[int]map[string]bool),
		intervalCh:  make(chan time.Duration, 1),
		triggerCh:   make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetEnabled turns ticking polls on or off. Explicit triggers still poll.
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	changed := m.enabled != enabled
	m.enabled = enabled
	m.mu.Unlock()
	if changed {
		logger.Log.WithField("enabled", enabled).Info("Auto refresh toggled")
	}
}

func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// SetInterval changes the tick interval, taking effect on the running loop.
func (m *Manager) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	m.interval = d
	m.mu.Unlock()

	select {
	case <-m.intervalCh:
	default:
	}
	m.intervalCh <- d
}

func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Trigger asks for a poll as soon as possible, regardless of the enabled flag.
func (m *Manager) Trigger() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
	}
}

// Start launches the polling loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop stops all polling
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case d := <-m.intervalCh:
			ticker.Reset(d)
		case <-m.triggerCh:
			m.poll()
		case <-ticker.C:
			if m.Enabled() {
				m.poll()
			}
		}
	}
}

func (m *Manager) poll() {
	ctx, cancel := context.WithTimeout(m.ctx, time.Minute)
	defer cancel()
	if err := m.Poll(ctx); err != nil {
		logger.Log.WithError(err).Warn("Auto refresh poll failed")
	}
}

// Poll runs one refresh cycle. The first time an app is seen its unlocks are
// recorded without emitting events.
func (m *Manager) Poll(ctx context.Context) error {
	game, err := m.source.CurrentGame(ctx)
	if err != nil {
		return err
	}

	appID := 0
	if game != nil {
		appID = game.AppID
	}

	m.mu.Lock()
	changed := appID != m.lastGame
	m.lastGame = appID
	m.mu.Unlock()

	if changed {
		logger.Log.WithField("app_id", appID).Info("Current game changed")
		if game != nil {
			m.emit(rpc.EventGameChanged, appID, game)
		} else {
			m.emit(rpc.EventGameChanged, 0, nil)
		}
	}
	if game == nil {
		return nil
	}

	if err := m.source.RefreshCache(ctx, appID); err != nil {
		logger.Log.WithFields(logrus.Fields{"app_id": appID, "error": err.Error()}).Warn("Cache refresh failed")
	}
	set, err := m.source.Achievements(ctx, appID)
	if err != nil {
		return err
	}
	if !set.OK() {
		return nil
	}

	for _, a := range m.newUnlocks(appID, set) {
		logger.Log.WithFields(logrus.Fields{
			"app_id":      appID,
			"achievement": a.APIName,
		}).Info("Achievement unlocked")
		m.emit(rpc.EventAchievementUnlocked, appID, a)
	}
	return nil
}

func (m *Manager) newUnlocks(appID int, set *achievements.AchievementSet) []achievements.Achievement {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]bool, set.UnlockedCount)
	for _, a := range set.Items {
		if a.Unlocked {
			current[a.APIName] = true
		}
	}

	previous, known := m.seen[appID]
	m.seen[appID] = current
	if !known {
		return nil
	}

	var fresh []achievements.Achievement
	for _, a := range set.Items {
		if a.Unlocked && !previous[a.APIName] {
			fresh = append(fresh, a)
		}
	}
	return fresh
}

func (m *Manager) emit(eventType string, appID int, payload any) {
	if m.broadcaster == nil {
		return
	}
	event := rpc.Event{Type: eventType, AppID: appID, Timestamp: m.now().Unix()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Log.WithError(err).Error("Failed to encode event")
			return
		}
		event.Data = data
	}
	m.broadcaster.Broadcast(event)
}
