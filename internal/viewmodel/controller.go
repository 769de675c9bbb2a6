package viewmodel

import (
	"context"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

const DefaultAutoRefreshInterval = 60 * time.Second

// Notification is a one-shot toast for the user.
type Notification struct {
	Title string
	Body  string
}

type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Controller owns the view State. Every change goes through Reduce; when two
// refreshes overlap, whichever completes last wins.
type Controller struct {
	facade   *Facade
	notifier Notifier

	mu       sync.Mutex
	state    State
	onChange func(State)

	autoMu     sync.Mutex
	autoCancel context.CancelFunc
	autoWG     sync.WaitGroup

	// watchMu is held across subscribe so concurrent Watch calls subscribe once.
	watchMu     sync.Mutex
	unsubscribe func()
}

func NewController(facade *Facade, notifier Notifier, opts achievements.Options) *Controller {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	return &Controller{
		facade:   facade,
		notifier: notifier,
		state:    NewState(opts),
	}
}

// OnChange registers a callback invoked with every new state.
func (c *Controller) OnChange(fn func(State)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) dispatch(ev Event) State {
	c.mu.Lock()
	c.state = Reduce(c.state, ev)
	s := c.state
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(s)
	}
	return s
}

// Refresh resolves the current game (falling back to the tracked game) and
// loads its achievements.
func (c *Controller) Refresh(ctx context.Context) State {
	c.dispatch(RefreshStarted{})

	game := c.facade.CurrentGame(ctx)
	if game == nil {
		if tracked := c.State().Tracked; tracked != nil {
			game = &achievements.GameInfo{AppID: tracked.AppID, Name: tracked.Name}
		}
	}
	c.dispatch(GameResolved{Game: game})
	if game == nil {
		return c.State()
	}

	set := c.facade.Achievements(ctx, game.AppID)
	if set != nil && set.Error != "" {
		c.notifier.Notify(Notification{
			Title: "Couldn't load achievements",
			Body:  set.Error,
		})
	}
	return c.dispatch(AchievementsLoaded{Set: set})
}

// SetOptions re-projects the loaded achievements with new options.
func (c *Controller) SetOptions(opts achievements.Options) State {
	return c.dispatch(OptionsChanged{Options: opts})
}

func (c *Controller) SetTracked(ctx context.Context, appID int, name string) bool {
	if !c.facade.SetTrackedGame(ctx, appID, name) {
		c.notifier.Notify(Notification{Title: "Tracking failed", Body: "Could not save the tracked game"})
		return false
	}
	c.dispatch(TrackedChanged{Tracked: &achievements.TrackedGame{AppID: appID, Name: name}})
	return true
}

func (c *Controller) ClearTracked(ctx context.Context) bool {
	if !c.facade.ClearTrackedGame(ctx) {
		c.notifier.Notify(Notification{Title: "Tracking failed", Body: "Could not clear the tracked game"})
		return false
	}
	c.dispatch(TrackedChanged{Tracked: nil})
	return true
}

// LoadProgress fetches the library-wide progress through the poller.
func (c *Controller) LoadProgress(ctx context.Context, forceRefresh bool) PollResult {
	result := c.facade.AchievementProgress(ctx, forceRefresh, func(attempt int, elapsed time.Duration, message string) {
		c.dispatch(ProgressStatusChanged{Message: message})
	})

	switch result.State {
	case PollDone:
		c.dispatch(ProgressLoaded{Progress: result.Progress})
	case PollTimedOut:
		c.dispatch(ProgressStatusChanged{Message: ""})
		c.notifier.Notify(Notification{
			Title: "Progress calculation timed out",
			Body:  "The library is still being processed. Try again in a moment.",
		})
	case PollFailed:
		c.dispatch(ProgressStatusChanged{Message: ""})
		body := "Unknown error"
		if result.Err != nil {
			body = result.Err.Error()
		}
		c.notifier.Notify(Notification{Title: "Couldn't load progress", Body: body})
	}
	return result
}

// StartAutoRefresh refreshes on a fixed interval until StopAutoRefresh or
// Close. Calling it again replaces the running timer.
func (c *Controller) StartAutoRefresh(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutoRefreshInterval
	}
	c.StopAutoRefresh()

	ctx, cancel := context.WithCancel(context.Background())
	c.autoMu.Lock()
	c.autoCancel = cancel
	c.autoWG.Add(1)
	c.autoMu.Unlock()

	logger.Log.WithField("interval", interval).Debug("Auto refresh started")

	go func() {
		defer c.autoWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Refresh(ctx)
			}
		}
	}()
}

// StopAutoRefresh cancels the timer and waits for an in-flight tick to end.
func (c *Controller) StopAutoRefresh() {
	c.autoMu.Lock()
	cancel := c.autoCancel
	c.autoCancel = nil
	c.autoMu.Unlock()

	if cancel != nil {
		cancel()
		c.autoWG.Wait()
		logger.Log.Debug("Auto refresh stopped")
	}
}

// AutoRefreshRunning reports whether the timer is active.
func (c *Controller) AutoRefreshRunning() bool {
	c.autoMu.Lock()
	defer c.autoMu.Unlock()
	return c.autoCancel != nil
}

// Watch refreshes whenever the native integration reports an achievement
// change for the game on screen.
func (c *Controller) Watch(ctx context.Context) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	if c.unsubscribe != nil {
		return
	}

	c.unsubscribe = c.facade.SubscribeAchievementChanges(func(appID int) {
		current := c.State().CurrentGame
		if current != nil && current.AppID != appID {
			return
		}
		logger.Log.WithFields(logrus.Fields{"app_id": appID}).Info("Achievements changed, refreshing")
		c.Refresh(ctx)
	})
}

// Close releases the auto refresh timer and the change subscription.
func (c *Controller) Close() {
	c.StopAutoRefresh()

	c.watchMu.Lock()
	dispose := c.unsubscribe
	c.unsubscribe = nil
	c.watchMu.Unlock()

	if dispose != nil {
		dispose()
	}
}
