package steam

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	backoffCacheKey   = "steam:rate_limit_state"
	initialBackoff    = 1 * time.Hour
	maxBackoff        = 24 * time.Hour
	backoffMultiplier = 2
)

// backoffState is what gets persisted so a restart does not reset the block.
type backoffState struct {
	BlockedUntil   time.Time `json:"blocked_until"`
	Consecutive403 int       `json:"consecutive_403"`
}

// Backoff blocks Steam API calls after 403 responses, doubling the block on
// every consecutive 403 up to maxBackoff.
type Backoff struct {
	cache *cache.Cache
	now   func() time.Time

	mu    sync.Mutex
	state backoffState
}

// NewBackoff restores any persisted block from the cache. cache may be nil.
func NewBackoff(ctx context.Context, c *cache.Cache) *Backoff {
	b := &Backoff{cache: c, now: time.Now}
	b.load(ctx)
	return b
}

// Blocked reports whether calls are currently blocked and for how long.
func (b *Backoff) Blocked(ctx context.Context) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.BlockedUntil.IsZero() {
		return 0, false
	}
	now := b.now()
	if now.Before(b.state.BlockedUntil) {
		return b.state.BlockedUntil.Sub(now), true
	}

	b.state = backoffState{}
	b.save(ctx)
	logger.Log.Info("Steam API backoff expired, resuming calls")
	return 0, false
}

// RecordForbidden extends the block after a 403.
func (b *Backoff) RecordForbidden(ctx context.Context) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Consecutive403++
	d := backoffFor(b.state.Consecutive403)
	b.state.BlockedUntil = b.now().Add(d)

	logger.Log.WithFields(logrus.Fields{
		"consecutive_403": b.state.Consecutive403,
		"blocked_until":   b.state.BlockedUntil,
		"backoff":         d.String(),
	}).Error("Steam API returned 403, backing off")

	b.save(ctx)
	return d
}

// RecordSuccess clears the 403 streak once any block has passed.
func (b *Backoff) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Consecutive403 == 0 {
		return
	}
	if b.now().Before(b.state.BlockedUntil) {
		return
	}
	b.state = backoffState{}
	b.save(ctx)
}

func backoffFor(consecutive int) time.Duration {
	d := initialBackoff
	for i := 1; i < consecutive; i++ {
		d *= backoffMultiplier
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}

func (b *Backoff) load(ctx context.Context) {
	if b.cache == nil {
		return
	}
	data, ok := b.cache.Get(ctx, backoffCacheKey)
	if !ok {
		return
	}
	var st backoffState
	if err := json.Unmarshal(data, &st); err != nil {
		logger.Log.WithError(err).Warn("Ignoring unreadable Steam backoff state")
		return
	}
	b.state = st
	logger.Log.WithFields(logrus.Fields{
		"blocked_until":   st.BlockedUntil,
		"consecutive_403": st.Consecutive403,
	}).Info("Loaded Steam backoff state from cache")
}

// save must be called with mu held.
func (b *Backoff) save(ctx context.Context) {
	if b.cache == nil {
		return
	}
	data, err := json.Marshal(b.state)
	if err != nil {
		return
	}
	ttl := 24 * time.Hour
	if remaining := b.state.BlockedUntil.Sub(b.now()); remaining > 0 {
		ttl = remaining + time.Hour
	}
	_ = b.cache.Set(ctx, backoffCacheKey, data, ttl)
}
