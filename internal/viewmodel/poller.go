package viewmodel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 15
	DefaultPollDelay   = 1200 * time.Millisecond
	// DefaultInProgressMarker is matched against backend error text when the
	// backend does not send the structured in_progress code.
	DefaultInProgressMarker = "in progress"
)

type PollState string

const (
	PollIdle     PollState = "idle"
	PollPolling  PollState = "polling"
	PollDone     PollState = "done"
	PollFailed   PollState = "failed"
	PollTimedOut PollState = "timed_out"
)

// PollResult is the terminal outcome of one Poll call.
type PollResult struct {
	State    PollState
	Progress *achievements.OverallProgress
	Err      error
	Attempts int
	Elapsed  time.Duration
}

// StatusFunc receives a human readable status after every in-progress attempt.
type StatusFunc func(attempt int, elapsed time.Duration, message string)

// ProgressSource is the backend call the poller wraps.
type ProgressSource interface {
	AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error)
}

type PollerConfig struct {
	MaxAttempts      int
	Delay            time.Duration
	InProgressMarker string
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		MaxAttempts:      DefaultMaxAttempts,
		Delay:            DefaultPollDelay,
		InProgressMarker: DefaultInProgressMarker,
	}
}

// Poller retries the overall progress call with a fixed delay while the
// backend reports the computation is still running.
type Poller struct {
	source ProgressSource
	config PollerConfig

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu    sync.Mutex
	state PollState
}

func NewPoller(source ProgressSource, cfg PollerConfig) *Poller {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultPollDelay
	}
	if cfg.InProgressMarker == "" {
		cfg.InProgressMarker = DefaultInProgressMarker
	}
	return &Poller{
		source: source,
		config: cfg,
		sleep:  sleepContext,
		now:    time.Now,
		state:  PollIdle,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State reports the state of the most recent Poll call.
func (p *Poller) State() PollState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s PollState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// WorstCaseWait is the longest Poll can spend sleeping. Every busy reply is
// followed by one delay, including the last.
func (p *Poller) WorstCaseWait() time.Duration {
	return time.Duration(p.config.MaxAttempts) * p.config.Delay
}

// inProgress reports whether err means "ask again later": either the
// structured in_progress code or the marker anywhere in the error text.
func (p *Poller) inProgress(err error) bool {
	if rpcErr, ok := rpc.AsError(err); ok && rpcErr.Code == rpc.CodeInProgress {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), strings.ToLower(p.config.InProgressMarker))
}

// Poll calls the backend until it returns a result, a terminal error, or the
// attempt budget runs out. forceRefresh is only sent on the first attempt so
// retries do not restart the computation.
func (p *Poller) Poll(ctx context.Context, forceRefresh bool, status StatusFunc) PollResult {
	p.setState(PollPolling)
	start := p.now()

	var lastErr error
	lastWasBusy := false
	attempts := 0

	finish := func(r PollResult) PollResult {
		r.Attempts = attempts
		r.Elapsed = p.now().Sub(start)
		p.setState(r.State)
		logger.Log.WithFields(logrus.Fields{
			"state":    r.State,
			"attempts": r.Attempts,
			"elapsed":  r.Elapsed,
		}).Debug("Progress poll finished")
		return r
	}

	for attempts < p.config.MaxAttempts {
		attempts++
		progress, err := p.source.AchievementProgress(ctx, forceRefresh && attempts == 1)
		if err == nil {
			return finish(PollResult{State: PollDone, Progress: progress})
		}

		lastErr = err
		switch {
		case p.inProgress(err):
			lastWasBusy = true
			if status != nil {
				elapsed := p.now().Sub(start)
				status(attempts, elapsed, fmt.Sprintf("Calculating overall progress... %ds elapsed (attempt %d/%d)",
					int(elapsed.Seconds()), attempts, p.config.MaxAttempts))
			}
		case isBackendError(err):
			return finish(PollResult{State: PollFailed, Err: err})
		default:
			lastWasBusy = false
			logger.Log.WithFields(logrus.Fields{
				"attempt": attempts,
				"error":   err.Error(),
			}).Warn("Progress request failed, retrying")
		}

		if ctx.Err() != nil {
			return finish(PollResult{State: PollFailed, Err: ctx.Err()})
		}
		if attempts == p.config.MaxAttempts && !lastWasBusy {
			break
		}
		if err := p.sleep(ctx, p.config.Delay); err != nil {
			return finish(PollResult{State: PollFailed, Err: err})
		}
	}

	if lastWasBusy {
		return finish(PollResult{
			State: PollTimedOut,
			Err:   fmt.Errorf("progress calculation did not finish after %d attempts: %w", attempts, lastErr),
		})
	}
	return finish(PollResult{State: PollFailed, Err: lastErr})
}

func isBackendError(err error) bool {
	_, ok := rpc.AsError(err)
	return ok
}
