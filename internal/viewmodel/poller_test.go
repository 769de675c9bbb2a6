package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func busy() progressReply {
	return progressReply{err: &rpc.Error{Method: rpc.MethodGetAchievementProgress, Code: rpc.CodeInProgress, Message: "progress calculation in progress"}}
}

func busyTextOnly() progressReply {
	return progressReply{err: &rpc.Error{Method: rpc.MethodGetAchievementProgress, Message: "Progress calculation In Progress, try later"}}
}

// fakeSleeper records requested sleeps and advances a fake clock.
type fakeSleeper struct {
	now   time.Time
	slept []time.Duration
}

func (s *fakeSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	s.now = s.now.Add(d)
	return ctx.Err()
}

func newTestPoller(remote *fakeRemote, cfg PollerConfig) (*Poller, *fakeSleeper) {
	p := NewPoller(remote, cfg)
	fs := &fakeSleeper{now: time.Unix(1_700_000_000, 0)}
	p.sleep = fs.sleep
	p.now = func() time.Time { return fs.now }
	return p, fs
}

func TestPoller_AlwaysBusyTimesOutAfterMaxAttempts(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{busy()}}
	p, fs := newTestPoller(remote, DefaultPollerConfig())

	var statuses []int
	result := p.Poll(context.Background(), false, func(attempt int, elapsed time.Duration, message string) {
		statuses = append(statuses, attempt)
		assert.Contains(t, message, "elapsed")
	})

	assert.Equal(t, PollTimedOut, result.State)
	assert.Equal(t, DefaultMaxAttempts, result.Attempts)
	assert.Len(t, remote.progressCalls, DefaultMaxAttempts)
	assert.Len(t, statuses, DefaultMaxAttempts)
	require.Error(t, result.Err)
	assert.Equal(t, PollTimedOut, p.State())

	// fixed delay, never exponential
	for _, d := range fs.slept {
		assert.Equal(t, DefaultPollDelay, d)
	}
	assert.Equal(t, p.WorstCaseWait(), result.Elapsed)
	assert.InDelta(t, float64(DefaultMaxAttempts)*DefaultPollDelay.Seconds(), result.Elapsed.Seconds(), DefaultPollDelay.Seconds()+0.01)
}

func TestPoller_RealClockElapsedMatchesBudget(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{busy()}}
	cfg := PollerConfig{MaxAttempts: 4, Delay: 10 * time.Millisecond}
	p := NewPoller(remote, cfg)

	start := time.Now()
	result := p.Poll(context.Background(), false, nil)

	assert.Equal(t, PollTimedOut, result.State)
	assert.Equal(t, 4, result.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 3*cfg.Delay)
}

func TestPoller_SucceedsOnThirdAttempt(t *testing.T) {
	want := &achievements.OverallProgress{TotalGames: 12, PerfectGamesCount: 2}
	remote := &fakeRemote{progress: []progressReply{busy(), busy(), {progress: want}}}
	p, fs := newTestPoller(remote, DefaultPollerConfig())

	result := p.Poll(context.Background(), true, nil)

	assert.Equal(t, PollDone, result.State)
	assert.Equal(t, 3, result.Attempts)
	assert.Same(t, want, result.Progress)
	assert.NoError(t, result.Err)
	assert.Len(t, fs.slept, 2)
	// force_refresh only on the first call
	assert.Equal(t, []bool{true, false, false}, remote.progressCalls)
}

func TestPoller_MarkerTextWithoutCode(t *testing.T) {
	want := &achievements.OverallProgress{TotalGames: 1}
	remote := &fakeRemote{progress: []progressReply{busyTextOnly(), {progress: want}}}
	p, _ := newTestPoller(remote, DefaultPollerConfig())

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollDone, result.State)
	assert.Equal(t, 2, result.Attempts)
}

func TestPoller_CustomMarker(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{
		{err: &rpc.Error{Message: "still crunching"}},
		{progress: &achievements.OverallProgress{}},
	}}
	p, _ := newTestPoller(remote, PollerConfig{MaxAttempts: 5, Delay: time.Second, InProgressMarker: "crunching"})

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollDone, result.State)
	assert.Equal(t, 2, result.Attempts)
}

func TestPoller_TerminalBackendErrorStopsImmediately(t *testing.T) {
	terminal := &rpc.Error{Method: rpc.MethodGetAchievementProgress, Code: rpc.CodeNoAPIKey, Message: "steam api key is not configured"}
	remote := &fakeRemote{progress: []progressReply{{err: terminal}}}
	p, fs := newTestPoller(remote, DefaultPollerConfig())

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollFailed, result.State)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.Err, terminal)
	assert.Empty(t, fs.slept)
}

func TestPoller_TransportErrorsCountAsAttempts(t *testing.T) {
	want := &achievements.OverallProgress{TotalGames: 3}
	remote := &fakeRemote{progress: []progressReply{
		{err: errors.New("connection reset")},
		busy(),
		{err: errors.New("timeout")},
		{progress: want},
	}}
	p, _ := newTestPoller(remote, DefaultPollerConfig())

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollDone, result.State)
	assert.Equal(t, 4, result.Attempts)
}

func TestPoller_TransportErrorsExhaustBudget(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{{err: errors.New("connection refused")}}}
	p, _ := newTestPoller(remote, PollerConfig{MaxAttempts: 3, Delay: time.Second})

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollFailed, result.State)
	assert.Equal(t, 3, result.Attempts)
	assert.EqualError(t, result.Err, "connection refused")
}

func TestPoller_ContextCancelled(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{busy()}}
	p := NewPoller(remote, PollerConfig{MaxAttempts: 10, Delay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := p.Poll(ctx, false, nil)
	assert.Equal(t, PollFailed, result.State)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, 1, result.Attempts)
}

func TestPoller_StartsIdle(t *testing.T) {
	p := NewPoller(&fakeRemote{}, PollerConfig{})
	assert.Equal(t, PollIdle, p.State())
	assert.Equal(t, time.Duration(DefaultMaxAttempts)*DefaultPollDelay, p.WorstCaseWait())
}

func TestPoller_ZeroConfigUsesDefaultDelay(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{busy(), {progress: &achievements.OverallProgress{}}}}
	p, fs := newTestPoller(remote, PollerConfig{})

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollDone, result.State)
	assert.Equal(t, []time.Duration{DefaultPollDelay}, fs.slept)
}

func TestPoller_PlainErrorWithMarkerIsBusy(t *testing.T) {
	remote := &fakeRemote{progress: []progressReply{{err: errors.New("progress calculation in progress")}}}
	p, fs := newTestPoller(remote, DefaultPollerConfig())

	var statuses int
	result := p.Poll(context.Background(), false, func(int, time.Duration, string) { statuses++ })

	assert.Equal(t, PollTimedOut, result.State)
	assert.Equal(t, DefaultMaxAttempts, result.Attempts)
	assert.Equal(t, DefaultMaxAttempts, statuses)
	assert.Len(t, fs.slept, DefaultMaxAttempts)
	assert.Equal(t, 18*time.Second, result.Elapsed)
}

func TestPoller_WrappedMarkerErrorRecovers(t *testing.T) {
	want := &achievements.OverallProgress{TotalGames: 2}
	busyErr := fmt.Errorf("get_achievement_progress: %w", errors.New("Calculation In Progress"))
	remote := &fakeRemote{progress: []progressReply{{err: busyErr}, {progress: want}}}
	p, _ := newTestPoller(remote, DefaultPollerConfig())

	result := p.Poll(context.Background(), false, nil)
	assert.Equal(t, PollDone, result.State)
	assert.Same(t, want, result.Progress)
}
