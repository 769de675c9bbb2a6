package viewmodel

import (
	"context"
	"sync"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
)

type fakeRemote struct {
	mu sync.Mutex

	currentGame    *achievements.GameInfo
	currentGameErr error

	sets        map[int]*achievements.AchievementSet
	achieveErr  error
	achieveCall []int

	recent    []achievements.RecentAchievement
	recentErr error

	progress      []progressReply
	progressCalls []bool

	userGames    []achievements.GameInfo
	userGamesErr error

	recentlyPlayed    []achievements.GameInfo
	recentlyPlayedErr error

	tracked    *achievements.TrackedGame
	trackedErr error
	refreshed  []int
}

type progressReply struct {
	progress *achievements.OverallProgress
	err      error
}

func (f *fakeRemote) CurrentGame(ctx context.Context) (*achievements.GameInfo, error) {
	return f.currentGame, f.currentGameErr
}

func (f *fakeRemote) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.achieveCall = append(f.achieveCall, appID)
	if f.achieveErr != nil {
		return nil, f.achieveErr
	}
	return f.sets[appID], nil
}

func (f *fakeRemote) RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error) {
	return f.recent, f.recentErr
}

func (f *fakeRemote) AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressCalls = append(f.progressCalls, forceRefresh)
	if len(f.progress) == 0 {
		return nil, nil
	}
	reply := f.progress[0]
	if len(f.progress) > 1 {
		f.progress = f.progress[1:]
	}
	return reply.progress, reply.err
}

func (f *fakeRemote) UserGames(ctx context.Context) ([]achievements.GameInfo, error) {
	return f.userGames, f.userGamesErr
}

func (f *fakeRemote) RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error) {
	return f.recentlyPlayed, f.recentlyPlayedErr
}

func (f *fakeRemote) SetTrackedGame(ctx context.Context, appID int, name string) error {
	if f.trackedErr != nil {
		return f.trackedErr
	}
	f.tracked = &achievements.TrackedGame{AppID: appID, Name: name}
	return nil
}

func (f *fakeRemote) ClearTrackedGame(ctx context.Context) error {
	if f.trackedErr != nil {
		return f.trackedErr
	}
	f.tracked = nil
	return nil
}

func (f *fakeRemote) RefreshCache(ctx context.Context, appID int) error {
	f.refreshed = append(f.refreshed, appID)
	return nil
}

type fakeNative struct {
	mu        sync.Mutex
	available bool

	running    *achievements.GameInfo
	sets       map[int]*achievements.AchievementSet
	setErr     error
	details    map[int]*achievements.GameInfo
	playtime   map[int]int
	user       *achievements.User
	installed  []achievements.GameInfo
	subscriber func(appID int)
	subscribed int
	disposed   int
}

func (f *fakeNative) Available() bool { return f.available }

func (f *fakeNative) RunningGame(ctx context.Context) (*achievements.GameInfo, error) {
	return f.running, nil
}

func (f *fakeNative) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	if f.setErr != nil {
		return nil, f.setErr
	}
	return f.sets[appID], nil
}

func (f *fakeNative) AppDetails(ctx context.Context, appID int) (*achievements.GameInfo, error) {
	info, ok := f.details[appID]
	if !ok {
		return nil, nil
	}
	copied := *info
	return &copied, nil
}

func (f *fakeNative) Playtime(ctx context.Context, appID int) (int, error) {
	return f.playtime[appID], nil
}

func (f *fakeNative) CurrentUser(ctx context.Context) (*achievements.User, error) {
	return f.user, nil
}

func (f *fakeNative) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	return f.installed, nil
}

func (f *fakeNative) SubscribeAchievementChanges(fn func(appID int)) (func(), error) {
	f.mu.Lock()
	f.subscriber = fn
	f.subscribed++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.subscriber = nil
		f.disposed++
		f.mu.Unlock()
	}, nil
}

func (f *fakeNative) emit(appID int) {
	f.mu.Lock()
	fn := f.subscriber
	f.mu.Unlock()
	if fn != nil {
		fn(appID)
	}
}

func setOf(appID int, items ...achievements.Achievement) *achievements.AchievementSet {
	return achievements.NewAchievementSet(appID, "Game", items)
}
