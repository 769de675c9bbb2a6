package viewmodel

import (
	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
)

// State is everything the achievement views render. It is only changed by Reduce.
type State struct {
	CurrentGame    *achievements.GameInfo
	Achievements   *achievements.AchievementSet
	Visible        []achievements.Achievement
	Options        achievements.Options
	Tracked        *achievements.TrackedGame
	Progress       *achievements.OverallProgress
	ProgressStatus string
	Loading        bool
	LastError      string
}

func NewState(opts achievements.Options) State {
	return State{Options: opts}
}

// Event is a state transition.
type Event interface {
	isEvent()
}

type RefreshStarted struct{}

type GameResolved struct {
	Game *achievements.GameInfo
}

type AchievementsLoaded struct {
	Set *achievements.AchievementSet
}

type OptionsChanged struct {
	Options achievements.Options
}

type TrackedChanged struct {
	Tracked *achievements.TrackedGame
}

type ProgressStatusChanged struct {
	Message string
}

type ProgressLoaded struct {
	Progress *achievements.OverallProgress
}

// LoadFailed is a terminal error. It drops loaded data so stale data is never
// shown as current.
type LoadFailed struct {
	Err string
}

func (RefreshStarted) isEvent()        {}
func (GameResolved) isEvent()          {}
func (AchievementsLoaded) isEvent()    {}
func (OptionsChanged) isEvent()        {}
func (TrackedChanged) isEvent()        {}
func (ProgressStatusChanged) isEvent() {}
func (ProgressLoaded) isEvent()        {}
func (LoadFailed) isEvent()            {}

// Reduce applies ev to s and returns the new state.
func Reduce(s State, ev Event) State {
	switch e := ev.(type) {
	case RefreshStarted:
		s.Loading = true
		s.LastError = ""

	case GameResolved:
		s.CurrentGame = e.Game
		if e.Game == nil {
			s.Achievements = nil
			s.Visible = nil
			s.Loading = false
		} else if s.Achievements != nil && s.Achievements.AppID != e.Game.AppID {
			s.Achievements = nil
			s.Visible = nil
		}

	case AchievementsLoaded:
		s.Loading = false
		switch {
		case e.Set == nil:
			s.Achievements = nil
			s.Visible = nil
		case e.Set.Error != "":
			return Reduce(s, LoadFailed{Err: e.Set.Error})
		default:
			s.Achievements = e.Set
			s.Visible = achievements.Project(e.Set.Items, s.Options)
		}

	case OptionsChanged:
		s.Options = e.Options
		if s.Achievements != nil {
			s.Visible = achievements.Project(s.Achievements.Items, s.Options)
		}

	case TrackedChanged:
		s.Tracked = e.Tracked

	case ProgressStatusChanged:
		s.ProgressStatus = e.Message

	case ProgressLoaded:
		s.Progress = e.Progress
		s.ProgressStatus = ""

	case LoadFailed:
		s.CurrentGame = nil
		s.Achievements = nil
		s.Visible = nil
		s.Loading = false
		s.LastError = e.Err
	}
	return s
}
