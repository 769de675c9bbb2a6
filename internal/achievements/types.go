// Package achievements holds the achievement domain model and the projection
// that turns a raw achievement list into display order.
package achievements

import (
	"fmt"
	"math"
	"time"
)

// UnknownRarity is the rarity assumed for achievements without a known global percent.
const UnknownRarity = 100.0

// HiddenPlaceholder replaces the description of a masked achievement.
const HiddenPlaceholder = "Hidden achievement"

type Achievement struct {
	APIName      string `json:"api_name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	IconUnlocked string `json:"icon_unlocked"`
	IconLocked   string `json:"icon_locked"`
	Hidden       bool   `json:"hidden"`
	Unlocked     bool   `json:"unlocked"`
	// UnlockTime is epoch seconds, 0 when absent.
	UnlockTime int64 `json:"unlock_time,omitempty"`
	// GlobalPercent is the share of all players with this achievement. nil means unknown.
	GlobalPercent *float64 `json:"global_percent,omitempty"`
	// Masked is set by Project for hidden achievements the user has not unlocked.
	Masked bool `json:"masked,omitempty"`
}

// EffectiveUnlockTime ignores stale unlock times on locked achievements.
func (a Achievement) EffectiveUnlockTime() (int64, bool) {
	if !a.Unlocked || a.UnlockTime <= 0 {
		return 0, false
	}
	return a.UnlockTime, true
}

// UnlockedAt returns the unlock time as a time.Time, zero when absent.
func (a Achievement) UnlockedAt() time.Time {
	ts, ok := a.EffectiveUnlockTime()
	if !ok {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// KnownPercent returns the global percent and whether it is known.
func (a Achievement) KnownPercent() (float64, bool) {
	if a.GlobalPercent == nil || math.IsNaN(*a.GlobalPercent) {
		return 0, false
	}
	return *a.GlobalPercent, true
}

// Rarity returns the global percent, or UnknownRarity when unknown.
func (a Achievement) Rarity() float64 {
	if p, ok := a.KnownPercent(); ok {
		return p
	}
	return UnknownRarity
}

// VisibleDescription is what a UI should render as the description.
func (a Achievement) VisibleDescription() string {
	if a.Masked || (a.Hidden && !a.Unlocked) {
		return HiddenPlaceholder
	}
	return a.Description
}

// Percent is a helper for building optional global percents.
func Percent(v float64) *float64 {
	return &v
}

// AchievementSet is the per-game aggregate. Items keep source order.
type AchievementSet struct {
	AppID         int           `json:"app_id"`
	GameName      string        `json:"game_name,omitempty"`
	Total         int           `json:"total"`
	UnlockedCount int           `json:"unlocked_count"`
	Items         []Achievement `json:"items"`
	// Error is set when the set could not be loaded.
	Error string `json:"error,omitempty"`
}

// NewAchievementSet derives the counts from items.
func NewAchievementSet(appID int, gameName string, items []Achievement) *AchievementSet {
	set := &AchievementSet{
		AppID:    appID,
		GameName: gameName,
		Total:    len(items),
		Items:    items,
	}
	for _, a := range items {
		if a.Unlocked {
			set.UnlockedCount++
		}
	}
	return set
}

// ErrorSet returns a set that carries only an error message.
func ErrorSet(appID int, format string, args ...any) *AchievementSet {
	return &AchievementSet{AppID: appID, Error: fmt.Sprintf(format, args...)}
}

// Percentage is unlocked/total*100, 0 when there are no achievements.
func (s *AchievementSet) Percentage() float64 {
	if s == nil || s.Total == 0 {
		return 0
	}
	return float64(s.UnlockedCount) / float64(s.Total) * 100
}

// OK reports whether the set loaded without error.
func (s *AchievementSet) OK() bool {
	return s != nil && s.Error == ""
}

type GameInfo struct {
	AppID             int    `json:"app_id"`
	Name              string `json:"name"`
	IsRunning         bool   `json:"is_running"`
	HasAchievements   bool   `json:"has_achievements"`
	TotalAchievements int    `json:"total_achievements"`
	HeaderImageURL    string `json:"header_image_url,omitempty"`
	PlaytimeMinutes   int    `json:"playtime_minutes"`
}

// TrackedGame is a game pinned by the user so it shows even when not running.
type TrackedGame struct {
	AppID int    `json:"app_id"`
	Name  string `json:"name"`
}

type OverallProgress struct {
	TotalGames            int        `json:"total_games"`
	GamesWithAchievements int        `json:"games_with_achievements"`
	TotalAchievements     int        `json:"total_achievements"`
	UnlockedAchievements  int        `json:"unlocked_achievements"`
	AverageCompletion     float64    `json:"average_completion"`
	PerfectGames          []GameInfo `json:"perfect_games"`
	PerfectGamesCount     int        `json:"perfect_games_count"`
	CalculatedAt          time.Time  `json:"calculated_at"`
}

// RecentAchievement is an unlocked achievement together with the game it belongs to.
type RecentAchievement struct {
	Achievement
	AppID    int    `json:"app_id"`
	GameName string `json:"game_name"`
}

type User struct {
	SteamID     string `json:"steam_id"`
	AccountID   uint32 `json:"account_id"`
	PersonaName string `json:"persona_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Artwork holds the CDN image URLs for an app.
type Artwork struct {
	AppID   int    `json:"app_id"`
	Header  string `json:"header"`
	Capsule string `json:"capsule"`
	Hero    string `json:"hero"`
	Logo    string `json:"logo"`
}

const steamCDN = "https://cdn.cloudflare.steamstatic.com/steam/apps"

// HeaderImageURL is the store header image for an app.
func HeaderImageURL(appID int) string {
	return fmt.Sprintf("%s/%d/header.jpg", steamCDN, appID)
}

// ArtworkFor builds the well-known CDN artwork URLs for an app.
func ArtworkFor(appID int) Artwork {
	return Artwork{
		AppID:   appID,
		Header:  HeaderImageURL(appID),
		Capsule: fmt.Sprintf("%s/%d/library_600x900.jpg", steamCDN, appID),
		Hero:    fmt.Sprintf("%s/%d/library_hero.jpg", steamCDN, appID),
		Logo:    fmt.Sprintf("%s/%d/logo.png", steamCDN, appID),
	}
}
