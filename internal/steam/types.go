package steam

import (
	"encoding/json"
	"strconv"
)

// PlayerAchievement is one entry of GetPlayerAchievements.
type PlayerAchievement struct {
	APIName     string `json:"apiname"`
	Achieved    int    `json:"achieved"`
	UnlockTime  int64  `json:"unlocktime"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type PlayerStats struct {
	SteamID      string              `json:"steamID"`
	GameName     string              `json:"gameName"`
	Achievements []PlayerAchievement `json:"achievements"`
	Success      bool                `json:"success"`
	Error        string              `json:"error,omitempty"`
}

type PlayerAchievementsResponse struct {
	PlayerStats PlayerStats `json:"playerstats"`
}

// SchemaAchievement is the static definition of an achievement.
type SchemaAchievement struct {
	Name         string `json:"name"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	Hidden       int    `json:"hidden"`
	Icon         string `json:"icon"`
	IconGray     string `json:"icongray"`
	DefaultValue int    `json:"defaultvalue"`
}

type GameSchema struct {
	GameName           string `json:"gameName"`
	AvailableGameStats struct {
		Achievements []SchemaAchievement `json:"achievements"`
	} `json:"availableGameStats"`
}

type SchemaResponse struct {
	Game GameSchema `json:"game"`
}

// GlobalAchievement carries the percent as a json.Number because the API has
// sent it both as a number and as a quoted string.
type GlobalAchievement struct {
	Name    string      `json:"name"`
	Percent json.Number `json:"percent"`
}

// PercentValue parses Percent, ok is false when it is missing or malformed.
func (g GlobalAchievement) PercentValue() (float64, bool) {
	if g.Percent == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(g.Percent), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type GlobalAchievementResponse struct {
	AchievementPercentages struct {
		Achievements []GlobalAchievement `json:"achievements"`
	} `json:"achievementpercentages"`
}

type OwnedGame struct {
	AppID           int    `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"` // minutes
	Playtime2Weeks  int    `json:"playtime_2weeks,omitempty"`
	ImgIconURL      string `json:"img_icon_url,omitempty"`
	HasStats        bool   `json:"has_community_visible_stats,omitempty"`
	LastPlayed      int64  `json:"rtime_last_played,omitempty"`
}

type OwnedGamesResponse struct {
	GameCount int         `json:"game_count"`
	Games     []OwnedGame `json:"games"`
}

type OwnedGamesHttpResponse struct {
	Response OwnedGamesResponse `json:"response"`
}

type RecentlyPlayedHttpResponse struct {
	Response struct {
		TotalCount int         `json:"total_count"`
		Games      []OwnedGame `json:"games"`
	} `json:"response"`
}

type PlayerSummary struct {
	SteamID      string `json:"steamid"`
	PersonaName  string `json:"personaname"`
	ProfileURL   string `json:"profileurl"`
	Avatar       string `json:"avatar"`
	AvatarMedium string `json:"avatarmedium"`
	AvatarFull   string `json:"avatarfull"`
}

type PlayerSummariesResponse struct {
	Response struct {
		Players []PlayerSummary `json:"players"`
	} `json:"response"`
}
