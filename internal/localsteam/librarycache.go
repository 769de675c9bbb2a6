package localsteam

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
)

const communityImages = "https://cdn.cloudflare.steamstatic.com/steamcommunity/public/images/apps"

// cachedAchievement is one achievement as the Steam client stores it in the
// library cache.
type cachedAchievement struct {
	ID          string   `json:"strID"`
	Name        string   `json:"strName"`
	Description string   `json:"strDescription"`
	Achieved    bool     `json:"bAchieved"`
	Unlocked    int64    `json:"rtUnlocked"`
	Image       string   `json:"strImage"`
	Hidden      bool     `json:"bHidden"`
	Percent     *float64 `json:"flAchieved"`
}

type cachedAchievements struct {
	Highlight      []cachedAchievement `json:"vecHighlight"`
	Unachieved     []cachedAchievement `json:"vecUnachieved"`
	AchievedHidden []cachedAchievement `json:"vecAchievedHidden"`
	Achieved       int                 `json:"nAchieved"`
	Total          int                 `json:"nTotal"`
}

// parseLibraryCache reads <appid>.json. The file is an array of
// [section, {"version": n, "data": ...}] pairs; only "achievements" is used.
// ok is false when the file has no achievements section.
func parseLibraryCache(path string, appID int) (*achievements.AchievementSet, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}

	var sections [][]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, pair := range sections {
		if len(pair) != 2 {
			continue
		}
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil || name != "achievements" {
			continue
		}
		var section struct {
			Data cachedAchievements `json:"data"`
		}
		if err := json.Unmarshal(pair[1], &section); err != nil {
			return nil, false, fmt.Errorf("parsing achievements in %s: %w", path, err)
		}
		return toSet(appID, section.Data), true, nil
	}
	return nil, false, nil
}

func toSet(appID int, data cachedAchievements) *achievements.AchievementSet {
	seen := map[string]bool{}
	items := []achievements.Achievement{}

	add := func(list []cachedAchievement) {
		for _, c := range list {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true

			icon := ""
			if c.Image != "" {
				icon = fmt.Sprintf("%s/%d/%s", communityImages, appID, c.Image)
			}
			a := achievements.Achievement{
				APIName:       c.ID,
				DisplayName:   c.Name,
				Description:   c.Description,
				IconUnlocked:  icon,
				IconLocked:    icon,
				Hidden:        c.Hidden,
				Unlocked:      c.Achieved,
				GlobalPercent: c.Percent,
			}
			if c.Achieved {
				a.UnlockTime = c.Unlocked
			}
			items = append(items, a)
		}
	}
	add(data.Highlight)
	add(data.AchievedHidden)
	add(data.Unachieved)

	return achievements.NewAchievementSet(appID, "", items)
}
