// Package localsteam reads state straight from the local Steam client's
// files: the running game, the logged in user, installed games, playtime and
// the achievement data the client caches for its library view.
package localsteam

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

// steamID64Base converts between 64-bit Steam ids and 32-bit account ids.
const steamID64Base = 76561197960265728

const DefaultWatchInterval = 5 * time.Second

// tool apps that show up as installed but are not games
var toolPrefixes = []string{"Proton", "Steam Linux Runtime", "Steamworks Common Redistributables"}

type Client struct {
	root          string
	watchInterval time.Duration
}

// New returns a client for the Steam install at root (usually ~/.steam/steam).
func New(root string) *Client {
	return &Client{root: root, watchInterval: DefaultWatchInterval}
}

// WithWatchInterval sets how often SubscribeAchievementChanges polls.
func (c *Client) WithWatchInterval(d time.Duration) *Client {
	if d > 0 {
		c.watchInterval = d
	}
	return c
}

func (c *Client) Root() string {
	return c.root
}

// Available reports whether a Steam install exists at root.
func (c *Client) Available() bool {
	if c.root == "" {
		return false
	}
	info, err := os.Stat(c.root)
	return err == nil && info.IsDir()
}

func (c *Client) registryPath() string {
	// registry.vdf lives next to the steam symlink, ~/.steam/registry.vdf
	parent := filepath.Join(filepath.Dir(c.root), "registry.vdf")
	if _, err := os.Stat(parent); err == nil {
		return parent
	}
	return filepath.Join(c.root, "registry.vdf")
}

// RunningAppID returns the app id Steam reports as running, 0 when none.
func (c *Client) RunningAppID() (int, error) {
	reg, err := readVDF(c.registryPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return reg.path("Registry", "HKCU", "Software", "Valve", "Steam").number("RunningAppID"), nil
}

func (c *Client) RunningGame(ctx context.Context) (*achievements.GameInfo, error) {
	appID, err := c.RunningAppID()
	if err != nil || appID == 0 {
		return nil, err
	}

	game, err := c.AppDetails(ctx, appID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		game = &achievements.GameInfo{AppID: appID, Name: fmt.Sprintf("App %d", appID), HeaderImageURL: achievements.HeaderImageURL(appID)}
	}
	game.IsRunning = true
	return game, nil
}

// CurrentUser returns the most recently logged in account.
func (c *Client) CurrentUser(ctx context.Context) (*achievements.User, error) {
	users, err := readVDF(filepath.Join(c.root, "config", "loginusers.vdf"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var (
		best      *achievements.User
		bestStamp int
	)
	for steamID, v := range users.child("users") {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		n := node(entry)
		id, err := strconv.ParseUint(steamID, 10, 64)
		if err != nil || id < steamID64Base {
			continue
		}
		user := &achievements.User{
			SteamID:     steamID,
			AccountID:   uint32(id - steamID64Base),
			PersonaName: n.str("PersonaName"),
		}
		if n.str("MostRecent") == "1" {
			return user, nil
		}
		if stamp := n.number("Timestamp"); best == nil || stamp > bestStamp {
			best, bestStamp = user, stamp
		}
	}
	return best, nil
}

func (c *Client) userConfigDir(ctx context.Context) (string, error) {
	user, err := c.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", nil
	}
	return filepath.Join(c.root, "userdata", strconv.FormatUint(uint64(user.AccountID), 10), "config"), nil
}

// libraryDirs lists every steamapps directory, the default one first.
func (c *Client) libraryDirs() []string {
	dirs := []string{filepath.Join(c.root, "steamapps")}
	folders, err := readVDF(filepath.Join(c.root, "steamapps", "libraryfolders.vdf"))
	if err != nil {
		return dirs
	}
	for _, v := range folders.child("libraryfolders") {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		p := node(entry).str("path")
		if p == "" {
			continue
		}
		dir := filepath.Join(p, "steamapps")
		if !slices.Contains(dirs, dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

func (c *Client) manifest(appID int) (node, error) {
	name := fmt.Sprintf("appmanifest_%d.acf", appID)
	for _, dir := range c.libraryDirs() {
		m, err := readVDF(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return m.child("AppState"), nil
	}
	return nil, nil
}

// AppDetails describes an installed app, nil when it is not installed.
func (c *Client) AppDetails(ctx context.Context, appID int) (*achievements.GameInfo, error) {
	m, err := c.manifest(appID)
	if err != nil || m == nil {
		return nil, err
	}

	game := &achievements.GameInfo{
		AppID:          appID,
		Name:           m.str("name"),
		HeaderImageURL: achievements.HeaderImageURL(appID),
	}
	if set, err := c.Achievements(ctx, appID); err == nil && set != nil {
		game.HasAchievements = set.Total > 0
		game.TotalAchievements = set.Total
	}
	if minutes, err := c.Playtime(ctx, appID); err == nil {
		game.PlaytimeMinutes = minutes
	}
	return game, nil
}

// InstalledGames lists installed apps sorted by name, skipping Steam tools.
func (c *Client) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	games := []achievements.GameInfo{}
	seen := map[int]bool{}

	for _, dir := range c.libraryDirs() {
		manifests, err := filepath.Glob(filepath.Join(dir, "appmanifest_*.acf"))
		if err != nil {
			return nil, err
		}
		for _, path := range manifests {
			m, err := readVDF(path)
			if err != nil {
				logger.Log.WithFields(logrus.Fields{"path": path, "error": err.Error()}).Warn("Skipping unreadable app manifest")
				continue
			}
			state := m.child("AppState")
			appID := state.number("appid")
			name := state.str("name")
			if appID == 0 || seen[appID] || isTool(name) {
				continue
			}
			seen[appID] = true
			games = append(games, achievements.GameInfo{
				AppID:          appID,
				Name:           name,
				HeaderImageURL: achievements.HeaderImageURL(appID),
			})
		}
	}

	slices.SortFunc(games, func(a, b achievements.GameInfo) int {
		return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return games, nil
}

func isTool(name string) bool {
	for _, prefix := range toolPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Playtime returns total minutes played from the user's localconfig.vdf.
func (c *Client) Playtime(ctx context.Context, appID int) (int, error) {
	dir, err := c.userConfigDir(ctx)
	if err != nil || dir == "" {
		return 0, err
	}
	cfg, err := readVDF(filepath.Join(dir, "localconfig.vdf"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	apps := cfg.path("UserLocalConfigStore", "Software", "Valve", "Steam", "apps")
	return apps.child(strconv.Itoa(appID)).number("Playtime"), nil
}

func (c *Client) libraryCacheDir(ctx context.Context) (string, error) {
	dir, err := c.userConfigDir(ctx)
	if err != nil || dir == "" {
		return "", err
	}
	return filepath.Join(dir, "librarycache"), nil
}

// Achievements reads the achievement data Steam cached for appID. nil means
// the client has nothing cached for it.
func (c *Client) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	dir, err := c.libraryCacheDir(ctx)
	if err != nil || dir == "" {
		return nil, err
	}
	set, ok, err := parseLibraryCache(filepath.Join(dir, fmt.Sprintf("%d.json", appID)), appID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if m, err := c.manifest(appID); err == nil && m != nil {
		set.GameName = m.str("name")
	}
	return set, nil
}
