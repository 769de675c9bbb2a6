package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

const (
	APIOrigin                  = "https://api.steampowered.com"
	OwnedGamesEndpoint         = "/IPlayerService/GetOwnedGames/v0001/"
	RecentlyPlayedEndpoint     = "/IPlayerService/GetRecentlyPlayedGames/v0001/"
	PlayerAchievementsEndpoint = "/ISteamUserStats/GetPlayerAchievements/v0001/"
	SchemaEndpoint             = "/ISteamUserStats/GetSchemaForGame/v0002/"
	GlobalAchievementsEndpoint = "/ISteamUserStats/GetGlobalAchievementPercentagesForApp/v0002/"
	PlayerSummariesEndpoint    = "/ISteamUser/GetPlayerSummaries/v0002/"
)

var (
	ErrMissingAPIKey = errors.New("steam api key is not configured")
	ErrRateLimited   = errors.New("steam api rate limited")
	ErrUnauthorized  = errors.New("steam api key rejected")
	// ErrNoStats is returned for apps without achievements or stats.
	ErrNoStats = errors.New("app has no stats")
	// ErrPrivateProfile is returned when the profile's game details are private.
	ErrPrivateProfile = errors.New("profile is not public")
)

type Client struct {
	// BaseURL defaults to APIOrigin.
	BaseURL string

	httpClient *http.Client
	backoff    *Backoff

	mu     sync.RWMutex
	apiKey string
}

// NewClient builds a Steam Web API client. backoff may be nil.
func NewClient(apiKey string, backoff *Backoff) *Client {
	return &Client{
		BaseURL: APIOrigin,
		apiKey:  apiKey,
		backoff: backoff,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()
}

func (c *Client) HasAPIKey() bool {
	return c.key() != ""
}

func (c *Client) key() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, target any) error {
	key := c.key()
	if key == "" {
		return ErrMissingAPIKey
	}
	if c.backoff != nil {
		if remaining, blocked := c.backoff.Blocked(ctx); blocked {
			return fmt.Errorf("%w: blocked for %s", ErrRateLimited, remaining.Round(time.Second))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"params":   params.Encode(),
	}).Debug("Making Steam API request")

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", key)
	q.Set("format", "json")
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	apiRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	logger.Log.WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"status_code": resp.StatusCode,
		"body_length": len(body),
	}).Debug("Steam API response received")

	switch resp.StatusCode {
	case http.StatusOK:
		if c.backoff != nil {
			c.backoff.RecordSuccess(ctx)
		}
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w (429)", ErrRateLimited)
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		if c.backoff != nil {
			c.backoff.RecordForbidden(ctx)
		}
		return fmt.Errorf("%w (403)", ErrRateLimited)
	case http.StatusBadRequest:
		return classifyBadRequest(body)
	default:
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, preview(body))
	}

	// Steam sometimes answers 200 with an HTML error page
	if len(body) > 0 && body[0] == '<' {
		return fmt.Errorf("received HTML instead of JSON: %s", preview(body))
	}

	if err := json.NewDecoder(bytes.NewReader(body)).Decode(target); err != nil {
		logger.Log.WithError(err).WithField("body_preview", preview(body)).Error("Failed to decode Steam API JSON response")
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}

// classifyBadRequest maps the playerstats error text Steam sends with a 400.
func classifyBadRequest(body []byte) error {
	var pa PlayerAchievementsResponse
	if err := json.Unmarshal(body, &pa); err == nil && pa.PlayerStats.Error != "" {
		msg := strings.ToLower(pa.PlayerStats.Error)
		switch {
		case strings.Contains(msg, "no stats"):
			return ErrNoStats
		case strings.Contains(msg, "not public"), strings.Contains(msg, "private"):
			return ErrPrivateProfile
		}
		return fmt.Errorf("bad request (400): %s", pa.PlayerStats.Error)
	}
	return fmt.Errorf("bad request (400): %s", preview(body))
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

func validSteamID(steamID string) error {
	if steamID == "" {
		return fmt.Errorf("steam ID cannot be empty")
	}
	if _, err := strconv.ParseUint(steamID, 10, 64); err != nil {
		return fmt.Errorf("invalid Steam ID format: %q - Steam IDs must be numeric (e.g., 76561197987123908)", steamID)
	}
	return nil
}

// GetOwnedGames retrieves the list of games owned by a Steam user
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) (OwnedGamesResponse, error) {
	if err := validSteamID(steamID); err != nil {
		return OwnedGamesResponse{}, err
	}

	params := url.Values{
		"steamid":                   {steamID},
		"include_appinfo":           {"true"},
		"include_played_free_games": {"true"},
	}

	var httpResp OwnedGamesHttpResponse
	if err := c.getJSON(ctx, OwnedGamesEndpoint, params, &httpResp); err != nil {
		return OwnedGamesResponse{}, fmt.Errorf("GetOwnedGames failed for steamid=%s: %w", steamID, err)
	}

	logger.Log.WithFields(logrus.Fields{
		"steam_id":   steamID,
		"game_count": httpResp.Response.GameCount,
	}).Info("Fetched owned games from Steam API")

	return httpResp.Response, nil
}

// GetRecentlyPlayedGames returns games played in the last two weeks. count 0
// means all of them.
func (c *Client) GetRecentlyPlayedGames(ctx context.Context, steamID string, count int) ([]OwnedGame, error) {
	if err := validSteamID(steamID); err != nil {
		return nil, err
	}
	params := url.Values{"steamid": {steamID}}
	if count > 0 {
		params.Set("count", strconv.Itoa(count))
	}

	var httpResp RecentlyPlayedHttpResponse
	if err := c.getJSON(ctx, RecentlyPlayedEndpoint, params, &httpResp); err != nil {
		return nil, fmt.Errorf("GetRecentlyPlayedGames failed for steamid=%s: %w", steamID, err)
	}
	return httpResp.Response.Games, nil
}

// GetPlayerAchievements retrieves the user's unlock state for one game
func (c *Client) GetPlayerAchievements(ctx context.Context, steamID string, appID int) (PlayerStats, error) {
	if err := validSteamID(steamID); err != nil {
		return PlayerStats{}, err
	}
	params := url.Values{
		"steamid": {steamID},
		"appid":   {strconv.Itoa(appID)},
		"l":       {"english"},
	}

	var resp PlayerAchievementsResponse
	if err := c.getJSON(ctx, PlayerAchievementsEndpoint, params, &resp); err != nil {
		return PlayerStats{}, err
	}
	return resp.PlayerStats, nil
}

// GetSchemaForGame retrieves achievement names, descriptions and icons
func (c *Client) GetSchemaForGame(ctx context.Context, appID int) (GameSchema, error) {
	params := url.Values{
		"appid": {strconv.Itoa(appID)},
		"l":     {"english"},
	}

	var resp SchemaResponse
	if err := c.getJSON(ctx, SchemaEndpoint, params, &resp); err != nil {
		return GameSchema{}, err
	}
	return resp.Game, nil
}

// GetGlobalAchievementPercentages retrieves how many players own each achievement
func (c *Client) GetGlobalAchievementPercentages(ctx context.Context, appID int) ([]GlobalAchievement, error) {
	params := url.Values{"gameid": {strconv.Itoa(appID)}}

	var resp GlobalAchievementResponse
	if err := c.getJSON(ctx, GlobalAchievementsEndpoint, params, &resp); err != nil {
		return nil, err
	}
	return resp.AchievementPercentages.Achievements, nil
}

// GetPlayerSummaries retrieves player information including username (personaname) from Steam IDs
func (c *Client) GetPlayerSummaries(ctx context.Context, steamIDs []string) ([]PlayerSummary, error) {
	if len(steamIDs) == 0 {
		return nil, fmt.Errorf("steamIDs cannot be empty")
	}

	// Steam accepts up to 100 comma separated ids
	params := url.Values{"steamids": {strings.Join(steamIDs, ",")}}

	var resp PlayerSummariesResponse
	if err := c.getJSON(ctx, PlayerSummariesEndpoint, params, &resp); err != nil {
		return nil, err
	}
	return resp.Response.Players, nil
}
