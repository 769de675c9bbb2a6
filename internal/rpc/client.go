package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

// Client calls backend functions over HTTP.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

func NewClient(baseURL string, secret string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) authorize(header http.Header) error {
	if c.secret == "" {
		return nil
	}
	token, err := GenerateToken(c.secret, "cli")
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	header.Set("Authorization", "Bearer "+token)
	return nil
}

// Call invokes method with args and decodes the result into out. A backend
// reported failure is returned as *Error; anything else is a transport error.
// found is false when the backend answered with a null result.
func (c *Client) Call(ctx context.Context, method string, args Args, out any) (found bool, err error) {
	if args == nil {
		args = Args{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return false, fmt.Errorf("failed to encode args: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+method, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if err := c.authorize(req.Header); err != nil {
		return false, err
	}

	logger.Log.WithFields(logrus.Fields{
		"method": method,
		"args":   len(args),
	}).Debug("Calling backend")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return false, fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, preview)
	}

	if env.Error != "" {
		return false, &Error{Method: method, Code: env.Code, Message: env.Error}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return false, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return true, nil
}

func (c *Client) CurrentGame(ctx context.Context) (*achievements.GameInfo, error) {
	var game achievements.GameInfo
	found, err := c.Call(ctx, MethodGetCurrentGame, nil, &game)
	if err != nil || !found {
		return nil, err
	}
	return &game, nil
}

func (c *Client) Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error) {
	args := Args{}
	if appID > 0 {
		args["app_id"] = appID
	}
	var set achievements.AchievementSet
	found, err := c.Call(ctx, MethodGetAchievements, args, &set)
	if err != nil || !found {
		return nil, err
	}
	return &set, nil
}

func (c *Client) RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error) {
	var recent []achievements.RecentAchievement
	_, err := c.Call(ctx, MethodGetRecentAchievements, Args{"limit": limit}, &recent)
	return recent, err
}

func (c *Client) AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error) {
	var progress achievements.OverallProgress
	found, err := c.Call(ctx, MethodGetAchievementProgress, Args{"force_refresh": forceRefresh}, &progress)
	if err != nil || !found {
		return nil, err
	}
	return &progress, nil
}

func (c *Client) InstalledGames(ctx context.Context) ([]achievements.GameInfo, error) {
	var games []achievements.GameInfo
	_, err := c.Call(ctx, MethodGetInstalledGames, nil, &games)
	return games, err
}

func (c *Client) UserGames(ctx context.Context) ([]achievements.GameInfo, error) {
	var games []achievements.GameInfo
	_, err := c.Call(ctx, MethodGetUserGames, nil, &games)
	return games, err
}

func (c *Client) RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error) {
	var games []achievements.GameInfo
	_, err := c.Call(ctx, MethodGetRecentlyPlayedGames, Args{"count": count}, &games)
	return games, err
}

func (c *Client) GameArtwork(ctx context.Context, appID int) (*achievements.Artwork, error) {
	var art achievements.Artwork
	found, err := c.Call(ctx, MethodGetGameArtwork, Args{"app_id": appID}, &art)
	if err != nil || !found {
		return nil, err
	}
	return &art, nil
}

func (c *Client) SetSteamAPIKey(ctx context.Context, key string) error {
	_, err := c.Call(ctx, MethodSetSteamAPIKey, Args{"key": key}, nil)
	return err
}

func (c *Client) SetTrackedGame(ctx context.Context, appID int, name string) error {
	_, err := c.Call(ctx, MethodSetTrackedGame, Args{"app_id": appID, "name": name}, nil)
	return err
}

func (c *Client) ClearTrackedGame(ctx context.Context) error {
	_, err := c.Call(ctx, MethodClearTrackedGame, nil, nil)
	return err
}

func (c *Client) RefreshCache(ctx context.Context, appID int) error {
	args := Args{}
	if appID > 0 {
		args["app_id"] = appID
	}
	_, err := c.Call(ctx, MethodRefreshCache, args, nil)
	return err
}

func (c *Client) LoadSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if _, err := c.Call(ctx, MethodLoadSettings, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ReloadSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	if _, err := c.Call(ctx, MethodReloadSettings, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SetAutoRefresh(ctx context.Context, enabled bool) error {
	_, err := c.Call(ctx, MethodSetAutoRefresh, Args{"enabled": enabled}, nil)
	return err
}

func (c *Client) SetRefreshInterval(ctx context.Context, seconds int) error {
	_, err := c.Call(ctx, MethodSetRefreshInterval, Args{"seconds": seconds}, nil)
	return err
}

// Subscribe streams backend events to fn until the returned disposer is
// called or the connection drops.
func (c *Client) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	u, err := url.Parse(c.baseURL + "/events")
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	header := http.Header{}
	if err := c.authorize(header); err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					logger.Log.WithError(err).Debug("Event stream closed")
				}
				return
			}
			for _, line := range bytes.Split(data, []byte{'\n'}) {
				var ev Event
				if err := json.Unmarshal(line, &ev); err != nil {
					logger.Log.WithError(err).Warn("Dropping malformed event")
					continue
				}
				fn(ev)
			}
		}
	}()

	return func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
		<-done
	}, nil
}
