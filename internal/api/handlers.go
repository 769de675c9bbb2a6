package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/joshhsoj1902/deck-achievements/internal/backend"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Backend is everything the UI can call remotely.
type Backend interface {
	CurrentGame(ctx context.Context) (*achievements.GameInfo, error)
	Achievements(ctx context.Context, appID int) (*achievements.AchievementSet, error)
	RecentAchievements(ctx context.Context, limit int) ([]achievements.RecentAchievement, error)
	AchievementProgress(ctx context.Context, forceRefresh bool) (*achievements.OverallProgress, error)
	InstalledGames(ctx context.Context) ([]achievements.GameInfo, error)
	UserGames(ctx context.Context) ([]achievements.GameInfo, error)
	RecentlyPlayedGames(ctx context.Context, count int) ([]achievements.GameInfo, error)
	GameArtwork(ctx context.Context, appID int) (*achievements.Artwork, error)
	SetSteamAPIKey(ctx context.Context, key string) error
	SetTrackedGame(ctx context.Context, appID int, name string) error
	ClearTrackedGame(ctx context.Context) error
	RefreshCache(ctx context.Context, appID int) error
	LoadSettings(ctx context.Context) (*rpc.Settings, error)
	ReloadSettings(ctx context.Context) (*rpc.Settings, error)
	SetAutoRefresh(ctx context.Context, enabled bool) error
	SetRefreshInterval(ctx context.Context, seconds int) error
}

// Pinger reports whether the cache is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// callArgs is the union of every method's named arguments.
type callArgs struct {
	AppID        int    `json:"app_id"`
	Limit        int    `json:"limit"`
	Count        int    `json:"count"`
	ForceRefresh bool   `json:"force_refresh"`
	Key          string `json:"key"`
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	Seconds      int    `json:"seconds"`
}

type methodFunc func(ctx context.Context, args callArgs) (any, error)

var rpcCalls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "deck_rpc_calls_total",
		Help: "Backend function calls by method and result code",
	},
	[]string{"method", "code"},
)

func init() {
	prometheus.MustRegister(rpcCalls)
}

type Handlers struct {
	backend Backend
	cache   Pinger
	hub     *Hub
	methods map[string]methodFunc
}

func NewHandlers(b Backend, cache Pinger, hub *Hub) *Handlers {
	h := &Handlers{backend: b, cache: cache, hub: hub}
	h.methods = map[string]methodFunc{
		rpc.MethodGetCurrentGame: func(ctx context.Context, _ callArgs) (any, error) {
			return nullable(b.CurrentGame(ctx))
		},
		rpc.MethodGetAchievements: func(ctx context.Context, a callArgs) (any, error) {
			return nullable(b.Achievements(ctx, a.AppID))
		},
		rpc.MethodGetRecentAchievements: func(ctx context.Context, a callArgs) (any, error) {
			return b.RecentAchievements(ctx, a.Limit)
		},
		rpc.MethodGetAchievementProgress: func(ctx context.Context, a callArgs) (any, error) {
			return nullable(b.AchievementProgress(ctx, a.ForceRefresh))
		},
		rpc.MethodGetInstalledGames: func(ctx context.Context, _ callArgs) (any, error) {
			return b.InstalledGames(ctx)
		},
		rpc.MethodGetUserGames: func(ctx context.Context, _ callArgs) (any, error) {
			return b.UserGames(ctx)
		},
		rpc.MethodGetRecentlyPlayedGames: func(ctx context.Context, a callArgs) (any, error) {
			return b.RecentlyPlayedGames(ctx, a.Count)
		},
		rpc.MethodGetGameArtwork: func(ctx context.Context, a callArgs) (any, error) {
			return nullable(b.GameArtwork(ctx, a.AppID))
		},
		rpc.MethodSetSteamAPIKey: func(ctx context.Context, a callArgs) (any, error) {
			return ok(b.SetSteamAPIKey(ctx, a.Key))
		},
		rpc.MethodSetTrackedGame: func(ctx context.Context, a callArgs) (any, error) {
			return ok(b.SetTrackedGame(ctx, a.AppID, a.Name))
		},
		rpc.MethodClearTrackedGame: func(ctx context.Context, _ callArgs) (any, error) {
			return ok(b.ClearTrackedGame(ctx))
		},
		rpc.MethodRefreshCache: func(ctx context.Context, a callArgs) (any, error) {
			return ok(b.RefreshCache(ctx, a.AppID))
		},
		rpc.MethodLoadSettings: func(ctx context.Context, _ callArgs) (any, error) {
			return b.LoadSettings(ctx)
		},
		rpc.MethodReloadSettings: func(ctx context.Context, _ callArgs) (any, error) {
			return b.ReloadSettings(ctx)
		},
		rpc.MethodSetAutoRefresh: func(ctx context.Context, a callArgs) (any, error) {
			return ok(b.SetAutoRefresh(ctx, a.Enabled))
		},
		rpc.MethodSetRefreshInterval: func(ctx context.Context, a callArgs) (any, error) {
			return ok(b.SetRefreshInterval(ctx, a.Seconds))
		},
	}
	return h
}

// nullable turns a nil pointer result into an untyped nil so it encodes as null.
func nullable[T any](v *T, err error) (any, error) {
	if err != nil || v == nil {
		return nil, err
	}
	return v, nil
}

func ok(err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return true, nil
}

// HandleRPC handles POST /rpc/{method}
func (h *Handlers) HandleRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	method := chi.URLParam(r, "method")
	fields := logrus.Fields{
		"method":     method,
		"request_id": middleware.GetReqID(r.Context()),
	}

	fn, found := h.methods[method]
	if !found {
		logger.Log.WithFields(fields).Warn("Unknown backend method")
		h.writeError(w, method, rpc.CodeUnknownMethod, "unknown method "+method)
		return
	}

	var args callArgs
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.WithFields(fields).WithError(err).Warn("Malformed call arguments")
		h.writeError(w, method, rpc.CodeInvalidArgument, "malformed arguments: "+err.Error())
		return
	}

	result, err := fn(r.Context(), args)
	fields["duration"] = time.Since(start)
	if err != nil {
		code := codeFor(err)
		fields["error"] = err.Error()
		fields["code"] = code
		if code == rpc.CodeInternal {
			logger.Log.WithFields(fields).Error("Backend call failed")
		} else {
			logger.Log.WithFields(fields).Info("Backend call returned an error")
		}
		h.writeError(w, method, code, err.Error())
		return
	}

	logger.Log.WithFields(fields).Debug("Backend call completed")
	rpcCalls.WithLabelValues(method, "ok").Inc()
	data, err := json.Marshal(result)
	if err != nil {
		h.writeError(w, method, rpc.CodeInternal, "failed to encode result: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.Envelope{Result: data})
}

func codeFor(err error) string {
	switch {
	case errors.Is(err, backend.ErrProgressInProgress):
		return rpc.CodeInProgress
	case errors.Is(err, backend.ErrNoAPIKey):
		return rpc.CodeNoAPIKey
	case errors.Is(err, backend.ErrInvalidArgument):
		return rpc.CodeInvalidArgument
	default:
		return rpc.CodeInternal
	}
}

func statusFor(code string) int {
	switch code {
	case rpc.CodeUnknownMethod:
		return http.StatusNotFound
	case rpc.CodeInvalidArgument:
		return http.StatusBadRequest
	case rpc.CodeUnauthorized:
		return http.StatusUnauthorized
	case rpc.CodeInProgress:
		return http.StatusAccepted
	case rpc.CodeNoAPIKey:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, method, code, message string) {
	rpcCalls.WithLabelValues(method, code).Inc()
	writeJSON(w, statusFor(code), rpc.Envelope{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Warn("Failed to write response")
	}
}

// HandleEvents handles /events, upgrading to a websocket.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

// HandleHealth handles /healthz
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]any{"status": "ok", "clients": h.hub.Count()}
	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			logger.Log.WithError(err).Warn("Health check: redis unreachable")
			status["status"] = "degraded"
			status["redis"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleAllMetrics handles /metrics - serves everything except the per-game Steam metrics
func (h *Handlers) HandleAllMetrics(w http.ResponseWriter, r *http.Request) {
	SystemMetricsHandler().ServeHTTP(w, r)
}

// HandleSteamMetrics handles /metrics/steam
func (h *Handlers) HandleSteamMetrics(w http.ResponseWriter, r *http.Request) {
	SteamHandler().ServeHTTP(w, r)
}

// HandleRoot serves a simple front page
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(`<html>
<head><title>Deck Achievements</title></head>
<body>
	<h1>Deck Achievements</h1>
	<p>Steam achievement backend</p>
	<h2>Endpoints:</h2>
	<ul>
		<li>POST /rpc/{method} - Call a backend function with JSON arguments</li>
		<li>/events - Websocket stream of game and unlock events</li>
		<li><a href="/healthz">/healthz</a> - Health check</li>
		<li><a href="/metrics">/metrics</a> - Service metrics (Go runtime, process, RPC)</li>
		<li><a href="/metrics/steam">/metrics/steam</a> - Steam achievement metrics</li>
	</ul>
</body>
</html>`))
}
