package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joshhsoj1902/deck-achievements/internal/api"
	"github.com/joshhsoj1902/deck-achievements/internal/backend"
	"github.com/joshhsoj1902/deck-achievements/internal/cache"
	"github.com/joshhsoj1902/deck-achievements/internal/localsteam"
	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/joshhsoj1902/deck-achievements/internal/polling"
	"github.com/joshhsoj1902/deck-achievements/internal/settings"
	"github.com/joshhsoj1902/deck-achievements/internal/steam"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the achievement backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	logger.Log.Info("Starting deck-achievements backend")

	logger.Log.WithFields(logrus.Fields{
		"port":          cfg.Server.Port,
		"redis_addr":    cfg.Redis.Addr,
		"steam_root":    cfg.Steam.Root,
		"auto_refresh":  cfg.Refresh.Enabled,
		"refresh_every": cfg.Refresh.Interval,
		"steam_key_set": cfg.Steam.APIKey != "",
		"rpc_auth":      cfg.RPC.Secret != "",
	}).Info("Configuration loaded")

	ctx, stop := signalContext()
	defer stop()

	redisCache := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("redis at %s is unreachable: %w", cfg.Redis.Addr, err)
	}

	store := settings.NewStore(redisCache, settings.Settings{
		APIKey:          cfg.Steam.APIKey,
		SteamID:         cfg.Steam.SteamID,
		AutoRefresh:     cfg.Refresh.Enabled,
		RefreshInterval: cfg.Refresh.Interval,
		TestAppID:       cfg.Steam.TestAppID,
	})
	current, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	client := steam.NewClient(current.APIKey, steam.NewBackoff(ctx, redisCache))
	service := steam.NewService(client, redisCache)
	progress := steam.NewProgressCalculator(service, redisCache, cfg.Steam.ProgressConcurrency)

	local := localsteam.New(cfg.Steam.Root)
	if !local.Available() {
		logger.Log.WithField("steam_root", cfg.Steam.Root).Warn("Local Steam client not found, running Web API only")
	}

	b := backend.New(service, progress, local, store, cfg.Steam.ProgressConcurrency)

	hub := api.NewHub()
	manager := polling.NewManager(b, hub, current.RefreshInterval)
	b.SetScheduler(manager)
	b.Apply()
	manager.Start()

	var disposeWatch func()
	if local.Available() {
		disposeWatch, err = local.SubscribeAchievementChanges(func(appID int) {
			logger.Log.WithField("app_id", appID).Debug("Local achievement cache changed")
			manager.Trigger()
		})
		if err != nil {
			logger.Log.WithError(err).Warn("Watching local achievement cache failed")
		}
	}

	handlers := api.NewHandlers(b, redisCache, hub)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(handlers, cfg.RPC.Secret),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Log.WithField("port", cfg.Server.Port).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Log.Info("Shutting down server...")

	if disposeWatch != nil {
		disposeWatch()
	}
	logger.Log.Info("Stopping polling manager")
	manager.Stop()
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	progress.Wait()
	logger.Log.Info("Server exited")
	return nil
}
