package localsteam

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joshhsoj1902/deck-achievements/internal/logger"
	"github.com/sirupsen/logrus"
)

// SubscribeAchievementChanges polls the library cache and calls fn with the
// app id of every cache file that changed. The returned function stops the
// watcher and waits for it to exit; calling it twice is safe.
func (c *Client) SubscribeAchievementChanges(fn func(appID int)) (func(), error) {
	dir, err := c.libraryCacheDir(context.Background())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		seen := snapshot(dir)
		ticker := time.NewTicker(c.watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// the user may log in after we started
				if dir == "" {
					if dir, _ = c.libraryCacheDir(ctx); dir == "" {
						continue
					}
					seen = snapshot(dir)
					continue
				}
				current := snapshot(dir)
				for appID, mtime := range current {
					if prev, ok := seen[appID]; !ok || mtime.After(prev) {
						logger.Log.WithFields(logrus.Fields{"app_id": appID}).Debug("Library cache changed")
						fn(appID)
					}
				}
				seen = current
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

// snapshot maps app id to the modification time of its cache file.
func snapshot(dir string) map[int]time.Time {
	out := map[int]time.Time{}
	if dir == "" {
		return out
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		appID, err := strconv.Atoi(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[appID] = info.ModTime()
	}
	return out
}
