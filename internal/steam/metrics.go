package steam

import (
	"strconv"

	"github.com/joshhsoj1902/deck-achievements/internal/achievements"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "steam",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Steam Web API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	achievementGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "steam",
		Subsystem: "achievements",
		Name:      "achieved",
		Help:      "Whether an achievement has been achieved (1) or not (0)",
	}, []string{"app_id", "game_name", "achievement_name"})

	gameCompletionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "steam",
		Subsystem: "achievements",
		Name:      "completion_percent",
		Help:      "Share of a game's achievements that are unlocked",
	}, []string{"app_id", "game_name"})

	progressGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "steam",
		Subsystem: "progress",
		Name:      "value",
		Help:      "Library-wide achievement progress figures",
	}, []string{"figure"})
)

func init() {
	prometheus.MustRegister(apiRequests)
	prometheus.MustRegister(achievementGauge)
	prometheus.MustRegister(gameCompletionGauge)
	prometheus.MustRegister(progressGauge)
}

// ReportAchievements publishes one gauge per achievement plus the game's completion.
func ReportAchievements(set *achievements.AchievementSet) {
	if !set.OK() {
		return
	}
	appID := strconv.Itoa(set.AppID)
	for _, a := range set.Items {
		achieved := 0.0
		if a.Unlocked {
			achieved = 1
		}
		achievementGauge.With(prometheus.Labels{
			"app_id":           appID,
			"game_name":        set.GameName,
			"achievement_name": a.APIName,
		}).Set(achieved)
	}
	gameCompletionGauge.With(prometheus.Labels{
		"app_id":    appID,
		"game_name": set.GameName,
	}).Set(set.Percentage())
}

// ReportProgress publishes the overall progress figures.
func ReportProgress(p *achievements.OverallProgress) {
	progressGauge.WithLabelValues("total_games").Set(float64(p.TotalGames))
	progressGauge.WithLabelValues("games_with_achievements").Set(float64(p.GamesWithAchievements))
	progressGauge.WithLabelValues("total_achievements").Set(float64(p.TotalAchievements))
	progressGauge.WithLabelValues("unlocked_achievements").Set(float64(p.UnlockedAchievements))
	progressGauge.WithLabelValues("average_completion").Set(p.AverageCompletion)
	progressGauge.WithLabelValues("perfect_games").Set(float64(p.PerfectGamesCount))
}
