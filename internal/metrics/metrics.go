package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GuessesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_guesses_submitted_total",
		Help: "Guesses accepted and evaluated.",
	})

	GamesWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_games_won_total",
		Help: "Player sessions that ended in a win.",
	})

	GamesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_games_failed_total",
		Help: "Player sessions that ended in a fail, including window expiry.",
	})

	LeaderboardRecalcs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_leaderboard_recalculations_total",
		Help: "Completed leaderboard recalculation passes.",
	})

	LeaderboardRecalcFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_leaderboard_recalculation_failures_total",
		Help: "Recalculation passes that failed and were skipped until the next tick.",
	})

	ApplauseSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagvorto_applause_sent_total",
		Help: "Applause records created.",
	})

	WSSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagvorto_ws_subscribers",
		Help: "Currently connected websocket subscribers.",
	})
)
