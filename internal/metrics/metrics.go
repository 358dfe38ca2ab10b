package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/raycs13/RealCasino/internal/model"
)

var (
	betTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_bets_total",
			Help: "Total bet placements by result and color",
		},
		[]string{"result", "color"},
	)

	betStake = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_bet_stake_total",
			Help: "Total credits staked on accepted bets, by color",
		},
		[]string{"color"},
	)

	drawTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roulette_draws_total",
			Help: "Total wheel draws by winning color",
		},
		[]string{"color"},
	)

	payoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roulette_payout_credits_total",
			Help: "Total credits paid out by settlement",
		},
	)

	roundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roulette_round_duration_seconds",
			Help:    "Wall time from round open to cooldown",
			Buckets: prometheus.LinearBuckets(15, 3, 8),
		},
	)

	roundsErrored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roulette_rounds_errored_total",
			Help: "Rounds abandoned after store or resolver failures",
		},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roulette_ws_connections",
			Help: "Currently connected websocket clients",
		},
	)
)

// RecordBet records one bet placement. result is "success" or "fail".
// Rejections carry whatever color string the client sent; anything outside
// the known colors is folded into one "invalid" label so request payloads
// cannot mint unbounded label cardinality.
func RecordBet(result, color string, stake int64) {
	if !model.Color(color).Valid() {
		color = "invalid"
	}
	betTotal.WithLabelValues(result, color).Inc()
	if result == "success" {
		betStake.WithLabelValues(color).Add(float64(stake))
	}
}

func RecordDraw(color string) {
	drawTotal.WithLabelValues(color).Inc()
}

func RecordSettlement(totalPaid int64) {
	payoutTotal.Add(float64(totalPaid))
}

func RecordRound(openedAt time.Time, errored bool) {
	roundDuration.Observe(time.Since(openedAt).Seconds())
	if errored {
		roundsErrored.Inc()
	}
}

func WSConnect()    { wsConnections.Inc() }
func WSDisconnect() { wsConnections.Dec() }
