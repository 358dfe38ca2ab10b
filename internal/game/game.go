package game

import (
	"context"
	"time"

	"github.com/raycs13/RealCasino/internal/model"
)

// Broadcast event names, ordered per round: round_start precedes every
// time_update, which precede spin_start/round_end, which precede the next
// round_start.
const (
	EvtRoundStart    = "round_start"
	EvtTimeUpdate    = "time_update"
	EvtSpinStart     = "spin_start"
	EvtRoundEnd      = "round_end"
	EvtBetsUpdate    = "bets_update"
	EvtBetResult     = "bet_result"
	EvtBalanceUpdate = "balance_update"
	EvtPreviousSpins = "previous_spins"
)

// Store is the durable record of rounds, bets, payouts and balances.
//
// PlaceBet must debit the stake and insert the bet row in one transaction,
// rejecting with model.ErrInsufficientBalance when the debit would take the
// balance negative. SettleRound must flip the round's settled flag, write
// the payout rows and apply the credits in one transaction; applied=false
// reports that the flag was already set and nothing was credited.
type Store interface {
	CreateRound(ctx context.Context, gameID int) (int64, error)
	SetOutcome(ctx context.Context, roundID int64, slot int, color model.Color) error
	MarkRoundErrored(ctx context.Context, roundID int64) error
	PlaceBet(ctx context.Context, bet *model.Bet) (newBalance int64, err error)
	VoidBet(ctx context.Context, bet *model.Bet) (newBalance int64, err error)
	SettleRound(ctx context.Context, roundID int64, payouts []model.Payout) (applied bool, err error)
	GetBalance(ctx context.Context, userID string) (int64, error)
	LastSpins(ctx context.Context, n int) ([]model.Spin, error)
}

// Broadcaster delivers game events to subscribers. Delivery is best-effort
// but must preserve publish order per subscriber.
type Broadcaster interface {
	Broadcast(event string, data any)
	SendToUser(userID, event string, data any)
}

// Config holds the engine's timing parameters.
type Config struct {
	GameID      int
	Window      time.Duration // betting window per round
	Cooldown    time.Duration // pause between rounds
	Tick        time.Duration // time_update interval
	RetryBase   time.Duration // first retry delay for store failures
	RetryMax    int           // attempts before a round is errored
	SpinHistory int           // previous_spins depth
}

func (c *Config) applyDefaults() {
	if c.GameID == 0 {
		c.GameID = 1
	}
	if c.Window == 0 {
		c.Window = 15 * time.Second
	}
	if c.Cooldown == 0 {
		c.Cooldown = 9 * time.Second
	}
	if c.Tick == 0 {
		c.Tick = time.Second
	}
	if c.RetryBase == 0 {
		c.RetryBase = 250 * time.Millisecond
	}
	if c.RetryMax == 0 {
		c.RetryMax = 3
	}
	if c.SpinHistory == 0 {
		c.SpinHistory = 10
	}
}
