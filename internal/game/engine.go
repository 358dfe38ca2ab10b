package game

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/raycs13/RealCasino/internal/metrics"
	"github.com/raycs13/RealCasino/internal/model"
)

// Engine owns the round lifecycle. The current round and its ledger form a
// single serialized unit behind e.mu: admission checks, phase flips and
// ledger mutations all happen under that mutex, so a bet can never slip in
// after the lock timer has fired. Store calls run outside the mutex.
//
// Phase machine: IDLE → OPEN → LOCKED → RESOLVED → SETTLING → COOLDOWN →
// OPEN(next), repeating until Stop.
type Engine struct {
	cfg   Config
	store Store
	bcast Broadcaster
	wheel *Wheel
	log   *logrus.Entry

	ctx context.Context

	mu        sync.Mutex
	round     *model.Round
	ledger    *Ledger
	lockTimer *time.Timer
	nextTimer *time.Timer
	stopped   bool

	wg sync.WaitGroup
}

func NewEngine(cfg Config, store Store, bcast Broadcaster, log *logrus.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:    cfg,
		store:  store,
		bcast:  bcast,
		wheel:  NewWheel(),
		log:    log.WithField("component", "engine"),
		ledger: NewLedger(),
	}
}

// Start opens the first round. The context bounds every store call the
// lifecycle makes; cancel it before Stop for a prompt shutdown.
func (e *Engine) Start(ctx context.Context) {
	e.ctx = ctx
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.startRound()
	}()
}

// Stop cancels pending timers and waits for in-flight lifecycle work. Any
// timer that still fires afterwards no-ops on the stopped flag.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	if e.lockTimer != nil {
		e.lockTimer.Stop()
	}
	if e.nextTimer != nil {
		e.nextTimer.Stop()
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// ── Lifecycle ────────────────────────────────────────

func (e *Engine) startRound() {
	if e.isStopped() {
		return
	}

	var roundID int64
	err := e.withRetry("create round", func() error {
		id, err := e.store.CreateRound(e.ctx, e.cfg.GameID)
		if err == nil {
			roundID = id
		}
		return err
	})
	if err != nil {
		e.log.WithError(err).Error("could not open a round, retrying after cooldown")
		// The restart must be keyed to the round the engine is actually
		// sitting on, not the round that failed to open: after the first
		// round e.round still holds the last settled round, and a restart
		// keyed to anything else would be discarded as stale.
		e.mu.Lock()
		var current int64
		if e.round != nil {
			current = e.round.ID
		}
		e.mu.Unlock()
		e.scheduleRestart(current, e.cfg.Cooldown)
		return
	}

	e.broadcastSpinHistory()

	now := time.Now()
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.round = &model.Round{
		ID:       roundID,
		GameID:   e.cfg.GameID,
		Phase:    model.PhaseOpen,
		OpenedAt: now,
		ClosesAt: now.Add(e.cfg.Window),
	}
	e.ledger.Reset(roundID)
	e.bcast.Broadcast(EvtRoundStart, model.RoundStart{
		RoundID:  roundID,
		Duration: int(e.cfg.Window / time.Second),
	})
	// The lock timer carries the round id it was scheduled for; it no-ops
	// if the engine has moved past that round.
	e.lockTimer = time.AfterFunc(e.cfg.Window, func() { e.lockRound(roundID) })
	e.mu.Unlock()

	e.wg.Add(1)
	go e.tickLoop(roundID)

	e.log.WithFields(logrus.Fields{
		"round_id": roundID,
		"window":   e.cfg.Window,
	}).Info("round open")
}

// tickLoop publishes time_update once per tick while the round stays OPEN.
func (e *Engine) tickLoop(roundID int64) {
	defer e.wg.Done()
	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()
	for range t.C {
		e.mu.Lock()
		if e.stopped || e.round == nil || e.round.ID != roundID || e.round.Phase != model.PhaseOpen {
			e.mu.Unlock()
			return
		}
		remaining := int(math.Ceil(time.Until(e.round.ClosesAt).Seconds()))
		if remaining < 0 {
			remaining = 0
		}
		e.bcast.Broadcast(EvtTimeUpdate, model.TimeUpdate{Remaining: remaining})
		e.mu.Unlock()
	}
}

// lockRound flips the phase flag before anything else runs. That flag is
// the single source of truth the bet path consults, so wagers mid-flight
// when the window expires are rejected (or compensated) rather than raced.
func (e *Engine) lockRound(roundID int64) {
	e.mu.Lock()
	if e.stopped || e.round == nil || e.round.ID != roundID || e.round.Phase != model.PhaseOpen {
		e.mu.Unlock()
		return
	}
	// Registering with the waitgroup under the mutex orders this against
	// Stop: either Stop already flagged us off, or Stop waits for the
	// settlement below to finish.
	e.wg.Add(1)
	defer e.wg.Done()
	e.round.Phase = model.PhaseLocked
	e.bcast.Broadcast(EvtTimeUpdate, model.TimeUpdate{Remaining: 0, IsResolving: true})
	e.bcast.Broadcast(EvtSpinStart, struct{}{})
	e.mu.Unlock()

	e.resolveAndSettle(roundID)
}

func (e *Engine) resolveAndSettle(roundID int64) {
	log := e.log.WithField("round_id", roundID)

	out, err := e.wheel.Resolve(roundID)
	if errors.Is(err, model.ErrAlreadyResolved) {
		// Conflict, not fatal: keep the original outcome.
		log.Warn("duplicate resolve attempt, keeping original outcome")
		err = nil
	}
	if err != nil {
		log.WithError(err).Error("resolver failed, skipping settlement")
		e.failRound(roundID)
		return
	}

	e.setPhase(roundID, model.PhaseResolved, func(r *model.Round) {
		r.Slot = &out.Slot
		r.Color = &out.Color
	})

	// The outcome must be durable before it is announced or paid against:
	// a crash here must not let settlement run against a draw the restart
	// cannot recover.
	if err := e.withRetry("persist outcome", func() error {
		return e.store.SetOutcome(e.ctx, roundID, out.Slot, out.Color)
	}); err != nil {
		log.WithError(err).Error("could not persist outcome, skipping settlement")
		e.failRound(roundID)
		return
	}

	metrics.RecordDraw(string(out.Color))
	e.bcast.Broadcast(EvtRoundEnd, model.RoundEnd{Slot: out.Slot, Color: out.Color})

	e.mu.Lock()
	winners := e.ledger.Winners(out.Color)
	finalBook := e.ledger.Snapshot()
	if e.round != nil && e.round.ID == roundID {
		e.round.Phase = model.PhaseSettling
	}
	e.mu.Unlock()

	payouts := Payouts(roundID, winners, out.Color)
	var applied bool
	if err := e.withRetry("settle round", func() error {
		a, err := e.store.SettleRound(e.ctx, roundID, payouts)
		if err == nil {
			applied = a
		}
		return err
	}); err != nil {
		log.WithError(err).Error("settlement failed, abandoning round")
		e.failRound(roundID)
		return
	}
	if !applied {
		log.Warn("round was already settled, credits not re-applied")
	} else {
		var total int64
		for _, p := range payouts {
			total += p.Amount
			bal, err := e.store.GetBalance(e.ctx, p.UserID)
			if err != nil {
				log.WithError(err).WithField("user_id", p.UserID).Warn("balance read after credit failed")
				continue
			}
			e.bcast.SendToUser(p.UserID, EvtBalanceUpdate, model.BalanceUpdate{UserID: p.UserID, Balance: bal})
		}
		metrics.RecordSettlement(total)
	}

	e.bcast.Broadcast(EvtBetsUpdate, finalBook)

	var openedAt time.Time
	e.setPhase(roundID, model.PhaseCooldown, func(r *model.Round) {
		r.Settled = true
		openedAt = r.OpenedAt
	})
	metrics.RecordRound(openedAt, false)

	log.WithFields(logrus.Fields{
		"win_number": out.Slot,
		"win_color":  out.Color,
		"winners":    len(payouts),
	}).Info("round settled")

	e.scheduleRestart(roundID, e.cfg.Cooldown)
}

// failRound marks the round errored and moves on to the next one. The game
// must stay alive: systemic failures degrade to a skipped round, never an
// engine halt.
func (e *Engine) failRound(roundID int64) {
	if err := e.store.MarkRoundErrored(e.ctx, roundID); err != nil {
		e.log.WithError(err).WithField("round_id", roundID).Warn("could not mark round errored")
	}
	var openedAt time.Time
	e.setPhase(roundID, model.PhaseCooldown, func(r *model.Round) {
		r.Errored = true
		openedAt = r.OpenedAt
	})
	metrics.RecordRound(openedAt, true)
	e.scheduleRestart(roundID, e.cfg.Cooldown)
}

// scheduleRestart arms the cooldown timer. It captures the round it runs
// after, so a timer left over from a superseded round cannot double-start.
func (e *Engine) scheduleRestart(afterRound int64, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.nextTimer = time.AfterFunc(d, func() {
		e.mu.Lock()
		if e.stopped || (e.round != nil && e.round.ID != afterRound) {
			e.mu.Unlock()
			return
		}
		e.wg.Add(1)
		e.mu.Unlock()
		defer e.wg.Done()
		e.startRound()
	})
}

// ── Betting ──────────────────────────────────────────

// PlaceBet validates and records a wager on the currently open round and
// returns the user's new balance.
//
// Admission depends solely on the phase flag, never on timestamps. The
// debit+insert transaction runs outside the engine mutex so bets from
// different users do not block each other; the store serializes balance
// mutations per user and rejects overdraws atomically. If the round locks
// while the transaction is in flight, the wager is voided and the stake
// credited back.
func (e *Engine) PlaceBet(ctx context.Context, user *model.User, req model.PlaceBetReq) (*model.PlaceBetResult, error) {
	if req.Amount <= 0 {
		return nil, e.rejectBet(user.ID, req, model.ErrInvalidStake)
	}
	if !req.Color.Valid() {
		return nil, e.rejectBet(user.ID, req, model.ErrInvalidColor)
	}

	e.mu.Lock()
	if e.round == nil || e.round.Phase != model.PhaseOpen ||
		(req.RoundID != 0 && req.RoundID != e.round.ID) {
		e.mu.Unlock()
		return nil, e.rejectBet(user.ID, req, model.ErrRoundClosed)
	}
	roundID := e.round.ID
	e.mu.Unlock()

	bet := &model.Bet{
		ID:       uuid.NewString(),
		RoundID:  roundID,
		UserID:   user.ID,
		Color:    req.Color,
		Stake:    req.Amount,
		PlacedAt: time.Now(),
	}

	newBal, err := e.store.PlaceBet(ctx, bet)
	if err != nil {
		return nil, e.rejectBet(user.ID, req, err)
	}

	e.mu.Lock()
	if e.stopped || e.round == nil || e.round.ID != roundID || e.round.Phase != model.PhaseOpen {
		e.mu.Unlock()
		// The round locked while the debit was in flight. Undo the whole
		// wager so balance and ledger stay in agreement.
		if _, verr := e.store.VoidBet(ctx, bet); verr != nil {
			e.log.WithError(verr).WithFields(logrus.Fields{
				"bet_id":  bet.ID,
				"user_id": bet.UserID,
				"stake":   bet.Stake,
			}).Error("void failed after late lock, balance and ledger may diverge")
		}
		return nil, e.rejectBet(user.ID, req, model.ErrRoundClosed)
	}
	e.ledger.Record(bet, user.Username, user.AvatarURL)
	snapshot := e.ledger.Snapshot()
	e.bcast.Broadcast(EvtBetsUpdate, snapshot)
	e.bcast.SendToUser(user.ID, EvtBetResult, model.BetResult{
		UserID: user.ID, Success: true, Amount: req.Amount, Color: req.Color,
	})
	e.bcast.SendToUser(user.ID, EvtBalanceUpdate, model.BalanceUpdate{UserID: user.ID, Balance: newBal})
	e.mu.Unlock()

	metrics.RecordBet("success", string(req.Color), req.Amount)
	return &model.PlaceBetResult{
		BetID:      bet.ID,
		RoundID:    roundID,
		Color:      req.Color,
		Amount:     req.Amount,
		NewBalance: newBal,
	}, nil
}

func (e *Engine) rejectBet(userID string, req model.PlaceBetReq, err error) error {
	// Categorized errors are client-facing; anything else is an internal
	// failure whose detail stays in the logs.
	msg := err.Error()
	switch {
	case errors.Is(err, model.ErrRoundClosed),
		errors.Is(err, model.ErrInvalidStake),
		errors.Is(err, model.ErrInvalidColor),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrUserNotFound):
	default:
		msg = "bet failed"
	}
	e.bcast.SendToUser(userID, EvtBetResult, model.BetResult{
		UserID: userID, Success: false, Error: msg,
	})
	metrics.RecordBet("fail", string(req.Color), req.Amount)
	return err
}

// ── Queries ──────────────────────────────────────────

// State returns a snapshot of the current round for reconnecting clients.
func (e *Engine) State() model.GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := model.GameState{Phase: model.PhaseIdle, Colors: e.ledger.Snapshot().Colors}
	if e.round != nil {
		st.RoundID = e.round.ID
		st.Phase = e.round.Phase
		if e.round.Phase == model.PhaseOpen {
			if rem := int(math.Ceil(time.Until(e.round.ClosesAt).Seconds())); rem > 0 {
				st.Remaining = rem
			}
		}
	}
	return st
}

// ── Helpers ──────────────────────────────────────────

func (e *Engine) setPhase(roundID int64, p model.Phase, mutate func(*model.Round)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.round == nil || e.round.ID != roundID {
		return
	}
	e.round.Phase = p
	if mutate != nil {
		mutate(e.round)
	}
}

func (e *Engine) isStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// withRetry runs a store call with bounded backoff. It returns the last
// error once attempts are exhausted; callers decide whether that errors
// the round.
func (e *Engine) withRetry(op string, fn func() error) error {
	var err error
	delay := e.cfg.RetryBase
	for attempt := 1; attempt <= e.cfg.RetryMax; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if e.isStopped() {
			return err
		}
		e.log.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).Warn("store call failed")
		if attempt < e.cfg.RetryMax {
			select {
			case <-time.After(delay):
			case <-e.ctx.Done():
				return err
			}
			delay *= 2
		}
	}
	return err
}

func (e *Engine) broadcastSpinHistory() {
	spins, err := e.store.LastSpins(e.ctx, e.cfg.SpinHistory)
	if err != nil {
		e.log.WithError(err).Warn("could not load spin history")
		return
	}
	e.bcast.Broadcast(EvtPreviousSpins, model.PreviousSpins{Spins: spins})
}
