package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/raycs13/RealCasino/internal/model"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory game.Store. Its single mutex plays the role of
// the database's row locks: the balance check-and-debit is one atomic step.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	balances map[string]int64
	bets     map[string]*model.Bet
	voided   map[string]bool
	outcomes map[int64]model.Spin
	settled  map[int64]bool
	errored  map[int64]bool
	payouts  []model.Payout

	failCreate     int // fail this many CreateRound calls
	failSetOutcome int
	failSettle     int
	failPlaceBet   int

	beforePlaceBet func(*model.Bet) // runs outside the lock, once
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[string]int64),
		bets:     make(map[string]*model.Bet),
		voided:   make(map[string]bool),
		outcomes: make(map[int64]model.Spin),
		settled:  make(map[int64]bool),
		errored:  make(map[int64]bool),
	}
}

func (s *memStore) CreateRound(ctx context.Context, gameID int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate > 0 {
		s.failCreate--
		return 0, errStoreDown
	}
	s.nextID++
	return s.nextID, nil
}

func (s *memStore) SetOutcome(ctx context.Context, roundID int64, slot int, color model.Color) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSetOutcome > 0 {
		s.failSetOutcome--
		return errStoreDown
	}
	s.outcomes[roundID] = model.Spin{RoundID: roundID, Slot: slot, Color: color}
	return nil
}

func (s *memStore) MarkRoundErrored(ctx context.Context, roundID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errored[roundID] = true
	return nil
}

func (s *memStore) PlaceBet(ctx context.Context, bet *model.Bet) (int64, error) {
	s.mu.Lock()
	hook := s.beforePlaceBet
	s.beforePlaceBet = nil
	s.mu.Unlock()
	if hook != nil {
		hook(bet)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPlaceBet > 0 {
		s.failPlaceBet--
		return 0, errStoreDown
	}
	bal, ok := s.balances[bet.UserID]
	if !ok {
		return 0, model.ErrUserNotFound
	}
	if bal < bet.Stake {
		return 0, model.ErrInsufficientBalance
	}
	s.balances[bet.UserID] = bal - bet.Stake
	cp := *bet
	s.bets[bet.ID] = &cp
	return s.balances[bet.UserID], nil
}

func (s *memStore) VoidBet(ctx context.Context, bet *model.Bet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.voided[bet.ID] {
		return s.balances[bet.UserID], nil
	}
	s.voided[bet.ID] = true
	s.balances[bet.UserID] += bet.Stake
	return s.balances[bet.UserID], nil
}

func (s *memStore) SettleRound(ctx context.Context, roundID int64, payouts []model.Payout) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSettle > 0 {
		s.failSettle--
		return false, errStoreDown
	}
	if s.settled[roundID] {
		return false, nil
	}
	s.settled[roundID] = true
	for _, p := range payouts {
		s.payouts = append(s.payouts, p)
		s.balances[p.UserID] += p.Amount
	}
	return true, nil
}

func (s *memStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		return 0, model.ErrUserNotFound
	}
	return bal, nil
}

func (s *memStore) LastSpins(ctx context.Context, n int) ([]model.Spin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Spin
	for id := int64(1); id <= s.nextID; id++ {
		if sp, ok := s.outcomes[id]; ok {
			out = append(out, sp)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *memStore) balance(userID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *memStore) roundsCreated() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

func (s *memStore) isErrored(roundID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errored[roundID]
}

func (s *memStore) isSettled(roundID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settled[roundID]
}

func (s *memStore) payoutsFor(roundID int64) []model.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payout
	for _, p := range s.payouts {
		if p.RoundID == roundID {
			out = append(out, p)
		}
	}
	return out
}

// memBroadcaster records published events in order.
type memBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Event  string
	UserID string // empty for broadcasts
	Data   any
}

func (b *memBroadcaster) Broadcast(event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Event: event, Data: data})
}

func (b *memBroadcaster) SendToUser(userID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Event: event, UserID: userID, Data: data})
}

func (b *memBroadcaster) all() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]recordedEvent, len(b.events))
	copy(out, b.events)
	return out
}

// ── Engine helpers ───────────────────────────────────

func testConfig() Config {
	return Config{
		Window:    80 * time.Millisecond,
		Cooldown:  40 * time.Millisecond,
		Tick:      20 * time.Millisecond,
		RetryBase: 2 * time.Millisecond,
		RetryMax:  3,
	}
}

// newTestEngine builds an engine over the in-memory fakes with a rigged
// wheel that always draws the given slot.
func newTestEngine(t *testing.T, store *memStore, slot int, cfg Config) (*Engine, *memBroadcaster) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	bc := &memBroadcaster{}
	e := NewEngine(cfg, store, bc, log)
	e.wheel.spin = func() int { return slot }
	return e, bc
}

func testUser(id string) *model.User {
	return &model.User{ID: id, Username: "user-" + id, AvatarURL: "/avatars/" + id + ".png"}
}

// openRound waits until the engine has a round open for betting.
func openRound(t *testing.T, e *Engine) int64 {
	t.Helper()
	require.Eventually(t, func() bool {
		return e.State().Phase == model.PhaseOpen
	}, time.Second, 2*time.Millisecond, "round should open")
	return e.State().RoundID
}
