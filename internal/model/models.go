package model

import "time"

// ── Enums ────────────────────────────────────────────

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Phase is the lifecycle stage of a round.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseOpen     Phase = "OPEN"
	PhaseLocked   Phase = "LOCKED"
	PhaseResolved Phase = "RESOLVED"
	PhaseSettling Phase = "SETTLING"
	PhaseCooldown Phase = "COOLDOWN"
)

// Color is a wagering bucket on the wheel. Green holds a single slot,
// red and black hold seven each.
type Color string

const (
	ColorGreen Color = "green"
	ColorRed   Color = "red"
	ColorBlack Color = "black"
)

// Colors in display order.
var Colors = []Color{ColorRed, ColorGreen, ColorBlack}

func (c Color) Valid() bool {
	return c == ColorGreen || c == ColorRed || c == ColorBlack
}

// Multiplier is the payout factor applied to a winning stake.
func (c Color) Multiplier() int64 {
	if c == ColorGreen {
		return 14
	}
	return 2
}

// ── Wheel layout ─────────────────────────────────────

// NumSlots is the size of the discrete outcome space. Slot 0 is green,
// slots 1-7 are red, slots 8-14 are black.
const NumSlots = 15

func ColorForSlot(slot int) Color {
	switch {
	case slot == 0:
		return ColorGreen
	case slot >= 1 && slot <= 7:
		return ColorRed
	default:
		return ColorBlack
	}
}

// ── Domain Objects ───────────────────────────────────

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	AvatarURL    string     `json:"avatar_url"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Balance      int64      `json:"balance"`
	LastClaim    *time.Time `json:"last_daily_claim,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Round struct {
	ID       int64     `json:"id"`
	GameID   int       `json:"game_id"`
	Phase    Phase     `json:"phase"`
	OpenedAt time.Time `json:"opened_at"`
	ClosesAt time.Time `json:"closes_at"`
	Slot     *int      `json:"win_number,omitempty"`
	Color    *Color    `json:"win_color,omitempty"`
	Settled  bool      `json:"settled"`
	Errored  bool      `json:"errored"`
}

type Bet struct {
	ID       string    `json:"id"`
	RoundID  int64     `json:"round_id"`
	UserID   string    `json:"user_id"`
	Color    Color     `json:"color"`
	Stake    int64     `json:"stake"`
	PlacedAt time.Time `json:"placed_at"`
}

type Payout struct {
	RoundID int64  `json:"round_id"`
	UserID  string `json:"user_id"`
	Amount  int64  `json:"amount"`
}

// Spin is one historical resolved outcome.
type Spin struct {
	RoundID int64 `json:"round_id"`
	Slot    int   `json:"win_number"`
	Color   Color `json:"win_color"`
}

// ── Broadcast payloads ───────────────────────────────

type RoundStart struct {
	RoundID  int64 `json:"round_id"`
	Duration int   `json:"duration"` // seconds
}

type TimeUpdate struct {
	Remaining   int  `json:"remaining"` // seconds
	IsResolving bool `json:"is_resolving"`
}

type RoundEnd struct {
	Slot  int   `json:"win_number"`
	Color Color `json:"win_color"`
}

// BetEntry is one user's aggregated stake on a color, as shown to clients.
type BetEntry struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Amount   int64  `json:"amount"`
}

type ColorBook struct {
	Total int64      `json:"total"`
	Bets  []BetEntry `json:"bets"`
}

type BetsUpdate struct {
	Colors map[Color]ColorBook `json:"colors"`
}

type BetResult struct {
	UserID  string `json:"user_id"`
	Success bool   `json:"success"`
	Amount  int64  `json:"amount,omitempty"`
	Color   Color  `json:"color,omitempty"`
	Error   string `json:"error,omitempty"`
}

type BalanceUpdate struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}

type PreviousSpins struct {
	Spins []Spin `json:"spins"`
}

// ── API Types ────────────────────────────────────────

type PlaceBetReq struct {
	RoundID int64 `json:"round_id,omitempty"` // 0 = current round
	Color   Color `json:"color"`
	Amount  int64 `json:"amount"`
}

type PlaceBetResult struct {
	BetID      string `json:"bet_id"`
	RoundID    int64  `json:"round_id"`
	Color      Color  `json:"color"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
}

// GameState is the snapshot served to (re)connecting clients.
type GameState struct {
	RoundID   int64               `json:"round_id"`
	Phase     Phase               `json:"phase"`
	Remaining int                 `json:"remaining"`
	Colors    map[Color]ColorBook `json:"colors"`
}
