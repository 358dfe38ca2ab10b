package game

import "github.com/raycs13/RealCasino/internal/model"

// Ledger is the in-memory book of the current round's bets, reset at every
// round open. It keeps per-color totals and an ordered list of per-user
// contributions. The Ledger is not safe for concurrent use on its own: it
// is owned by the Engine and every access happens under the engine mutex,
// so phase reads and ledger mutations stay linearizable.
type Ledger struct {
	roundID int64
	totals  map[model.Color]int64
	entries map[model.Color][]*model.BetEntry
}

func NewLedger() *Ledger {
	l := &Ledger{}
	l.Reset(0)
	return l
}

// Reset discards all recorded bets and binds the ledger to a new round.
func (l *Ledger) Reset(roundID int64) {
	l.roundID = roundID
	l.totals = make(map[model.Color]int64, len(model.Colors))
	l.entries = make(map[model.Color][]*model.BetEntry, len(model.Colors))
}

func (l *Ledger) RoundID() int64 { return l.roundID }

// Record adds a bet to the book. A second bet by the same user on the same
// color stacks onto the existing entry; a bet on a different color gets its
// own entry.
func (l *Ledger) Record(bet *model.Bet, username, avatar string) {
	l.totals[bet.Color] += bet.Stake
	for _, e := range l.entries[bet.Color] {
		if e.UserID == bet.UserID {
			e.Amount += bet.Stake
			return
		}
	}
	l.entries[bet.Color] = append(l.entries[bet.Color], &model.BetEntry{
		UserID:   bet.UserID,
		Username: username,
		Avatar:   avatar,
		Amount:   bet.Stake,
	})
}

// Winners returns a copy of the entries recorded on the given color.
func (l *Ledger) Winners(c model.Color) []model.BetEntry {
	out := make([]model.BetEntry, 0, len(l.entries[c]))
	for _, e := range l.entries[c] {
		out = append(out, *e)
	}
	return out
}

func (l *Ledger) Total(c model.Color) int64 { return l.totals[c] }

// Snapshot returns a deep copy of the full book, one ColorBook per color,
// including empty colors so clients always see all three buckets.
func (l *Ledger) Snapshot() model.BetsUpdate {
	colors := make(map[model.Color]model.ColorBook, len(model.Colors))
	for _, c := range model.Colors {
		book := model.ColorBook{Total: l.totals[c], Bets: make([]model.BetEntry, 0, len(l.entries[c]))}
		for _, e := range l.entries[c] {
			book.Bets = append(book.Bets, *e)
		}
		colors[c] = book
	}
	return model.BetsUpdate{Colors: colors}
}
