package game

import "github.com/raycs13/RealCasino/internal/model"

// Payouts computes one payout per winning user for a resolved round:
// stake times the winning color's multiplier. The stacking rule normally
// leaves a single entry per user on a color, but entries are merged by user
// anyway in case the ledger ever holds more than one. Order follows first
// appearance in the book, so settlement output is deterministic.
func Payouts(roundID int64, winners []model.BetEntry, color model.Color) []model.Payout {
	mult := color.Multiplier()
	amounts := make(map[string]int64, len(winners))
	var order []string
	for _, w := range winners {
		if _, ok := amounts[w.UserID]; !ok {
			order = append(order, w.UserID)
		}
		amounts[w.UserID] += w.Amount * mult
	}

	out := make([]model.Payout, 0, len(order))
	for _, uid := range order {
		out = append(out, model.Payout{RoundID: roundID, UserID: uid, Amount: amounts[uid]})
	}
	return out
}
