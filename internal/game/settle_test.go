package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raycs13/RealCasino/internal/model"
)

func TestPayoutsMultipliers(t *testing.T) {
	winners := []model.BetEntry{{UserID: "u1", Amount: 50}}

	green := Payouts(1, winners, model.ColorGreen)
	require.Len(t, green, 1)
	assert.Equal(t, int64(700), green[0].Amount, "green pays x14")

	red := Payouts(1, winners, model.ColorRed)
	require.Len(t, red, 1)
	assert.Equal(t, int64(100), red[0].Amount, "red pays x2")
}

func TestPayoutsMergesByUser(t *testing.T) {
	// The stacking rule normally prevents duplicates, but settlement must
	// merge them anyway.
	winners := []model.BetEntry{
		{UserID: "u1", Amount: 30},
		{UserID: "u2", Amount: 10},
		{UserID: "u1", Amount: 20},
	}

	payouts := Payouts(5, winners, model.ColorBlack)
	require.Len(t, payouts, 2)
	assert.Equal(t, model.Payout{RoundID: 5, UserID: "u1", Amount: 100}, payouts[0])
	assert.Equal(t, model.Payout{RoundID: 5, UserID: "u2", Amount: 20}, payouts[1])
}

func TestPayoutsEmptyForNoWinners(t *testing.T) {
	assert.Empty(t, Payouts(1, nil, model.ColorRed))
}
