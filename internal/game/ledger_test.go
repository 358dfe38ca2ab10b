package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raycs13/RealCasino/internal/model"
)

func bet(user string, color model.Color, stake int64) *model.Bet {
	return &model.Bet{ID: user + "-" + string(color), RoundID: 1, UserID: user, Color: color, Stake: stake}
}

func TestLedgerStacking(t *testing.T) {
	l := NewLedger()
	l.Reset(1)

	l.Record(bet("u1", model.ColorRed, 50), "alice", "")
	l.Record(bet("u1", model.ColorRed, 30), "alice", "")

	require.Len(t, l.Winners(model.ColorRed), 1, "same user + same color must stack")
	assert.Equal(t, int64(80), l.Winners(model.ColorRed)[0].Amount)
	assert.Equal(t, int64(80), l.Total(model.ColorRed))
}

func TestLedgerSeparateColors(t *testing.T) {
	l := NewLedger()
	l.Reset(1)

	l.Record(bet("u1", model.ColorRed, 50), "alice", "")
	l.Record(bet("u1", model.ColorBlack, 20), "alice", "")

	assert.Len(t, l.Winners(model.ColorRed), 1)
	assert.Len(t, l.Winners(model.ColorBlack), 1)
	assert.Equal(t, int64(50), l.Total(model.ColorRed))
	assert.Equal(t, int64(20), l.Total(model.ColorBlack))
}

func TestLedgerTotalsMatchEntries(t *testing.T) {
	l := NewLedger()
	l.Reset(1)

	stakes := []int64{10, 25, 40, 5, 100}
	users := []string{"u1", "u2", "u3", "u1", "u2"}
	for i := range stakes {
		l.Record(bet(users[i], model.ColorBlack, stakes[i]), users[i], "")
	}

	var sum int64
	for _, e := range l.Winners(model.ColorBlack) {
		sum += e.Amount
	}
	assert.Equal(t, l.Total(model.ColorBlack), sum)
	assert.Equal(t, int64(180), sum)
}

func TestLedgerSnapshotIncludesAllColorsAndIsDetached(t *testing.T) {
	l := NewLedger()
	l.Reset(7)
	l.Record(bet("u1", model.ColorGreen, 15), "alice", "a.png")

	snap := l.Snapshot()
	require.Len(t, snap.Colors, 3, "empty colors still appear")
	assert.Equal(t, int64(15), snap.Colors[model.ColorGreen].Total)
	assert.Equal(t, "alice", snap.Colors[model.ColorGreen].Bets[0].Username)
	assert.Empty(t, snap.Colors[model.ColorRed].Bets)

	// Mutating the snapshot must not touch the book.
	snap.Colors[model.ColorGreen].Bets[0].Amount = 999
	assert.Equal(t, int64(15), l.Winners(model.ColorGreen)[0].Amount)
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger()
	l.Reset(1)
	l.Record(bet("u1", model.ColorRed, 50), "alice", "")

	l.Reset(2)
	assert.EqualValues(t, 2, l.RoundID())
	assert.Zero(t, l.Total(model.ColorRed))
	assert.Empty(t, l.Winners(model.ColorRed))
}
