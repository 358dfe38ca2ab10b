package game

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/raycs13/RealCasino/internal/model"
)

// Outcome is one drawn wheel result.
type Outcome struct {
	Slot  int
	Color model.Color
}

// resolvedHistory caps how many past outcomes the wheel remembers, and
// with it the window in which a replayed Resolve is detected. A replay for
// a round older than the cap draws fresh instead of failing; the engine
// only ever replays the current round, and the store's settled flag stops
// any credit from a draw this far in the past.
const resolvedHistory = 32

// Wheel draws one outcome per round from 15 equiprobable slots. Each slot
// has probability 1/15; the color probabilities are uneven because green
// owns a single slot while red and black own seven each.
//
// Resolve is exactly-once per round id: a repeat call returns the original
// outcome unchanged together with model.ErrAlreadyResolved.
type Wheel struct {
	mu      sync.Mutex
	spin    func() int
	results map[int64]Outcome
	order   []int64
}

func NewWheel() *Wheel {
	return &Wheel{
		spin:    func() int { return rand.Intn(model.NumSlots) },
		results: make(map[int64]Outcome),
	}
}

func (w *Wheel) Resolve(roundID int64) (Outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if out, ok := w.results[roundID]; ok {
		return out, model.ErrAlreadyResolved
	}

	slot := w.spin()
	if slot < 0 || slot >= model.NumSlots {
		return Outcome{}, fmt.Errorf("wheel drew slot %d outside [0,%d)", slot, model.NumSlots)
	}
	out := Outcome{Slot: slot, Color: model.ColorForSlot(slot)}

	w.results[roundID] = out
	w.order = append(w.order, roundID)
	if len(w.order) > resolvedHistory {
		delete(w.results, w.order[0])
		w.order = w.order[1:]
	}
	return out, nil
}
