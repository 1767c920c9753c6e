// Package action validates and applies user-initiated care actions:
// affordability, stat effects, quest progress, and the analytics trail.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pwillett/critter/internal/quest"
	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
)

// ErrInvalidAction is returned for an unknown action identifier or a
// negative cost. The store is not touched.
var ErrInvalidAction = errors.New("invalid action")

// ErrInsufficientFunds is returned when the wallet cannot cover the
// action's cost. The store is not touched.
var ErrInsufficientFunds = state.ErrInsufficientFunds

// XP granted for any successful care action.
const actionXP = 5

// Processor applies care actions to the session store. The wallet debit
// and the stat mutation commit in one store mutation: both land or
// neither does.
type Processor struct {
	store  *state.Store
	ledger *quest.Ledger
	remote remote.Store
}

// NewProcessor wires a processor to the session store, the quest ledger,
// and the analytics sink.
func NewProcessor(store *state.Store, ledger *quest.Ledger, rs remote.Store) *Processor {
	return &Processor{store: store, ledger: ledger, remote: rs}
}

// Perform validates and applies one care action, debiting costCoins from
// the wallet. On success it returns the resulting stats; on any error the
// store snapshot is identical to before the call.
func (p *Processor) Perform(ctx context.Context, act statmath.Action, costCoins int64) (statmath.StatBlock, error) {
	if !act.IsValid() {
		return statmath.StatBlock{}, fmt.Errorf("%w: %q", ErrInvalidAction, act)
	}
	if costCoins < 0 {
		return statmath.StatBlock{}, fmt.Errorf("%w: negative cost %d", ErrInvalidAction, costCoins)
	}

	var (
		after  statmath.StatBlock
		deltas map[string]float64
	)
	err := p.store.Mutate(func(d *state.Data) error {
		if costCoins > 0 && d.Wallet.Coins < costCoins {
			return ErrInsufficientFunds
		}
		d.Wallet.Coins -= costCoins

		before := d.Pet.Stats
		d.Pet.Stats = statmath.ApplyAction(before, act)
		d.Pet.XP += actionXP
		d.Pet.Level = quest.LevelForXP(d.Pet.XP)

		after = d.Pet.Stats
		deltas = statDeltas(before, after)
		return nil
	})
	if err != nil {
		return statmath.StatBlock{}, err
	}

	// Quest counters advance as part of the same interaction event.
	if _, err := p.ledger.MarkProgress(act); err != nil {
		slog.Error("action: quest progress failed", "action", act, "err", err)
	}

	snap := p.store.Snapshot()
	rec := remote.InteractionRecord{
		ID:        uuid.NewString(),
		OwnerID:   snap.Pet.OwnerID,
		Action:    string(act),
		Deltas:    deltas,
		Timestamp: time.Now().UTC(),
	}
	go p.logInteraction(rec)

	slog.Info("action: performed", "action", act, "cost", costCoins, "mood", after.Mood)
	return after, nil
}

// logInteraction ships the analytics record. Fire and forget: a failed
// log must never fail the action that produced it.
func (p *Processor) logInteraction(rec remote.InteractionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.remote.LogInteraction(ctx, rec); err != nil {
		slog.Debug("action: interaction log dropped", "action", rec.Action, "err", err)
	}
}

func statDeltas(before, after statmath.StatBlock) map[string]float64 {
	deltas := make(map[string]float64)
	add := func(name string, b, a float64) {
		if a != b {
			deltas[name] = a - b
		}
	}
	add("health", before.Health, after.Health)
	add("hunger", before.Hunger, after.Hunger)
	add("happiness", before.Happiness, after.Happiness)
	add("cleanliness", before.Cleanliness, after.Cleanliness)
	add("energy", before.Energy, after.Energy)
	return deltas
}
