// Package quest tracks quest progress and guards the one reward grant a
// completed quest is allowed. Quest data lives in the session store; this
// package owns the transition rules.
package quest

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
)

var (
	// ErrUnknownQuest is returned for a quest ID the ledger has never seen.
	ErrUnknownQuest = errors.New("unknown quest")

	// ErrNotCompleted is returned when claiming a quest still in progress.
	ErrNotCompleted = errors.New("quest not completed")

	// ErrAlreadyClaimed is the idempotency guard: a second claim (a retried
	// request, a double tap) must not grant the reward again.
	ErrAlreadyClaimed = errors.New("quest already claimed")
)

// Ledger applies quest progress and claims against the session store.
// Quests move strictly forward: active → completed → claimed.
type Ledger struct {
	store *state.Store
}

// NewLedger creates a ledger over the session store.
func NewLedger(store *state.Store) *Ledger {
	return &Ledger{store: store}
}

// Install adds quests whose IDs are not already present. Existing
// instances, including claimed ones, are left untouched.
func (l *Ledger) Install(quests []state.Quest) error {
	return l.store.Mutate(func(d *state.Data) error {
		present := make(map[string]bool, len(d.Quests))
		for _, q := range d.Quests {
			present[q.ID] = true
		}
		for _, q := range quests {
			if !present[q.ID] {
				d.Quests = append(d.Quests, q)
			}
		}
		return nil
	})
}

// ResetDaily drops all daily quests and installs a fresh set. Weekly and
// event quests are untouched.
func (l *Ledger) ResetDaily(fresh []state.Quest) error {
	return l.store.Mutate(func(d *state.Data) error {
		kept := d.Quests[:0]
		for _, q := range d.Quests {
			if q.Type != state.QuestDaily {
				kept = append(kept, q)
			}
		}
		d.Quests = append(kept, fresh...)
		return nil
	})
}

// MarkProgress advances every active quest counting the given action and
// flips those that reached their goal to completed. It runs as part of
// the same interaction event that changed the stats. Returns the quests
// newly completed by this call.
func (l *Ledger) MarkProgress(action statmath.Action) ([]state.Quest, error) {
	var completed []state.Quest
	err := l.store.Mutate(func(d *state.Data) error {
		completed = completed[:0]
		for i := range d.Quests {
			q := &d.Quests[i]
			if q.Status != state.QuestActive || q.TargetAction != action {
				continue
			}
			q.Progress++
			if q.Progress >= q.Goal {
				q.Progress = q.Goal
				q.Status = state.QuestCompleted
				completed = append(completed, *q)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, q := range completed {
		slog.Info("quest: completed", "quest", q.ID, "title", q.Title)
	}
	return completed, nil
}

// Claim converts a completed quest into its reward, exactly once. The
// status transition, the wallet credit, and the XP grant commit in one
// store mutation, so a retried claim can only ever see the claimed state.
func (l *Ledger) Claim(questID string) (state.QuestReward, error) {
	var reward state.QuestReward
	err := l.store.Mutate(func(d *state.Data) error {
		var q *state.Quest
		for i := range d.Quests {
			if d.Quests[i].ID == questID {
				q = &d.Quests[i]
				break
			}
		}
		if q == nil {
			return fmt.Errorf("%w: %s", ErrUnknownQuest, questID)
		}
		switch q.Status {
		case state.QuestClaimed:
			return ErrAlreadyClaimed
		case state.QuestActive:
			return ErrNotCompleted
		}

		q.Status = state.QuestClaimed
		reward = q.Reward
		d.Wallet.Coins += reward.Coins
		d.Pet.XP += reward.XP
		d.Pet.Level = LevelForXP(d.Pet.XP)
		return nil
	})
	if err != nil {
		return state.QuestReward{}, err
	}

	slog.Info("quest: claimed", "quest", questID, "coins", reward.Coins, "xp", reward.XP)
	return reward, nil
}

// DefaultDailyQuests builds the stock daily quest set.
func DefaultDailyQuests() []state.Quest {
	return []state.Quest{
		{
			ID:           uuid.NewString(),
			Type:         state.QuestDaily,
			Title:        "Three square meals",
			TargetAction: statmath.ActionFeed,
			Goal:         3,
			Status:       state.QuestActive,
			Reward:       state.QuestReward{Coins: 30, XP: 25},
		},
		{
			ID:           uuid.NewString(),
			Type:         state.QuestDaily,
			Title:        "Playtime",
			TargetAction: statmath.ActionPlay,
			Goal:         2,
			Status:       state.QuestActive,
			Reward:       state.QuestReward{Coins: 20, XP: 20},
		},
		{
			ID:           uuid.NewString(),
			Type:         state.QuestDaily,
			Title:        "Squeaky clean",
			TargetAction: statmath.ActionBathe,
			Goal:         1,
			Status:       state.QuestActive,
			Reward:       state.QuestReward{Coins: 15, XP: 15},
		},
	}
}
