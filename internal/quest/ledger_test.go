package quest

import (
	"errors"
	"testing"

	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
)

func newStore(quests ...state.Quest) *state.Store {
	return state.New(state.Data{
		Pet:    state.NewPet("owner-1", "pet-1", "Scout", "gecko"),
		Wallet: state.Wallet{Coins: 100},
		Quests: quests,
	}, 1)
}

func feedQuest(goal int) state.Quest {
	return state.Quest{
		ID:           "q-feed",
		Type:         state.QuestDaily,
		Title:        "Three square meals",
		TargetAction: statmath.ActionFeed,
		Goal:         goal,
		Status:       state.QuestActive,
		Reward:       state.QuestReward{Coins: 30, XP: 25},
	}
}

func TestMarkProgressCompletesAtGoal(t *testing.T) {
	store := newStore(feedQuest(2))
	l := NewLedger(store)

	completed, err := l.MarkProgress(statmath.ActionFeed)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 0 {
		t.Fatalf("completed after one of two: %v", completed)
	}

	completed, err = l.MarkProgress(statmath.ActionFeed)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 1 || completed[0].ID != "q-feed" {
		t.Fatalf("completed = %v", completed)
	}

	q, _ := store.Snapshot().Quest("q-feed")
	if q.Status != state.QuestCompleted || q.Progress != 2 {
		t.Fatalf("quest = %+v", q)
	}
}

func TestMarkProgressIgnoresOtherActions(t *testing.T) {
	store := newStore(feedQuest(1))
	l := NewLedger(store)

	if _, err := l.MarkProgress(statmath.ActionPlay); err != nil {
		t.Fatal(err)
	}
	q, _ := store.Snapshot().Quest("q-feed")
	if q.Progress != 0 {
		t.Fatalf("progress = %d, want 0", q.Progress)
	}
}

func TestClaimGrantsRewardOnce(t *testing.T) {
	store := newStore(feedQuest(1))
	l := NewLedger(store)

	if _, err := l.MarkProgress(statmath.ActionFeed); err != nil {
		t.Fatal(err)
	}

	reward, err := l.Claim("q-feed")
	if err != nil {
		t.Fatal(err)
	}
	if reward.Coins != 30 || reward.XP != 25 {
		t.Fatalf("reward = %+v", reward)
	}

	snap := store.Snapshot()
	if snap.Wallet.Coins != 130 {
		t.Fatalf("coins = %d, want 130", snap.Wallet.Coins)
	}
	if snap.Pet.XP != 25 {
		t.Fatalf("xp = %d, want 25", snap.Pet.XP)
	}

	// A retried claim must not pay twice.
	if _, err := l.Claim("q-feed"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim err = %v, want ErrAlreadyClaimed", err)
	}
	if got := store.Snapshot().Wallet.Coins; got != 130 {
		t.Fatalf("coins after double claim = %d, want 130", got)
	}
}

func TestClaimBeforeCompletion(t *testing.T) {
	l := NewLedger(newStore(feedQuest(3)))
	if _, err := l.Claim("q-feed"); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("err = %v, want ErrNotCompleted", err)
	}
}

func TestClaimUnknownQuest(t *testing.T) {
	l := NewLedger(newStore())
	if _, err := l.Claim("nope"); !errors.Is(err, ErrUnknownQuest) {
		t.Fatalf("err = %v, want ErrUnknownQuest", err)
	}
}

func TestResetDailyKeepsWeeklies(t *testing.T) {
	weekly := state.Quest{
		ID:           "q-week",
		Type:         state.QuestWeekly,
		Title:        "Seven day streak",
		TargetAction: statmath.ActionFeed,
		Goal:         7,
		Status:       state.QuestActive,
	}
	store := newStore(feedQuest(3), weekly)
	l := NewLedger(store)

	fresh := DefaultDailyQuests()
	if err := l.ResetDaily(fresh); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	if _, ok := snap.Quest("q-feed"); ok {
		t.Fatal("stale daily survived the reset")
	}
	if _, ok := snap.Quest("q-week"); !ok {
		t.Fatal("weekly quest lost in the reset")
	}
	if len(snap.Quests) != 1+len(fresh) {
		t.Fatalf("quest count = %d", len(snap.Quests))
	}
}

func TestLevelForXP(t *testing.T) {
	cases := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{299, 2},
		{300, 3},
		{600, 4},
	}
	for _, tc := range cases {
		if got := LevelForXP(tc.xp); got != tc.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tc.xp, got, tc.want)
		}
	}
}
