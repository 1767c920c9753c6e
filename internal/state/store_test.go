package state

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/pwillett/critter/internal/statmath"
)

func testData() Data {
	return Data{
		Pet:    NewPet("owner-1", "pet-1", "Scout", "gecko"),
		Wallet: Wallet{Coins: 100},
		Quests: []Quest{{
			ID:           "q1",
			Type:         QuestDaily,
			Title:        "Three square meals",
			TargetAction: statmath.ActionFeed,
			Goal:         3,
			Status:       QuestActive,
			Reward:       QuestReward{Coins: 30, XP: 25},
		}},
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestMutateMarksChangedFieldsDirty(t *testing.T) {
	s := New(testData(), 1)

	err := s.Mutate(func(d *Data) error {
		d.Pet.Stats.Happiness = 95
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if !reflect.DeepEqual(snap.Dirty, []Field{FieldHappiness}) {
		t.Fatalf("dirty = %v, want [happiness]", snap.Dirty)
	}
	if snap.Pet.Stats.Happiness != 95 {
		t.Fatalf("happiness = %v", snap.Pet.Stats.Happiness)
	}
}

func TestMutateErrorLeavesStoreUntouched(t *testing.T) {
	s := New(testData(), 1)
	before := s.Snapshot()

	sentinel := errors.New("nope")
	err := s.Mutate(func(d *Data) error {
		d.Wallet.Coins = 0
		d.Pet.Stats.Energy = 0
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v", err)
	}

	after := s.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed despite mutation error:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := New(testData(), 1)
	snap := s.Snapshot()
	snap.Quests[0].Status = QuestClaimed
	snap.Pet.Stats.Energy = 0

	if got := s.Snapshot(); got.Quests[0].Status != QuestActive {
		t.Fatal("mutating a snapshot leaked into the store")
	}
}

func TestMarkSyncedClearsOnlyFieldsUpToSeq(t *testing.T) {
	s := New(testData(), 1)

	_ = s.Mutate(func(d *Data) error { d.Pet.Stats.Happiness = 95; return nil })
	pushSnap := s.Snapshot()

	// A later mutation re-dirties happiness while the push is in flight.
	_ = s.Mutate(func(d *Data) error { d.Pet.Stats.Happiness = 99; return nil })

	s.MarkSynced(2, pushSnap.Dirty, pushSnap.Seq)

	snap := s.Snapshot()
	if len(snap.Dirty) != 1 || snap.Dirty[0] != FieldHappiness {
		t.Fatalf("re-dirtied field should stay dirty, got %v", snap.Dirty)
	}
	if snap.LastSyncedVersion != 2 {
		t.Fatalf("lastSyncedVersion = %d, want 2", snap.LastSyncedVersion)
	}
}

func TestApplyRemoteDiscardsStaleEcho(t *testing.T) {
	s := New(testData(), 5)

	applied, conflicted, err := s.ApplyRemote(map[Field]json.RawMessage{
		FieldHunger: raw(t, 1.0),
	}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if applied != nil || conflicted != nil {
		t.Fatalf("stale envelope should be discarded, got applied=%v conflicted=%v", applied, conflicted)
	}
	if got := s.Snapshot().Pet.Stats.Hunger; got == 1.0 {
		t.Fatal("stale envelope mutated the store")
	}
}

func TestApplyRemoteLocalDirtyWinsContestedField(t *testing.T) {
	s := New(testData(), 1)

	// Local unsynced change to happiness.
	_ = s.Mutate(func(d *Data) error { d.Pet.Stats.Happiness = 95; return nil })

	// Remote envelope, newer version, touching hunger and happiness.
	applied, conflicted, err := s.ApplyRemote(map[Field]json.RawMessage{
		FieldHunger:    raw(t, 33.0),
		FieldHappiness: raw(t, 10.0),
	}, 2)
	if err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.Pet.Stats.Hunger != 33 {
		t.Fatalf("remote hunger not applied: %v", snap.Pet.Stats.Hunger)
	}
	if snap.Pet.Stats.Happiness != 95 {
		t.Fatalf("local dirty happiness lost: %v", snap.Pet.Stats.Happiness)
	}
	if !reflect.DeepEqual(applied, []Field{FieldHunger}) {
		t.Fatalf("applied = %v", applied)
	}
	if !reflect.DeepEqual(conflicted, []Field{FieldHappiness}) {
		t.Fatalf("conflicted = %v", conflicted)
	}
	if snap.LastSyncedVersion != 2 {
		t.Fatalf("lastSyncedVersion = %d, want 2", snap.LastSyncedVersion)
	}
}

func TestApplySnapshotPreservesDirtyFields(t *testing.T) {
	s := New(testData(), 1)
	_ = s.Mutate(func(d *Data) error { d.Wallet.Coins = 42; return nil })

	remote := testData()
	remote.Wallet.Coins = 500
	remote.Pet.Stats.Hunger = 15

	dirty := s.ApplySnapshot(remote, 7)

	snap := s.Snapshot()
	if snap.Wallet.Coins != 42 {
		t.Fatalf("dirty coins overwritten: %d", snap.Wallet.Coins)
	}
	if snap.Pet.Stats.Hunger != 15 {
		t.Fatalf("remote hunger not applied: %v", snap.Pet.Stats.Hunger)
	}
	if !reflect.DeepEqual(dirty, []Field{FieldCoins}) {
		t.Fatalf("dirty = %v", dirty)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	s := New(testData(), 1)

	err := s.Debit(1000, "test")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := s.Snapshot().Wallet.Coins; got != 100 {
		t.Fatalf("coins = %d, want 100", got)
	}

	if err := s.Debit(30, "test"); err != nil {
		t.Fatal(err)
	}
	if got := s.Snapshot().Wallet.Coins; got != 70 {
		t.Fatalf("coins = %d, want 70", got)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := New(testData(), 1)

	var calls int
	unsub := s.Subscribe(func(Snapshot) { calls++ })

	_ = s.Mutate(func(d *Data) error { d.Pet.Stats.Energy = 10; return nil })
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}

	unsub()
	_ = s.Mutate(func(d *Data) error { d.Pet.Stats.Energy = 20; return nil })
	if calls != 1 {
		t.Fatalf("listener called after unsubscribe: %d", calls)
	}
}
