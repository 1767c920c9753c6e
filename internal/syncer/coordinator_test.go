package syncer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/remote/remotetest"
	"github.com/pwillett/critter/internal/state"
)

func testData() state.Data {
	pet := state.NewPet("owner-1", "pet-1", "Scout", "gecko")
	return state.Data{Pet: pet, Wallet: state.Wallet{Coins: 100}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRapidMutationsCoalesceIntoOnePush(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	c := New(store, fake, "owner-1", Config{Debounce: 50 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Happiness = 95; return nil })
	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Energy = 60; return nil })

	waitFor(t, "push", func() bool { return len(fake.Pushes()) > 0 })
	waitFor(t, "dirty cleared", func() bool { return len(store.Snapshot().Dirty) == 0 })

	pushes := fake.Pushes()
	if len(pushes) != 1 {
		t.Fatalf("pushes = %d, want 1 coalesced push", len(pushes))
	}
	if len(pushes[0].Fields) != 2 {
		t.Fatalf("pushed fields = %v, want happiness and energy together", pushes[0].Fields)
	}
	if c.Status() != StatusSaved {
		t.Fatalf("status = %s, want saved", c.Status())
	}
	if fake.Data().Pet.Stats.Happiness != 95 {
		t.Fatal("remote never received the happiness change")
	}
}

func TestPushFailureKeepsDirtyState(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	fake.PushErr = remote.ErrNetworkUnavailable
	c := New(store, fake, "owner-1", Config{
		Debounce:   10 * time.Millisecond,
		MaxTries:   2,
		RetryAfter: time.Hour,
	})

	var statuses []Status
	c.OnStatus(func(s Status) { statuses = append(statuses, s) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Happiness = 95; return nil })

	waitFor(t, "error status", func() bool { return c.Status() == StatusError })
	if got := store.Snapshot().Dirty; len(got) != 1 {
		t.Fatalf("dirty = %v, want happiness retained", got)
	}

	// The connection comes back; the next mutation flushes everything.
	fake.PushErr = nil
	_ = store.Mutate(func(d *state.Data) error { d.Wallet.Coins = 90; return nil })

	waitFor(t, "recovery", func() bool { return c.Status() == StatusSaved })
	waitFor(t, "dirty cleared", func() bool { return len(store.Snapshot().Dirty) == 0 })

	if got := fake.Data(); got.Pet.Stats.Happiness != 95 || got.Wallet.Coins != 90 {
		t.Fatalf("remote state = %+v, missing recovered fields", got)
	}
	c.Close()

	sawSaving := false
	for _, s := range statuses {
		if s == StatusSaving {
			sawSaving = true
		}
	}
	if !sawSaving {
		t.Fatalf("statuses %v never showed saving", statuses)
	}
}

func TestRemoteChangeAppliedLocally(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	c := New(store, fake, "owner-1", Config{Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	fake.PushChange(map[state.Field]json.RawMessage{
		state.FieldCoins: json.RawMessage("250"),
	})

	waitFor(t, "remote coins", func() bool { return store.Snapshot().Wallet.Coins == 250 })
	if v := store.Snapshot().LastSyncedVersion; v != 2 {
		t.Fatalf("lastSyncedVersion = %d, want 2", v)
	}
}

func TestContestedFieldKeepsLocalValueAndRepushes(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	// Debounce long enough that the local change is still unpushed when
	// the remote change lands.
	c := New(store, fake, "owner-1", Config{Debounce: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Happiness = 95; return nil })

	fake.PushChange(map[state.Field]json.RawMessage{
		state.FieldHunger:    json.RawMessage("33"),
		state.FieldHappiness: json.RawMessage("10"),
	})

	waitFor(t, "remote hunger applied", func() bool {
		return store.Snapshot().Pet.Stats.Hunger == 33
	})
	if got := store.Snapshot().Pet.Stats.Happiness; got != 95 {
		t.Fatalf("happiness = %v, local unsynced value must win", got)
	}

	// The contested field is re-pushed once the debounce fires.
	waitFor(t, "re-push", func() bool { return fake.Data().Pet.Stats.Happiness == 95 })
	waitFor(t, "dirty cleared", func() bool { return len(store.Snapshot().Dirty) == 0 })
}

func TestRejectedPushReconcilesAndRetries(t *testing.T) {
	data := testData()
	store := state.New(data, 1) // believes version 1

	remoteData := testData()
	remoteData.Pet.Stats.Hunger = 40
	fake := remotetest.New(remoteData, 3) // authoritative moved on

	c := New(store, fake, "owner-1", Config{Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Happiness = 95; return nil })

	// First push carries version 1, gets rejected, triggers a snapshot
	// reconcile, then the dirty field goes out against version 3.
	waitFor(t, "accepted re-push", func() bool { return fake.Version() == 4 })
	waitFor(t, "dirty cleared", func() bool { return len(store.Snapshot().Dirty) == 0 })

	snap := store.Snapshot()
	if snap.Pet.Stats.Hunger != 40 {
		t.Fatalf("hunger = %v, want authoritative 40", snap.Pet.Stats.Hunger)
	}
	if snap.Pet.Stats.Happiness != 95 {
		t.Fatalf("happiness = %v, local change lost in reconcile", snap.Pet.Stats.Happiness)
	}
	if fake.Data().Pet.Stats.Happiness != 95 {
		t.Fatal("remote never received the reconciled happiness")
	}
}

func TestSubscriptionDropRefetchesOnReconnect(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	c := New(store, fake, "owner-1", Config{Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	fake.DropSubscription(remote.ErrSubscriptionLost)

	// While disconnected, another session changes the wallet. The
	// notification is lost; only the reconnect fetch can recover it.
	fake.PushChange(map[state.Field]json.RawMessage{
		state.FieldCoins: json.RawMessage("777"),
	})

	waitFor(t, "reconnect fetch", func() bool { return store.Snapshot().Wallet.Coins == 777 })
}

func TestCloseFlushesPendingDebounce(t *testing.T) {
	data := testData()
	store := state.New(data, 1)
	fake := remotetest.New(data, 1)
	c := New(store, fake, "owner-1", Config{Debounce: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	_ = store.Mutate(func(d *state.Data) error { d.Pet.Stats.Happiness = 95; return nil })
	c.Close()

	if len(fake.Pushes()) != 1 {
		t.Fatalf("pushes = %d, want the shutdown flush", len(fake.Pushes()))
	}
	if fake.Data().Pet.Stats.Happiness != 95 {
		t.Fatal("shutdown flush never reached the remote")
	}
}
