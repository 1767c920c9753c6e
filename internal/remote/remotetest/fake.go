// Package remotetest provides an in-memory remote store for tests.
package remotetest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/state"
)

// Fake is an in-memory remote.Store. Behavior hooks let tests inject
// failures; PushChange lets tests play the role of another session.
type Fake struct {
	mu      sync.Mutex
	data    state.Data
	version int64

	pushes   []*remote.Envelope
	logs     []remote.InteractionRecord
	onChange func(*remote.Envelope)
	onDrop   func(error)

	// Hooks. When nil, the default in-memory behavior runs.
	PushErr      error // returned by PushPetState before anything else
	FetchErr     error
	LogErr       error
	RejectPushes bool // respond accepted=false with the current version
}

// New creates a fake seeded with data at version.
func New(data state.Data, version int64) *Fake {
	return &Fake{data: data.Clone(), version: version}
}

func (f *Fake) FetchPetState(ctx context.Context, ownerID string) (*remote.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	data := f.data.Clone()
	return &remote.Envelope{
		OwnerID: ownerID,
		PetID:   data.Pet.ID,
		Version: f.version,
		State:   &data,
	}, nil
}

func (f *Fake) PushPetState(ctx context.Context, env *remote.Envelope) (*remote.PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PushErr != nil {
		return nil, f.PushErr
	}
	f.pushes = append(f.pushes, env)
	if f.RejectPushes || env.Version != f.version {
		return &remote.PushResult{Accepted: false, CurrentVersion: f.version}, nil
	}
	if err := state.ApplyFields(&f.data, env.Fields); err != nil {
		return nil, err
	}
	f.version++
	return &remote.PushResult{Accepted: true, CurrentVersion: f.version}, nil
}

func (f *Fake) Subscribe(ctx context.Context, ownerID string, onChange func(*remote.Envelope), onDrop func(error)) (func(), error) {
	f.mu.Lock()
	f.onChange = onChange
	f.onDrop = onDrop
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.onChange = nil
		f.onDrop = nil
		f.mu.Unlock()
	}, nil
}

func (f *Fake) CreditWallet(ctx context.Context, ownerID string, amount int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data.Wallet.Coins += amount
	f.version++
	return nil
}

func (f *Fake) DebitWallet(ctx context.Context, ownerID string, amount int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data.Wallet.Coins < amount {
		return fmt.Errorf("insufficient funds")
	}
	f.data.Wallet.Coins -= amount
	f.version++
	return nil
}

func (f *Fake) LogInteraction(ctx context.Context, rec remote.InteractionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LogErr != nil {
		return f.LogErr
	}
	f.logs = append(f.logs, rec)
	return nil
}

// PushChange delivers a change notification to the subscriber, as if a
// concurrent session or server-side job had written. Fields are applied
// to the fake's own copy and the version advances.
func (f *Fake) PushChange(fields map[state.Field]json.RawMessage) int64 {
	f.mu.Lock()
	_ = state.ApplyFields(&f.data, fields)
	f.version++
	env := &remote.Envelope{
		OwnerID: f.data.Pet.OwnerID,
		PetID:   f.data.Pet.ID,
		Version: f.version,
		Fields:  fields,
	}
	onChange := f.onChange
	f.mu.Unlock()

	if onChange != nil {
		onChange(env)
	}
	return env.Version
}

// DropSubscription simulates the notification channel failing.
func (f *Fake) DropSubscription(err error) {
	f.mu.Lock()
	onDrop := f.onDrop
	f.onDrop = nil
	f.onChange = nil
	f.mu.Unlock()
	if onDrop != nil {
		onDrop(err)
	}
}

// Pushes returns every envelope pushed so far.
func (f *Fake) Pushes() []*remote.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*remote.Envelope(nil), f.pushes...)
}

// Logs returns every interaction record received.
func (f *Fake) Logs() []remote.InteractionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.InteractionRecord(nil), f.logs...)
}

// Version returns the fake's current version.
func (f *Fake) Version() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// Data returns a copy of the fake's authoritative data.
func (f *Fake) Data() state.Data {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data.Clone()
}
