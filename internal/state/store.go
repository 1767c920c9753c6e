package state

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrInsufficientFunds is returned by Debit when the wallet cannot cover
// the amount. The store is left untouched.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Snapshot is a read-only deep copy of the store, safe to keep across
// mutations. Dirty, Seq, and LastSyncedVersion describe sync progress at
// the moment the snapshot was taken.
type Snapshot struct {
	Pet    Pet
	Wallet Wallet
	Quests []Quest

	Dirty             []Field
	Seq               uint64
	LastSyncedVersion int64
}

// Quest returns the snapshot's copy of a quest by ID.
func (s Snapshot) Quest(id string) (Quest, bool) {
	for _, q := range s.Quests {
		if q.ID == id {
			return q, true
		}
	}
	return Quest{}, false
}

// Store serializes every mutation of the session's pet, wallet, and quest
// data behind one mutex, tracks which fields are dirty (mutated locally
// but not yet confirmed persisted), and notifies listeners after each
// change. Only snapshots ever leave the store.
type Store struct {
	mu                sync.Mutex
	data              Data
	seq               uint64            // bumped on every local mutation
	dirty             map[Field]uint64  // field -> seq of last local write
	lastSyncedVersion int64

	listenerMu   sync.Mutex
	listeners    map[int]func(Snapshot)
	nextListener int
}

// New creates a store around an initial data snapshot, normally the result
// of a remote fetch at session start.
func New(data Data, syncedVersion int64) *Store {
	return &Store{
		data:              data.Clone(),
		dirty:             make(map[Field]uint64),
		lastSyncedVersion: syncedVersion,
		listeners:         make(map[int]func(Snapshot)),
	}
}

// Snapshot returns a read-only copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	d := s.data.Clone()
	snap := Snapshot{
		Pet:               d.Pet,
		Wallet:            d.Wallet,
		Quests:            d.Quests,
		Seq:               s.seq,
		LastSyncedVersion: s.lastSyncedVersion,
	}
	for f := range s.dirty {
		snap.Dirty = append(snap.Dirty, f)
	}
	return snap
}

// Mutate applies fn to a copy of the data. If fn returns an error the
// store is untouched and the error is returned unchanged; otherwise the
// copy is committed, changed fields are marked dirty, LastUpdated is
// advanced, and listeners are notified. fn must not retain the *Data.
func (s *Store) Mutate(fn func(d *Data) error) error {
	s.mu.Lock()
	next := s.data.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}

	changed := DiffFields(&s.data, &next)
	next.Pet.Stats.LastUpdated = time.Now().UTC()
	s.data = next
	if len(changed) > 0 {
		s.seq++
		for _, f := range changed {
			s.dirty[f] = s.seq
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// MarkSynced records that the fields captured at snapshot seq upToSeq were
// accepted by the remote store as version. Fields re-dirtied by a later
// mutation stay dirty.
func (s *Store) MarkSynced(version int64, fields []Field, upToSeq uint64) {
	s.mu.Lock()
	for _, f := range fields {
		if at, ok := s.dirty[f]; ok && at <= upToSeq {
			delete(s.dirty, f)
		}
	}
	if version > s.lastSyncedVersion {
		s.lastSyncedVersion = version
	}
	s.mu.Unlock()
}

// ApplyRemote merges an incoming remote change into the store.
//
// A version at or below the last synced version is a stale echo of our own
// write and is discarded. Otherwise, fields without local dirty state take
// the remote value; locally-dirty fields keep the local value and are
// returned as conflicted so the coordinator can re-push them (the user's
// most recent in-session intent wins a contested field).
func (s *Store) ApplyRemote(fields map[Field]json.RawMessage, version int64) (applied, conflicted []Field, err error) {
	s.mu.Lock()
	if version <= s.lastSyncedVersion {
		s.mu.Unlock()
		return nil, nil, nil
	}

	next := s.data.Clone()
	for f, raw := range fields {
		if _, isDirty := s.dirty[f]; isDirty {
			conflicted = append(conflicted, f)
			continue
		}
		if err := setField(&next, f, raw); err != nil {
			s.mu.Unlock()
			return nil, nil, err
		}
		applied = append(applied, f)
	}

	next.Pet.Stats.LastUpdated = time.Now().UTC()
	s.data = next
	s.lastSyncedVersion = version
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return applied, conflicted, nil
}

// ApplySnapshot reconciles a full remote snapshot (session start or
// re-fetch after a rejected push or subscription loss) using the same
// field-level rule as ApplyRemote: dirty fields keep their local value.
// Returns the fields still dirty, which need a re-push.
func (s *Store) ApplySnapshot(remote Data, version int64) []Field {
	s.mu.Lock()
	next := remote.Clone()
	var conflicted []Field
	for f := range s.dirty {
		raw, err := json.Marshal(fieldValue(&s.data, f))
		if err == nil {
			_ = setField(&next, f, raw)
		}
		conflicted = append(conflicted, f)
	}
	next.Pet.Stats.LastUpdated = time.Now().UTC()
	s.data = next
	if version > s.lastSyncedVersion {
		s.lastSyncedVersion = version
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return conflicted
}

// Credit adds coins to the wallet. Every credit carries a reason for the
// interaction log.
func (s *Store) Credit(amount int64, reason string) error {
	if amount < 0 {
		return errors.New("credit amount must be non-negative")
	}
	err := s.Mutate(func(d *Data) error {
		d.Wallet.Coins += amount
		return nil
	})
	if err == nil {
		slog.Debug("state: wallet credit", "amount", amount, "reason", reason)
	}
	return err
}

// Debit removes coins from the wallet, failing with ErrInsufficientFunds
// (and no mutation) if the balance cannot cover it.
func (s *Store) Debit(amount int64, reason string) error {
	if amount < 0 {
		return errors.New("debit amount must be non-negative")
	}
	err := s.Mutate(func(d *Data) error {
		if d.Wallet.Coins < amount {
			return ErrInsufficientFunds
		}
		d.Wallet.Coins -= amount
		return nil
	})
	if err == nil {
		slog.Debug("state: wallet debit", "amount", amount, "reason", reason)
	}
	return err
}

// Subscribe registers a listener called with a fresh snapshot after every
// change. The returned function removes the listener. Listeners run on
// the mutating goroutine and must not call back into Mutate.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.listenerMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		delete(s.listeners, id)
		s.listenerMu.Unlock()
	}
}

func (s *Store) notify(snap Snapshot) {
	s.listenerMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenerMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
