// Package session wires the engine together for one owner: store, decay
// clock, action processor, quest ledger, sync coordinator, and alert
// emitter, with an explicit start/teardown lifecycle. The UI layer talks
// only to this surface.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pwillett/critter/internal/action"
	"github.com/pwillett/critter/internal/advisor"
	"github.com/pwillett/critter/internal/clock"
	"github.com/pwillett/critter/internal/notify"
	"github.com/pwillett/critter/internal/quest"
	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
	"github.com/pwillett/critter/internal/syncer"
)

// Options tunes a session. Zero values pick sensible defaults.
type Options struct {
	TickInterval   time.Duration
	Sync           syncer.Config
	NotifyCooldown time.Duration
	Advisor        *advisor.Advisor // nil disables care tips
	Sinks          []notify.Sink    // empty disables alerts
}

// Session owns the engine for one owner from start to teardown.
type Session struct {
	ownerID string

	store     *state.Store
	ledger    *quest.Ledger
	processor *action.Processor
	clock     *clock.StatClock
	coord     *syncer.Coordinator
	emitter   *notify.Emitter

	cancel context.CancelFunc
}

// Start pulls the owner's authoritative snapshot and brings the engine
// up around it. A session cannot start without an initial snapshot;
// once running it stays usable through any outage.
func Start(ctx context.Context, rs remote.Store, ownerID string, opts Options) (*Session, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Second
	}
	if opts.NotifyCooldown <= 0 {
		opts.NotifyCooldown = 30 * time.Minute
	}

	env, err := rs.FetchPetState(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetch initial state: %w", err)
	}
	if env.State == nil {
		return nil, fmt.Errorf("remote returned no state for owner %s", ownerID)
	}

	store := state.New(*env.State, env.Version)
	ledger := quest.NewLedger(store)

	s := &Session{
		ownerID:   ownerID,
		store:     store,
		ledger:    ledger,
		processor: action.NewProcessor(store, ledger, rs),
		clock:     clock.New(store, opts.TickInterval),
		coord:     syncer.New(store, rs, ownerID, opts.Sync),
	}

	if len(opts.Sinks) > 0 {
		s.emitter = notify.New(store, opts.Advisor, opts.NotifyCooldown, opts.Sinks...)
		s.coord.OnStatus(s.emitter.SaveStatusChanged)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if s.emitter != nil {
		s.emitter.Start()
	}
	s.clock.Start(runCtx)
	s.coord.Start(runCtx)

	slog.Info("session: started", "owner", ownerID,
		"pet", env.State.Pet.Name, "version", env.Version)
	return s, nil
}

// Snapshot returns the current read-only state.
func (s *Session) Snapshot() state.Snapshot {
	return s.store.Snapshot()
}

// SubscribeLocal registers a listener for local state changes. Returns
// an unsubscribe function.
func (s *Session) SubscribeLocal(fn func(state.Snapshot)) func() {
	return s.store.Subscribe(fn)
}

// Perform applies a care action, debiting costCoins.
func (s *Session) Perform(ctx context.Context, act statmath.Action, costCoins int64) (statmath.StatBlock, error) {
	return s.processor.Perform(ctx, act, costCoins)
}

// Claim converts a completed quest into its reward, exactly once.
func (s *Session) Claim(questID string) (state.QuestReward, error) {
	return s.ledger.Claim(questID)
}

// SaveStatus reports the sync indicator for the UI.
func (s *Session) SaveStatus() syncer.Status {
	return s.coord.Status()
}

// Close tears the session down: the clock and the subscription listener
// stop immediately so nothing acts on a dying store, while a push already
// in flight is allowed to finish in the background.
func (s *Session) Close() {
	s.clock.Stop()
	if s.emitter != nil {
		s.emitter.Stop()
	}
	s.coord.Close()
	s.cancel()
	slog.Info("session: closed", "owner", s.ownerID)
}
