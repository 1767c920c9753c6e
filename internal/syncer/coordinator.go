// Package syncer keeps the session store and the remote store consistent:
// debounced, ordered pushes of local dirty state in one direction, and
// push-notification reconciliation in the other.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/state"
)

// Status is the save indicator surfaced to the UI layer.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// Config tunes the coordinator. Zero values pick the defaults.
type Config struct {
	// Debounce is the window in which rapid mutations coalesce into a
	// single push, so the decay clock cannot cause a request storm.
	Debounce time.Duration

	// MaxTries bounds the retry attempts for one push before the dirty
	// state is parked and the save indicator flips to error.
	MaxTries uint

	// RetryAfter is how long to wait before retrying a parked push when
	// no new mutation arrives to re-trigger it.
	RetryAfter time.Duration
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.MaxTries == 0 {
		c.MaxTries = 5
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 30 * time.Second
	}
}

// Coordinator is the only bridge between the session store and the remote
// store, in both directions. Pushes always carry the store's latest dirty
// snapshot, so coalescing can never reorder writes for a field.
type Coordinator struct {
	store   *state.Store
	remote  remote.Store
	ownerID string
	cfg     Config

	kick chan struct{}

	mu          sync.Mutex
	status      Status
	onStatus    func(Status)
	cancel      context.CancelFunc
	done        chan struct{}
	unsubStore  func()
	unsubRemote func()
	resubActive bool
}

// New creates a coordinator for one owner's session.
func New(store *state.Store, rs remote.Store, ownerID string, cfg Config) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		store:   store,
		remote:  rs,
		ownerID: ownerID,
		cfg:     cfg,
		kick:    make(chan struct{}, 1),
		status:  StatusIdle,
	}
}

// Start begins watching the store for dirty state and subscribes to the
// remote push-notification channel.
func (c *Coordinator) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done
	c.unsubStore = c.store.Subscribe(func(snap state.Snapshot) {
		if len(snap.Dirty) > 0 {
			c.requestPush()
		}
	})
	c.mu.Unlock()

	go c.run(runCtx, done)
	c.subscribe(runCtx)

	// Anything dirty before Start (an offline stretch) goes out now.
	if len(c.store.Snapshot().Dirty) > 0 {
		c.requestPush()
	}
}

// Close stops the subscription listener and the debounce loop. A push
// already in flight completes in the background; dirty state that never
// made it out stays in the store.
func (c *Coordinator) Close() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	unsubStore, unsubRemote := c.unsubStore, c.unsubRemote
	c.cancel, c.done, c.unsubStore, c.unsubRemote = nil, nil, nil, nil
	c.mu.Unlock()

	if unsubStore != nil {
		unsubStore()
	}
	if unsubRemote != nil {
		unsubRemote()
	}
	if cancel != nil {
		cancel()
		<-done
	}
}

// Status returns the current save indicator.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// OnStatus registers a callback invoked whenever the save indicator
// changes. Must be called before Start.
func (c *Coordinator) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

func (c *Coordinator) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()
	if changed && fn != nil {
		fn(s)
	}
}

// requestPush arms the debounce window. Safe from any goroutine.
func (c *Coordinator) requestPush() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			// One last attempt so a clean shutdown doesn't strand a
			// mutation that was still inside the debounce window.
			c.flush(context.Background())
			return
		case <-c.kick:
			if timerC == nil {
				timer = time.NewTimer(c.cfg.Debounce)
				timerC = timer.C
			}
		case <-timerC:
			timerC = nil
			c.flush(ctx)
		}
	}
}

// flush pushes the store's current dirty fields, retrying transport
// failures with exponential backoff. On a version rejection it re-fetches
// and reconciles instead of failing hard.
func (c *Coordinator) flush(ctx context.Context) {
	snap := c.store.Snapshot()
	if len(snap.Dirty) == 0 {
		return
	}
	c.setStatus(StatusSaving)

	data := state.Data{Pet: snap.Pet, Wallet: snap.Wallet, Quests: snap.Quests}
	fields, err := state.ExtractFields(&data, snap.Dirty)
	if err != nil {
		slog.Error("syncer: cannot encode dirty fields", "err", err)
		c.setStatus(StatusError)
		return
	}

	env := &remote.Envelope{
		OwnerID: c.ownerID,
		PetID:   snap.Pet.ID,
		Version: snap.LastSyncedVersion,
		Fields:  fields,
	}

	op := func() (*remote.PushResult, error) {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		res, err := c.remote.PushPetState(pushCtx, env)
		if err != nil {
			return nil, err
		}
		if !res.Accepted {
			return nil, backoff.Permanent(fmt.Errorf("%w: authoritative version %d",
				remote.ErrRemoteRejected, res.CurrentVersion))
		}
		return res, nil
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(c.cfg.MaxTries))
	if err != nil {
		if errors.Is(err, remote.ErrRemoteRejected) {
			slog.Warn("syncer: push rejected, reconciling", "err", err)
			c.refetch(ctx)
			return
		}
		// Retries exhausted. Dirty state stays put; the next mutation or
		// the retry timer will try again.
		slog.Warn("syncer: push failed, keeping local state", "fields", snap.Dirty, "err", err)
		c.setStatus(StatusError)
		time.AfterFunc(c.cfg.RetryAfter, c.requestPush)
		return
	}

	c.store.MarkSynced(res.CurrentVersion, snap.Dirty, snap.Seq)
	c.setStatus(StatusSaved)
	slog.Debug("syncer: push accepted", "version", res.CurrentVersion, "fields", snap.Dirty)

	// Mutations that landed while the push was in flight go out next.
	if len(c.store.Snapshot().Dirty) > 0 {
		c.requestPush()
	}
}

// handleRemote reconciles one incoming change notification. Stale echoes
// of our own writes are discarded inside ApplyRemote; contested fields
// keep the local value and are re-pushed.
func (c *Coordinator) handleRemote(env *remote.Envelope) {
	switch {
	case env.Fields != nil:
		applied, conflicted, err := c.store.ApplyRemote(env.Fields, env.Version)
		if err != nil {
			slog.Error("syncer: bad change notification", "err", err)
			return
		}
		if len(applied) > 0 {
			slog.Debug("syncer: applied remote change", "version", env.Version, "fields", applied)
		}
		if len(conflicted) > 0 {
			slog.Info("syncer: local intent wins contested fields", "fields", conflicted)
			c.requestPush()
		}
	case env.State != nil:
		if dirty := c.store.ApplySnapshot(*env.State, env.Version); len(dirty) > 0 {
			c.requestPush()
		}
	}
}

// refetch pulls a full authoritative snapshot and reconciles it,
// preserving locally-dirty fields. Used after a rejected push and after
// a subscription reconnect, since notifications are not queued for
// offline clients.
func (c *Coordinator) refetch(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	env, err := c.remote.FetchPetState(fetchCtx, c.ownerID)
	if err != nil {
		slog.Warn("syncer: snapshot fetch failed", "err", err)
		c.setStatus(StatusError)
		time.AfterFunc(c.cfg.RetryAfter, c.requestPush)
		return
	}
	if env.State == nil {
		slog.Error("syncer: snapshot fetch returned no state")
		c.setStatus(StatusError)
		return
	}

	dirty := c.store.ApplySnapshot(*env.State, env.Version)
	if len(dirty) > 0 {
		c.requestPush()
	} else {
		c.setStatus(StatusSaved)
	}
}

// subscribe opens the push-notification channel, re-establishing it with
// backoff whenever it drops. Every successful (re)connect is followed by
// a full snapshot fetch.
func (c *Coordinator) subscribe(ctx context.Context) {
	onDrop := func(err error) {
		slog.Warn("syncer: subscription lost", "err", err)
		go c.resubscribe(ctx)
	}

	unsub, err := c.remote.Subscribe(ctx, c.ownerID, c.handleRemote, onDrop)
	if err != nil {
		slog.Warn("syncer: subscribe failed", "err", err)
		go c.resubscribe(ctx)
		return
	}

	c.mu.Lock()
	c.unsubRemote = unsub
	c.mu.Unlock()
}

func (c *Coordinator) resubscribe(ctx context.Context) {
	c.mu.Lock()
	if c.resubActive || c.cancel == nil {
		c.mu.Unlock()
		return
	}
	c.resubActive = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.resubActive = false
		c.mu.Unlock()
	}()

	bo := backoff.NewExponentialBackOff()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}

		unsub, err := c.remote.Subscribe(ctx, c.ownerID, c.handleRemote, func(err error) {
			slog.Warn("syncer: subscription lost", "err", err)
			go c.resubscribe(ctx)
		})
		if err != nil {
			slog.Debug("syncer: resubscribe attempt failed", "err", err)
			continue
		}

		c.mu.Lock()
		c.unsubRemote = unsub
		c.mu.Unlock()

		slog.Info("syncer: subscription restored")
		c.refetch(ctx)
		return
	}
}
