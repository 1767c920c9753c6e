// Package remote defines the contract with the authoritative remote store
// and provides a client over HTTP + websockets. The engine only ever
// depends on the Store interface; the wire format is this package's
// concern alone.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pwillett/critter/internal/state"
)

var (
	// ErrNetworkUnavailable wraps transport-level failures. The caller is
	// expected to retry with backoff and keep local state intact.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrRemoteRejected means the remote store refused a write because the
	// client's version was stale. Recover by re-fetching and reconciling.
	ErrRemoteRejected = errors.New("remote rejected write")

	// ErrSubscriptionLost means the push-notification channel dropped.
	// Notifications are not queued for offline clients, so recovery is a
	// full snapshot fetch, never a stream resume.
	ErrSubscriptionLost = errors.New("subscription lost")
)

// Envelope is the unit exchanged with the remote store in both
// directions. Pushes and change notifications carry Fields (the mutated
// subset); full pulls carry State. Version is assigned by the remote
// store; on a push it holds the client's last synced version for the
// optimistic-concurrency check.
type Envelope struct {
	OwnerID string                          `json:"ownerId"`
	PetID   string                          `json:"petId,omitempty"`
	Version int64                           `json:"version"`
	Fields  map[state.Field]json.RawMessage `json:"fields,omitempty"`
	State   *state.Data                     `json:"state,omitempty"`
}

// PushResult reports the outcome of a versioned write. When a write is
// rejected, CurrentVersion carries the authoritative version so the
// client can re-fetch.
type PushResult struct {
	Accepted       bool  `json:"accepted"`
	CurrentVersion int64 `json:"currentVersion"`
}

// InteractionRecord is a fire-and-forget analytics event describing one
// user action and its stat deltas.
type InteractionRecord struct {
	ID        string             `json:"id"`
	OwnerID   string             `json:"ownerId"`
	Action    string             `json:"action"`
	Deltas    map[string]float64 `json:"deltas,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Store is the remote persistence collaborator.
type Store interface {
	// FetchPetState pulls a full snapshot. Used at session start and on
	// subscription-loss recovery.
	FetchPetState(ctx context.Context, ownerID string) (*Envelope, error)

	// PushPetState writes mutated fields with an optimistic version check.
	PushPetState(ctx context.Context, env *Envelope) (*PushResult, error)

	// Subscribe opens the push-notification channel for an owner.
	// onChange is called for every incoming envelope; onDrop once if the
	// channel fails. The returned function unsubscribes and may be called
	// at any time, more than once.
	Subscribe(ctx context.Context, ownerID string, onChange func(*Envelope), onDrop func(error)) (func(), error)

	// CreditWallet and DebitWallet are the atomic balance primitives used
	// by out-of-session reward sources (chores, minigames). In-session
	// wallet changes ride the envelope instead.
	CreditWallet(ctx context.Context, ownerID string, amount int64, reason string) error
	DebitWallet(ctx context.Context, ownerID string, amount int64, reason string) error

	// LogInteraction records an analytics event. Failures are the
	// caller's to swallow.
	LogInteraction(ctx context.Context, rec InteractionRecord) error
}
