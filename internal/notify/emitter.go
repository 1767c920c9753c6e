// Package notify watches the session store for threshold crossings and
// raises user-facing alerts. It is a pure observer: it reads snapshots
// and never mutates anything.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pwillett/critter/internal/advisor"
	"github.com/pwillett/critter/internal/species"
	"github.com/pwillett/critter/internal/state"
	"github.com/pwillett/critter/internal/statmath"
	"github.com/pwillett/critter/internal/syncer"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one user-facing notification.
type Alert struct {
	Kind     string
	Severity Severity
	Message  string
}

// Sink delivers alerts to one channel (console, Discord, ...).
type Sink interface {
	Send(Alert)
}

// MoodSink is an optional extension for sinks that surface the pet's
// mood as presence (the Discord sink does).
type MoodSink interface {
	MoodChanged(mood statmath.Mood)
}

// Stat thresholds that raise an alert.
const (
	healthCritical  = 30.0
	hungerCritical  = 20.0
	filthThreshold  = 20.0
	energyExhausted = 15.0
)

// Emitter observes the store and dispatches alerts with per-kind
// cooldowns so a lingering condition does not spam every tick.
type Emitter struct {
	store    *state.Store
	sinks    []Sink
	advisor  *advisor.Advisor // nil means no care tips
	cooldown time.Duration

	mu         sync.Mutex
	lastSent   map[string]time.Time
	lastMood   statmath.Mood
	lastStatus map[string]state.QuestStatus
	unsub      func()
}

// New creates an emitter delivering to the given sinks. adv may be nil.
func New(store *state.Store, adv *advisor.Advisor, cooldown time.Duration, sinks ...Sink) *Emitter {
	return &Emitter{
		store:    store,
		sinks:    sinks,
		advisor:  adv,
		cooldown: cooldown,
		lastSent: make(map[string]time.Time),
	}
}

// Start subscribes to store changes. Call Stop to detach.
func (e *Emitter) Start() {
	snap := e.store.Snapshot()
	e.mu.Lock()
	e.lastMood = snap.Pet.Stats.Mood
	e.lastStatus = questStatuses(snap.Quests)
	e.mu.Unlock()

	e.unsub = e.store.Subscribe(e.check)
}

// Stop detaches from the store.
func (e *Emitter) Stop() {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
}

// SaveStatusChanged surfaces a persistent save failure as an alert. Wired
// to the sync coordinator's status callback by the session.
func (e *Emitter) SaveStatusChanged(s syncer.Status) {
	if s != syncer.StatusError {
		return
	}
	snap := e.store.Snapshot()
	e.raise(snap, Alert{
		Kind:     "save-failed",
		Severity: SeverityWarning,
		Message:  "Saving is failing right now. Your progress is safe on this device and will sync when the connection recovers.",
	})
}

func (e *Emitter) check(snap state.Snapshot) {
	sp := species.Get(snap.Pet.Species)
	stats := snap.Pet.Stats

	e.mu.Lock()
	moodChanged := stats.Mood != e.lastMood
	if moodChanged {
		e.lastMood = stats.Mood
		for _, s := range e.sinks {
			if ms, ok := s.(MoodSink); ok {
				ms.MoodChanged(stats.Mood)
			}
		}
	}
	prev := e.lastStatus
	e.lastStatus = questStatuses(snap.Quests)
	e.mu.Unlock()

	if moodChanged && stats.Mood == statmath.MoodJoyful {
		e.raise(snap, Alert{
			Kind:     "joyful",
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%s %s %s", sp.Emoji, snap.Pet.Name, sp.HappyNoise),
		})
	}

	for _, q := range snap.Quests {
		if q.Status == state.QuestCompleted && prev[q.ID] == state.QuestActive {
			e.raise(snap, Alert{
				Kind:     "quest-completed:" + q.ID,
				Severity: SeverityInfo,
				Message: fmt.Sprintf("Quest complete: %s! Claim it for %d coins and %d XP.",
					q.Title, q.Reward.Coins, q.Reward.XP),
			})
		}
	}

	// Highest-priority condition wins; the rest wait for their turn.
	switch {
	case stats.Health < healthCritical:
		e.raise(snap, Alert{
			Kind:     "health-critical",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%s is not doing well at all. Health is down to %.0f.", snap.Pet.Name, stats.Health),
		})
	case stats.Hunger < hungerCritical:
		e.raise(snap, Alert{
			Kind:     "hungry",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%s %s. Time for a meal.", snap.Pet.Name, sp.HungryCry),
		})
	case stats.Cleanliness < filthThreshold:
		e.raise(snap, Alert{
			Kind:     "filthy",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%s %s. A bath would help.", snap.Pet.Name, sp.DirtyCry),
		})
	case stats.Energy < energyExhausted:
		e.raise(snap, Alert{
			Kind:     "exhausted",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("%s %s. Let it rest.", snap.Pet.Name, sp.TiredCry),
		})
	}
}

// raise applies the cooldown and delivers asynchronously, so a slow sink
// or advice call never blocks the mutation path.
func (e *Emitter) raise(snap state.Snapshot, alert Alert) {
	e.mu.Lock()
	if last, ok := e.lastSent[alert.Kind]; ok && time.Since(last) < e.cooldown {
		e.mu.Unlock()
		return
	}
	e.lastSent[alert.Kind] = time.Now()
	e.mu.Unlock()

	go e.deliver(snap, alert)
}

func (e *Emitter) deliver(snap state.Snapshot, alert Alert) {
	if e.advisor != nil && alert.Severity != SeverityInfo {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		tip, err := e.advisor.CareTip(ctx, snap, alert.Message)
		cancel()
		if err != nil {
			slog.Debug("notify: no care tip", "err", err)
		} else if tip != "" {
			alert.Message += "\n" + tip
		}
	}

	slog.Info("notify: alert", "kind", alert.Kind, "severity", alert.Severity)
	for _, s := range e.sinks {
		s.Send(alert)
	}
}

func questStatuses(quests []state.Quest) map[string]state.QuestStatus {
	out := make(map[string]state.QuestStatus, len(quests))
	for _, q := range quests {
		out[q.ID] = q.Status
	}
	return out
}
