// Package advisor wraps the opaque remote advice services. The engine
// never depends on it: a nil *Advisor simply means alerts ship without
// the extra care tip.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pwillett/critter/internal/species"
	"github.com/pwillett/critter/internal/state"
)

// Provider abstracts one advice backend (Claude, Gemini).
type Provider interface {
	Advise(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	// Which provider to force ("claude", "gemini", or "" to auto-detect).
	Provider string

	ClaudeAPIKey string
	ClaudeModel  string

	GeminiAPIKey string
	GeminiModel  string

	MaxTokens int64

	// Sliding-window rate limiter
	RateLimit  int
	RateWindow time.Duration
}

// Advisor asks a provider for short care tips about the pet's condition.
type Advisor struct {
	provider Provider

	mu      sync.Mutex
	window  []time.Time
	rateMax int
	rateDur time.Duration
}

// New creates an Advisor. Returns nil if no API key is configured, which
// callers treat as "advice disabled".
func New(ctx context.Context, cfg Config) *Advisor {
	provider := newProvider(ctx, cfg)
	if provider == nil {
		slog.Info("advisor: no API key configured, advice disabled")
		return nil
	}
	return &Advisor{
		provider: provider,
		rateMax:  cfg.RateLimit,
		rateDur:  cfg.RateWindow,
	}
}

func newProvider(ctx context.Context, cfg Config) Provider {
	pick := cfg.Provider
	if pick == "" {
		switch {
		case cfg.ClaudeAPIKey != "":
			pick = "claude"
		case cfg.GeminiAPIKey != "":
			pick = "gemini"
		}
	}

	switch pick {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			slog.Error("advisor: provider=claude but no API key set")
			return nil
		}
		slog.Info("advisor: using claude", "model", cfg.ClaudeModel)
		return newClaudeProvider(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.MaxTokens)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			slog.Error("advisor: provider=gemini but no API key set")
			return nil
		}
		slog.Info("advisor: using gemini", "model", cfg.GeminiModel)
		p, err := newGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.MaxTokens)
		if err != nil {
			slog.Error("advisor: failed to create gemini provider", "err", err)
			return nil
		}
		return p
	default:
		return nil
	}
}

const systemPrompt = `You are a virtual-pet care coach. Given a pet's current
stats, reply with one short, friendly, practical sentence telling the owner
what to do next. No preamble, no emoji spam, just the tip.`

// CareTip asks the provider for a one-line tip for an alert about the
// given snapshot. Rate-limited; over-limit or failed calls return an
// error the caller degrades from silently.
func (a *Advisor) CareTip(ctx context.Context, snap state.Snapshot, alert string) (string, error) {
	if !a.rateAllow() {
		return "", fmt.Errorf("advisor: rate limited")
	}

	sp := species.Get(snap.Pet.Species)
	prompt := fmt.Sprintf(
		"%s\nPet %q (%s), mood %s. Health %.0f, hunger %.0f, happiness %.0f, cleanliness %.0f, energy %.0f. Alert: %s",
		sp.Personality, snap.Pet.Name, sp.Name, snap.Pet.Stats.Mood,
		snap.Pet.Stats.Health, snap.Pet.Stats.Hunger, snap.Pet.Stats.Happiness,
		snap.Pet.Stats.Cleanliness, snap.Pet.Stats.Energy, alert)

	tip, err := a.provider.Advise(ctx, systemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("advisor: %w", err)
	}
	return tip, nil
}

// --- Sliding-window rate limiter ---

func (a *Advisor) rateAllow() bool {
	if a.rateMax <= 0 {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-a.rateDur)

	valid := a.window[:0]
	for _, t := range a.window {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	a.window = valid

	if len(a.window) >= a.rateMax {
		return false
	}
	a.window = append(a.window, now)
	return true
}
