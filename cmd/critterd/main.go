// critterd runs the pet simulation and sync engine for one owner against
// a critter hub, with optional Discord alerts and AI care tips.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pwillett/critter/internal/advisor"
	"github.com/pwillett/critter/internal/config"
	"github.com/pwillett/critter/internal/notify"
	"github.com/pwillett/critter/internal/remote"
	"github.com/pwillett/critter/internal/session"
	"github.com/pwillett/critter/internal/syncer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "critterd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adv := advisor.New(ctx, advisor.Config{
		Provider:     cfg.AI.Provider,
		ClaudeAPIKey: cfg.Claude.APIKey,
		ClaudeModel:  cfg.Claude.Model,
		GeminiAPIKey: cfg.Gemini.APIKey,
		GeminiModel:  cfg.Gemini.Model,
		MaxTokens:    cfg.Claude.MaxTokens,
		RateLimit:    cfg.Claude.RateLimit,
		RateWindow:   cfg.Claude.RateWindow,
	})

	var sinks []notify.Sink
	if cfg.Notify.Enabled {
		sinks = append(sinks, notify.ConsoleSink{})
		if cfg.Discord.BotToken != "" {
			ds, err := notify.NewDiscordSink(cfg.Discord.BotToken, cfg.Discord.ChannelID)
			if err != nil {
				return err
			}
			if err := ds.Start(); err != nil {
				return err
			}
			defer ds.Close()
			sinks = append(sinks, ds)
		}
	}

	client := remote.NewClient(cfg.Hub.URL)
	sess, err := session.Start(ctx, client, cfg.Owner.ID, session.Options{
		TickInterval: cfg.Clock.TickInterval,
		Sync: syncer.Config{
			Debounce:   cfg.Sync.Debounce,
			MaxTries:   cfg.Sync.MaxTries,
			RetryAfter: cfg.Sync.RetryAfter,
		},
		NotifyCooldown: cfg.Notify.Cooldown,
		Advisor:        adv,
		Sinks:          sinks,
	})
	if err != nil {
		return err
	}

	snap := sess.Snapshot()
	slog.Info("critterd: running", "pet", snap.Pet.Name,
		"mood", snap.Pet.Stats.Mood, "coins", snap.Wallet.Coins)

	<-ctx.Done()
	slog.Info("critterd: shutting down")
	sess.Close()
	return nil
}
