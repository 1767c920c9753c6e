package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: http://hub.example:8420
owner:
  id: owner-1
`)
	t.Setenv("CRITTER_HUB_URL", "")
	t.Setenv("CRITTER_OWNER_ID", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hub.URL != "http://hub.example:8420" {
		t.Fatalf("hub url = %q", cfg.Hub.URL)
	}
	if cfg.Clock.TickInterval != 5*time.Second {
		t.Fatalf("tick interval = %v, want default", cfg.Clock.TickInterval)
	}
	if cfg.Sync.Debounce != 500*time.Millisecond {
		t.Fatalf("debounce = %v, want default", cfg.Sync.Debounce)
	}
	if !cfg.Notify.Enabled {
		t.Fatal("notifications should default on")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: http://file.example
owner:
  id: from-file
`)
	t.Setenv("CRITTER_HUB_URL", "http://env.example")
	t.Setenv("CRITTER_OWNER_ID", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Hub.URL != "http://env.example" {
		t.Fatalf("hub url = %q, env must win", cfg.Hub.URL)
	}
	if cfg.Owner.ID != "from-env" {
		t.Fatalf("owner = %q, env must win", cfg.Owner.ID)
	}
}

func TestLoadRejectsMissingOwner(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: http://hub.example
`)
	t.Setenv("CRITTER_OWNER_ID", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing owner id")
	}
}

func TestLoadRejectsDiscordTokenWithoutChannel(t *testing.T) {
	path := writeConfig(t, `
hub:
  url: http://hub.example
owner:
  id: owner-1
discord:
  bot_token: tok
`)
	t.Setenv("DISCORD_CHANNEL_ID", "")
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for token without channel")
	}
}
