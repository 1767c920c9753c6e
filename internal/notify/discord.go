package notify

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/pwillett/critter/internal/statmath"
)

// DiscordSink posts alerts to a Discord channel and mirrors the pet's
// mood as the bot's presence.
type DiscordSink struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscordSink creates a sink for the given bot token and channel
// (does not connect yet).
func NewDiscordSink(token, channelID string) (*DiscordSink, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("invalid bot token: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	return &DiscordSink{session: session, channelID: channelID}, nil
}

// Start opens the Discord connection.
func (d *DiscordSink) Start() error {
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	slog.Info("discord: connected", "user", d.session.State.User.Username)
	return nil
}

// Close shuts the connection down.
func (d *DiscordSink) Close() {
	if err := d.session.Close(); err != nil {
		slog.Debug("discord: close failed", "err", err)
	}
}

func (d *DiscordSink) Send(a Alert) {
	text := a.Message
	if a.Severity == SeverityCritical {
		text = "@here " + text
	}
	if _, err := d.session.ChannelMessageSend(d.channelID, text); err != nil {
		slog.Error("discord: send message failed", "err", err)
	}
}

// MoodChanged sets the bot's presence from the pet's mood.
func (d *DiscordSink) MoodChanged(mood statmath.Mood) {
	status, activity := moodToPresence(mood)
	err := d.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: status,
		Activities: []*discordgo.Activity{
			{Name: activity, Type: discordgo.ActivityTypeCustom},
		},
	})
	if err != nil {
		slog.Debug("discord: update presence failed", "err", err)
	}
}

func moodToPresence(mood statmath.Mood) (string, string) {
	switch mood {
	case statmath.MoodJoyful:
		return "online", "bouncing off the walls"
	case statmath.MoodPlayful:
		return "online", "looking for a playmate"
	case statmath.MoodSleepy:
		return "idle", "dozing off"
	case statmath.MoodConcerned:
		return "dnd", "not feeling great"
	default:
		return "online", "hanging out"
	}
}
