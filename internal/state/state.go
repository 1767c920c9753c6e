// Package state holds the in-memory, authoritative-for-the-session copy of
// one pet's stats, the owner's wallet, and the active quest set. All
// mutation funnels through Store.Mutate so dirty tracking, mood derivation,
// and change notification stay consistent.
package state

import (
	"time"

	"github.com/pwillett/critter/internal/statmath"
)

// Pet is the simulated companion. Level and XP only ever increase.
type Pet struct {
	ID      string             `json:"id"`
	OwnerID string             `json:"ownerId"`
	Name    string             `json:"name"`
	Species string             `json:"species"`
	Breed   string             `json:"breed,omitempty"`
	Level   int                `json:"level"`
	XP      int64              `json:"xp"`
	Stats   statmath.StatBlock `json:"stats"`
}

// Wallet is the owner's coin balance. It never goes negative.
type Wallet struct {
	Coins int64 `json:"coins"`
}

// QuestType classifies how a quest is scheduled.
type QuestType string

const (
	QuestDaily  QuestType = "daily"
	QuestWeekly QuestType = "weekly"
	QuestEvent  QuestType = "event"
)

// QuestStatus moves strictly forward: active → completed → claimed.
type QuestStatus string

const (
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestClaimed   QuestStatus = "claimed"
)

// QuestReward is what a claim grants, exactly once.
type QuestReward struct {
	Coins int64 `json:"coins"`
	XP    int64 `json:"xp"`
}

// Quest is one quest instance for the session's owner.
type Quest struct {
	ID           string          `json:"id"`
	Type         QuestType       `json:"type"`
	Title        string          `json:"title"`
	TargetAction statmath.Action `json:"targetAction"`
	Goal         int             `json:"goal"`
	Progress     int             `json:"progress"`
	Status       QuestStatus     `json:"status"`
	Reward       QuestReward     `json:"reward"`
}

// Data is everything the store owns for the session.
type Data struct {
	Pet    Pet     `json:"pet"`
	Wallet Wallet  `json:"wallet"`
	Quests []Quest `json:"quests"`
}

// Clone returns a deep copy safe to hand out or mutate independently.
func (d Data) Clone() Data {
	out := d
	out.Quests = append([]Quest(nil), d.Quests...)
	return out
}

// NewPet creates a starter pet for an owner. Used by the authoritative
// store when an owner first appears; sessions always receive their pet
// from a remote fetch.
func NewPet(ownerID, petID, name, species string) Pet {
	now := time.Now().UTC()
	stats := statmath.StatBlock{
		Health:      90,
		Hunger:      70,
		Happiness:   80,
		Cleanliness: 80,
		Energy:      80,
		LastUpdated: now,
	}
	stats.Mood = statmath.DeriveMood(stats)
	return Pet{
		ID:      petID,
		OwnerID: ownerID,
		Name:    name,
		Species: species,
		Level:   1,
		Stats:   stats,
	}
}
