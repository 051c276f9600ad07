// Package event holds the planned and resolved quest event types shared by the
// planner, the resolver and the quest store.
package event

import "time"

// Type is the kind of a quest event.
type Type string

const (
	Chest     Type = "chest"
	Trinket   Type = "trinket"
	Quirky    Type = "quirky"
	Mob       Type = "mob"
	Narration Type = "narration"
)

// MobTier is the toughness band of a mob encounter. Empty for non-mob events.
type MobTier string

const (
	TierNone  MobTier = ""
	TierLight MobTier = "light"
	TierMid   MobTier = "mid"
	TierRare  MobTier = "rare"
)

// Planned is a scheduled, not yet resolved encounter.
type Planned struct {
	QuestID string    `json:"quest_id"`
	Idx     int       `json:"idx"`
	DueAt   time.Time `json:"due_at"`
	Type    Type      `json:"type"`
	IsMajor bool      `json:"is_major"`
	MobTier MobTier   `json:"mob_tier,omitempty"`
}

// QuestEvent is one resolved entry of the adventure log.
type QuestEvent struct {
	QuestID   string    `json:"quest_id"`
	Idx       int       `json:"idx"`
	At        time.Time `json:"at"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	XPDelta   int       `json:"xp_delta"`
	GoldDelta int       `json:"gold_delta"`
	Outcome   Outcome   `json:"-"`
}

// IsMob reports whether the event was a mob encounter.
func (e QuestEvent) IsMob() bool { return e.Type == Mob }
