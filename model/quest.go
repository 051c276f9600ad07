package model

import (
	"time"

	"gorm.io/datatypes"
)

// Quest is one timed focus session. EndTime, Completed and GaveUp are
// written once, by the terminal transition.
type Quest struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	HeroID          string         `gorm:"index:idx_quest_hero;size:36;not null" json:"hero_id"`
	DurationMinutes int            `gorm:"not null" json:"duration_minutes"`
	StartTime       time.Time      `gorm:"not null" json:"start_time"`
	EndTime         *time.Time     `json:"end_time"`
	Completed       bool           `gorm:"default:false" json:"completed"`
	GaveUp          bool           `gorm:"default:false" json:"gave_up"`
	ServerValidated bool           `gorm:"default:false" json:"server_validated"`
	Class           string         `gorm:"size:16" json:"class"`
	HeroLevel       int            `gorm:"default:1" json:"hero_level"`
	Seed            int64          `json:"seed"`
	RewardSeed      int64          `gorm:"default:0" json:"reward_seed"` // loot seed when a validator supplied one
	XPGained        int            `gorm:"default:0" json:"xp_gained"`
	GoldGained      int            `gorm:"default:0" json:"gold_gained"`
	Items           datatypes.JSON `json:"items"` // [{"id":"runed_dagger",...}]
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// PlannedEvent is one row of a quest's stored schedule.
type PlannedEvent struct {
	ID      int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestID string    `gorm:"uniqueIndex:idx_plan_quest_idx;size:36;not null" json:"quest_id"`
	Idx     int       `gorm:"uniqueIndex:idx_plan_quest_idx;not null" json:"idx"`
	DueAt   time.Time `gorm:"not null" json:"due_at"`
	Type    string    `gorm:"size:16;not null" json:"type"`
	IsMajor bool      `gorm:"default:false" json:"is_major"`
	MobTier string    `gorm:"size:8" json:"mob_tier"`
}

// QuestEvent is one append-only adventure log entry.
type QuestEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestID   string         `gorm:"uniqueIndex:idx_log_quest_idx;size:36;not null" json:"quest_id"`
	Idx       int            `gorm:"uniqueIndex:idx_log_quest_idx;not null" json:"idx"`
	At        time.Time      `gorm:"not null" json:"at"`
	Type      string         `gorm:"size:16;not null" json:"type"`
	Message   string         `gorm:"size:255" json:"message"`
	XPDelta   int            `gorm:"default:0" json:"xp_delta"`
	GoldDelta int            `gorm:"default:0" json:"gold_delta"`
	Outcome   datatypes.JSON `json:"outcome"` // {"kind":"win","mob_name":"Slime","mob_level":2}
	CreatedAt time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
}
