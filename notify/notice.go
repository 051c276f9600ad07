// Package notify delivers quest notifications outside the app: the ongoing
// quest banner, the end-of-quest reminder and the completion summary.
package notify

import (
	"context"
	"time"
)

// Notice kinds.
const (
	KindOngoing   = "ongoing"
	KindCleared   = "cleared"
	KindQuestEnd  = "quest_end"
	KindCompleted = "completed"
)

// Notice is one notification for a hero.
type Notice struct {
	Kind    string     `json:"kind"`
	HeroID  string     `json:"hero_id"`
	QuestID string     `json:"quest_id,omitempty"`
	EndsAt  *time.Time `json:"ends_at,omitempty"`
	XP      int        `json:"xp,omitempty"`
	Gold    int        `json:"gold,omitempty"`
	Items   []string   `json:"items,omitempty"`
	At      time.Time  `json:"at"`
}

// Sink transports notices.
type Sink interface {
	Send(ctx context.Context, n Notice) error
	Close() error
}

// Channel is the pub/sub channel carrying a hero's notices.
func Channel(heroID string) string { return "notify:" + heroID }
