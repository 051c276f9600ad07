// Package quest runs the quest lifecycle: one Store per hero owns the active
// quest, reacts to intents and clock ticks, drives the planner, resolver,
// loot and curse components and commits terminal transitions through a
// Repository.
package quest

import (
	"time"

	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/loot"
)

// Quest is one timed focus session.
type Quest struct {
	ID              string      `json:"id"`
	HeroID          string      `json:"hero_id"`
	DurationMinutes int         `json:"duration_minutes"`
	StartTime       time.Time   `json:"start_time"`
	EndTime         *time.Time  `json:"end_time,omitempty"`
	Completed       bool        `json:"completed"`
	GaveUp          bool        `json:"gave_up"`
	ServerValidated bool        `json:"server_validated"`
	Class           hero.Class  `json:"class"`
	HeroLevel       int         `json:"hero_level"`
	Seed            int64       `json:"seed"`
	// RewardSeed is the loot seed supplied by a remote validator. Seed stays
	// the planning seed so the adventure log can be replayed.
	RewardSeed      int64       `json:"reward_seed,omitempty"`
	XPGained        int         `json:"xp_gained"`
	GoldGained      int         `json:"gold_gained"`
	Items           []loot.Item `json:"items,omitempty"`
}

// IsActive reports whether no terminal transition has happened yet.
func (q Quest) IsActive() bool { return q.EndTime == nil && !q.GaveUp }

// PlannedEnd is the start time plus the committed duration.
func (q Quest) PlannedEnd() time.Time {
	return q.StartTime.Add(time.Duration(q.DurationMinutes) * time.Minute)
}

// Elapsed returns the time since start, never negative.
func (q Quest) Elapsed(now time.Time) time.Duration {
	if d := now.Sub(q.StartTime); d > 0 {
		return d
	}
	return 0
}

// Remaining returns the time until the planned end, never negative.
func (q Quest) Remaining(now time.Time) time.Duration {
	if d := q.PlannedEnd().Sub(now); d > 0 {
		return d
	}
	return 0
}

// HeroStats is the persisted progression of a hero.
type HeroStats struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Class        hero.Class `json:"class"`
	Level        int        `json:"level"`
	XP           int64      `json:"xp"`
	Gold         int64      `json:"gold"`
	Streak       int        `json:"streak"`
	LastQuestDay string     `json:"last_quest_day,omitempty"`
}

// DayLayout formats the calendar day used for streaks.
const DayLayout = "2006-01-02"

// Settlement is everything a terminal transition commits at once.
type Settlement struct {
	Quest       Quest
	Gains       loot.Loot
	ResetStreak bool
	// Day is the local calendar day of a completion; empty on give-up.
	Day string
}

// Progress applies a settlement to the hero's stats. Level always follows
// total XP. A completion on the day after the last one extends the streak,
// a completion on the same day keeps it, anything else restarts it at 1.
func Progress(h HeroStats, s Settlement) HeroStats {
	h.XP += int64(s.Gains.XP)
	h.Gold += int64(s.Gains.Gold)
	h.Level = hero.LevelForXP(h.XP)

	switch {
	case s.ResetStreak:
		h.Streak = 0
	case s.Day != "":
		switch h.LastQuestDay {
		case s.Day:
			if h.Streak == 0 {
				h.Streak = 1
			}
		case previousDay(s.Day):
			h.Streak++
		default:
			h.Streak = 1
		}
		h.LastQuestDay = s.Day
	}
	return h
}

func previousDay(day string) string {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(DayLayout)
}
