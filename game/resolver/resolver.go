// Package resolver turns planned events into adventure log entries. Each
// event is resolved from its own seed, so resolving idx 5 never depends on
// idx 0..4 and re-resolving an idx reproduces the same entry.
package resolver

import (
	"fmt"

	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/rng"
)

const (
	// FleeChance applies to mobs more than OutlevelMargin above the hero.
	FleeChance     = 0.8
	OutlevelMargin = 2
	FleeXP         = 2
	QuirkyXP       = 5
	mobXPPerLevel  = 5
)

type goldRange struct{ lo, hi int }

var (
	mobGold        = goldRange{3, 12}
	majorMobGold   = goldRange{10, 30}
	chestGold      = goldRange{5, 20}
	majorChestGold = goldRange{25, 60}
)

// Context carries the quest-wide inputs of resolution.
type Context struct {
	QuestID   string
	BaseSeed  int64
	HeroLevel int
	Class     hero.Class
}

// Resolve produces the log entry for p.
func Resolve(ctx Context, p event.Planned) event.QuestEvent {
	r := rng.New(rng.EventSeed(ctx.BaseSeed, p.Idx))
	ev := event.QuestEvent{
		QuestID: ctx.QuestID,
		Idx:     p.Idx,
		At:      p.DueAt,
		Type:    p.Type,
		Outcome: event.None{},
	}
	switch p.Type {
	case event.Mob:
		resolveMob(r, ctx, p, &ev)
	case event.Chest:
		g := chestGold
		if p.IsMajor {
			g = majorChestGold
		}
		ev.GoldDelta = r.IntRange(g.lo, g.hi)
		if p.IsMajor {
			ev.Message = fmt.Sprintf("You pry open a gilded chest: %d gold!", ev.GoldDelta)
		} else {
			ev.Message = fmt.Sprintf("You open a chest and find %d gold.", ev.GoldDelta)
		}
	case event.Quirky:
		ev.Message = pick(r, quirkyLines)
		ev.XPDelta = QuirkyXP
	case event.Trinket:
		ev.Message = pick(r, trinketLines)
	default:
		ev.Message = pick(r, narrationLines)
	}
	return ev
}

func resolveMob(r *rng.SplitMix64, ctx Context, p event.Planned, ev *event.QuestEvent) {
	tier := p.MobTier
	if _, ok := mobPools[tier]; !ok {
		tier = event.TierLight
	}
	heroLevel := ctx.HeroLevel
	if heroLevel < 1 {
		heroLevel = 1
	}
	name := pick(r, mobPools[tier])
	band := mobBands[tier]
	level := heroLevel + r.IntRange(band.min, band.max)
	if level < 1 {
		level = 1
	}

	if level > heroLevel+OutlevelMargin && r.NextDouble() < FleeChance {
		ev.XPDelta = FleeXP
		ev.Outcome = event.Flee{MobName: name, MobLevel: level}
		ev.Message = fmt.Sprintf("A %s (Lv %d) looms ahead. You wisely flee.", name, level)
		return
	}

	xp := level * mobXPPerLevel
	g := mobGold
	if p.IsMajor {
		xp *= 2
		g = majorMobGold
	}
	ev.XPDelta = xp
	ev.GoldDelta = r.IntRange(g.lo, g.hi)
	ev.Outcome = event.Win{MobName: name, MobLevel: level}
	ev.Message = fmt.Sprintf("You defeat a %s (Lv %d): +%d XP, +%d gold.", name, level, xp, ev.GoldDelta)
}

func pick(r *rng.SplitMix64, lines []string) string {
	return lines[r.NextInt(len(lines))]
}
