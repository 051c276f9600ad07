// Package loot computes the rewards of a finished quest.
package loot

import (
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/rng"
)

const (
	xpPerMinute  = 10
	goldStep     = 5
	dropPerMin   = 0.02
	maxDropRoll  = 0.8
	levelDivisor = 10
)

// Loot is the reward of one terminal quest transition.
type Loot struct {
	XP    int    `json:"xp"`
	Gold  int    `json:"gold"`
	Items []Item `json:"items"`
}

// TotalValue is the gold plus the value of every item.
func (l Loot) TotalValue() int {
	v := l.Gold
	for _, it := range l.Items {
		v += it.Value
	}
	return v
}

// Scale multiplies xp and gold by the given factors, truncating. Items are kept.
func (l Loot) Scale(xpMul, goldMul float64) Loot {
	l.XP = int(float64(l.XP) * xpMul)
	l.Gold = int(float64(l.Gold) * goldMul)
	return l
}

// Roll computes the loot for a quest of durationMinutes. The result is a pure
// function of its inputs.
//
// Integer order, truncating at every step:
//
//	xp   = d*10;        xp   = xp*classXP%/100;     xp   = xp*(10+L)/10
//	gold = (d/5)*5;     gold = gold*classGold%/100; gold = gold*(10+L)/10
//
// (10+L)/10 is the level multiplier 1 + 0.1*L in exact arithmetic.
func Roll(durationMinutes, heroLevel int, class hero.Class, seed int64) Loot {
	if durationMinutes <= 0 {
		return Loot{}
	}
	if heroLevel < 0 {
		heroLevel = 0
	}
	traits := class.Traits()

	xp := durationMinutes * xpPerMinute
	xp = xp * traits.XPPercent / 100
	xp = xp * (levelDivisor + heroLevel) / levelDivisor

	gold := (durationMinutes / goldStep) * goldStep
	gold = gold * traits.GoldPercent / 100
	gold = gold * (levelDivisor + heroLevel) / levelDivisor

	out := Loot{XP: xp, Gold: gold}
	r := rng.New(seed)
	if r.NextDouble() < DropChance(durationMinutes) {
		rarity := rollRarity(r, heroLevel)
		pool := itemPools[rarity]
		out.Items = append(out.Items, pool[r.NextInt(len(pool))])
	}
	return out
}

// DropChance is the probability a quest of durationMinutes drops an item.
func DropChance(durationMinutes int) float64 {
	c := float64(durationMinutes) * dropPerMin
	if c > maxDropRoll {
		return maxDropRoll
	}
	if c < 0 {
		return 0
	}
	return c
}

func rollRarity(r *rng.SplitMix64, level int) Rarity {
	roll := r.NextDouble()
	acc := 0.0
	for _, rule := range rarityTable {
		if level < rule.minLevel {
			continue
		}
		acc += rule.chance
		if roll < acc {
			return rule.rarity
		}
	}
	return Common
}
