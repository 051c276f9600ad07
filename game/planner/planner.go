// Package planner lays out the schedule of events for a quest. Planning is a
// pure function of the Spec: the same Spec always yields the same schedule.
package planner

import (
	"time"

	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/rng"
)

const (
	// Cadence is the target spacing between events.
	Cadence = 150 * time.Second
	// MaxEvents caps the schedule of very long quests.
	MaxEvents = 120
	// MajorChance is the probability a chest or mob is a major one.
	MajorChance = 0.15
	classBias   = 10
)

// Spec is the input to Plan.
type Spec struct {
	DurationMinutes int
	Seed            int64
	StartAt         time.Time
	HeroLevel       int
	Class           hero.Class
}

type weighted struct {
	typ    event.Type
	weight int
}

var baseWeights = []weighted{
	{event.Chest, 15},
	{event.Trinket, 15},
	{event.Quirky, 20},
	{event.Mob, 35},
	{event.Narration, 15},
}

// Plan returns the ordered schedule for questID. Every DueAt lies in
// [StartAt, StartAt+duration); idx and DueAt are strictly increasing. The last
// event is always a narration, so any positive duration yields at least one
// event.
func Plan(questID string, spec Spec) []event.Planned {
	if spec.DurationMinutes <= 0 {
		return nil
	}
	total := time.Duration(spec.DurationMinutes) * time.Minute
	slots := int(total / Cadence)
	if slots < 1 {
		slots = 1
	}
	if slots > MaxEvents {
		slots = MaxEvents
	}
	slotMs := total.Milliseconds() / int64(slots)
	level := spec.HeroLevel
	if level < 1 {
		level = 1
	}
	weights := typeWeights(spec.Class)
	r := rng.New(spec.Seed)

	out := make([]event.Planned, 0, slots)
	for i := 0; i < slots; i++ {
		jitter := slotMs/4 + int64(r.NextInt(int(slotMs/2)))
		p := event.Planned{
			QuestID: questID,
			Idx:     i,
			DueAt:   spec.StartAt.Add(time.Duration(int64(i)*slotMs+jitter) * time.Millisecond),
			Type:    event.Narration,
		}
		if i < slots-1 {
			p.Type = pickType(r, weights)
		}
		if p.Type == event.Mob {
			p.MobTier = pickTier(r, level)
		}
		if p.Type == event.Mob || p.Type == event.Chest {
			p.IsMajor = r.NextDouble() < MajorChance
		}
		out = append(out, p)
	}
	return out
}

func typeWeights(c hero.Class) []weighted {
	fav := c.Traits().Favoured
	w := make([]weighted, len(baseWeights))
	copy(w, baseWeights)
	for i := range w {
		if w[i].typ == fav {
			w[i].weight += classBias
		}
	}
	return w
}

func pickType(r *rng.SplitMix64, weights []weighted) event.Type {
	total := 0
	for _, w := range weights {
		total += w.weight
	}
	roll := r.NextInt(total)
	acc := 0
	for _, w := range weights {
		acc += w.weight
		if roll < acc {
			return w.typ
		}
	}
	return weights[len(weights)-1].typ
}

// tierWeights shifts mob encounters toward tougher tiers as the hero levels.
func tierWeights(level int) (light, mid, rare int) {
	light = 70 - 3*level
	if light < 20 {
		light = 20
	}
	rare = 5 + level
	if rare > 25 {
		rare = 25
	}
	return light, 100 - light - rare, rare
}

func pickTier(r *rng.SplitMix64, level int) event.MobTier {
	light, mid, _ := tierWeights(level)
	roll := r.NextInt(100)
	switch {
	case roll < light:
		return event.TierLight
	case roll < light+mid:
		return event.TierMid
	default:
		return event.TierRare
	}
}
