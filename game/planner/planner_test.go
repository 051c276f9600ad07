package planner

import (
	"testing"
	"time"

	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/rng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func scenarioSpec() Spec {
	return Spec{
		DurationMinutes: 25,
		Seed:            rng.DeriveSeed(t0, "h1", "q1"),
		StartAt:         t0,
		HeroLevel:       3,
		Class:           hero.Adventurer,
	}
}

func TestPlan_Deterministic(t *testing.T) {
	spec := scenarioSpec()
	a := Plan("q1", spec)
	b := Plan("q1", spec)
	require.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestPlan_ScenarioGolden(t *testing.T) {
	events := Plan("q1", scenarioSpec())

	type row struct {
		offsetMs int64
		typ      event.Type
		tier     event.MobTier
		major    bool
	}
	want := []row{
		{43764, event.Chest, event.TierNone, false},
		{195705, event.Quirky, event.TierNone, false},
		{409563, event.Mob, event.TierLight, true},
		{509110, event.Quirky, event.TierNone, false},
		{672304, event.Quirky, event.TierNone, false},
		{846659, event.Mob, event.TierLight, false},
		{943720, event.Narration, event.TierNone, false},
		{1103113, event.Mob, event.TierLight, false},
		{1290909, event.Mob, event.TierMid, false},
		{1402024, event.Narration, event.TierNone, false},
	}
	require.Len(t, events, len(want))
	for i, w := range want {
		e := events[i]
		assert.Equal(t, "q1", e.QuestID)
		assert.Equal(t, i, e.Idx)
		assert.Equal(t, w.offsetMs, e.DueAt.Sub(t0).Milliseconds(), "idx %d", i)
		assert.Equal(t, w.typ, e.Type, "idx %d", i)
		assert.Equal(t, w.tier, e.MobTier, "idx %d", i)
		assert.Equal(t, w.major, e.IsMajor, "idx %d", i)
	}
}

func TestPlan_OrderingAndBounds(t *testing.T) {
	for _, minutes := range []int{1, 2, 5, 25, 60, 180, 600} {
		spec := scenarioSpec()
		spec.DurationMinutes = minutes
		events := Plan("q", spec)
		require.NotEmpty(t, events, "minutes=%d", minutes)
		end := t0.Add(time.Duration(minutes) * time.Minute)
		for i, e := range events {
			assert.Equal(t, i, e.Idx)
			assert.False(t, e.DueAt.Before(t0))
			assert.True(t, e.DueAt.Before(end))
			if i > 0 {
				assert.True(t, e.DueAt.After(events[i-1].DueAt))
			}
			if e.Type == event.Mob {
				assert.NotEqual(t, event.TierNone, e.MobTier)
			} else {
				assert.Equal(t, event.TierNone, e.MobTier)
			}
			if e.Type != event.Mob && e.Type != event.Chest {
				assert.False(t, e.IsMajor)
			}
		}
		assert.Equal(t, event.Narration, events[len(events)-1].Type)
	}
}

func TestPlan_ScalesWithDuration(t *testing.T) {
	spec := scenarioSpec()
	spec.DurationMinutes = 180
	assert.Len(t, Plan("q", spec), 72)
	spec.DurationMinutes = 600
	assert.Len(t, Plan("q", spec), MaxEvents)
}

func TestPlan_ShortQuestGetsNarration(t *testing.T) {
	spec := scenarioSpec()
	spec.DurationMinutes = 1
	events := Plan("q1", spec)
	require.Len(t, events, 1)
	assert.Equal(t, event.Narration, events[0].Type)
	assert.Equal(t, int64(21264), events[0].DueAt.Sub(t0).Milliseconds())
}

func TestPlan_NonPositiveDuration(t *testing.T) {
	spec := scenarioSpec()
	spec.DurationMinutes = 0
	assert.Empty(t, Plan("q", spec))
	spec.DurationMinutes = -10
	assert.Empty(t, Plan("q", spec))
}

func TestPlan_SeedChangesSchedule(t *testing.T) {
	a := scenarioSpec()
	b := a
	b.Seed++
	assert.NotEqual(t, Plan("q", a), Plan("q", b))
}

func TestTierWeights_ShiftWithLevel(t *testing.T) {
	light, mid, rare := tierWeights(1)
	assert.Equal(t, []int{67, 27, 6}, []int{light, mid, rare})
	light, mid, rare = tierWeights(10)
	assert.Equal(t, []int{40, 45, 15}, []int{light, mid, rare})
	light, mid, rare = tierWeights(40)
	assert.Equal(t, []int{20, 55, 25}, []int{light, mid, rare})
}

func TestTypeWeights_ClassBias(t *testing.T) {
	w := typeWeights(hero.Rogue)
	for _, e := range w {
		if e.typ == event.Chest {
			assert.Equal(t, 25, e.weight)
		}
	}
	assert.Equal(t, baseWeights, typeWeights(hero.Adventurer))
}
