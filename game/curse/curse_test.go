package curse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var noon = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	return NewService(DefaultRules(), time.UTC)
}

func TestIsInGrace(t *testing.T) {
	s := newTestService()
	assert.True(t, s.IsInGrace(0))
	assert.True(t, s.IsInGrace(29*time.Second))
	assert.False(t, s.IsInGrace(30*time.Second))
	assert.False(t, s.IsInGrace(5*time.Minute))
}

func TestApplyRetreatCurse_NewAndExtend(t *testing.T) {
	s := newTestService()
	exp := s.ApplyRetreatCurse("h1", noon, 20*time.Minute)
	assert.Equal(t, noon.Add(20*time.Minute), exp)

	eff, ok := s.Active("h1", noon)
	require.True(t, ok)
	assert.Equal(t, TypeEarlyExit, eff.Type)
	assert.Equal(t, 0.5, eff.GoldMultiplier)
	assert.Equal(t, 0.5, eff.XPMultiplier)

	// A second retreat one minute later stacks on the existing expiry.
	later := noon.Add(time.Minute)
	exp = s.ApplyRetreatCurse("h1", later, 5*time.Minute)
	assert.Equal(t, noon.Add(25*time.Minute), exp)
	assert.Equal(t, 24*time.Minute, s.Remaining("h1", later))
}

func TestApplyRetreatCurse_Cap(t *testing.T) {
	s := newTestService()
	exp := s.ApplyRetreatCurse("h1", noon, 3*time.Hour)
	assert.Equal(t, noon.Add(30*time.Minute), exp)

	exp = s.ApplyRetreatCurse("h1", noon, 20*time.Minute)
	assert.Equal(t, noon.Add(30*time.Minute), exp)
}

func TestApplyRetreatCurse_MidnightCap(t *testing.T) {
	s := newTestService()
	now := time.Date(2026, 3, 2, 23, 50, 0, 0, time.UTC)
	exp := s.ApplyRetreatCurse("h1", now, 25*time.Minute)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), exp)

	rules := DefaultRules()
	rules.ResetsAtMidnight = false
	s = NewService(rules, time.UTC)
	exp = s.ApplyRetreatCurse("h1", now, 25*time.Minute)
	assert.Equal(t, now.Add(25*time.Minute), exp)
}

func TestApplyRetreatCurse_AlwaysBounded(t *testing.T) {
	s := newTestService()
	now := noon
	for i := 0; i < 200; i++ {
		now = now.Add(time.Duration(i%7) * time.Second)
		exp := s.ApplyRetreatCurse("h1", now, time.Duration(i)*time.Minute)
		require.False(t, exp.After(now.Add(30*time.Minute)))
		require.False(t, exp.After(s.EndOfDay(now)))
	}
}

func TestApplyRetreatCurse_NegativeRemaining(t *testing.T) {
	s := newTestService()
	exp := s.ApplyRetreatCurse("h1", noon, -time.Minute)
	assert.Equal(t, noon, exp)
	_, ok := s.Active("h1", noon)
	assert.False(t, ok)
}

func TestApplyRetreatCurse_NothingRemaining(t *testing.T) {
	s := newTestService()
	exp := s.ApplyRetreatCurse("h1", noon, 0)
	assert.Equal(t, noon, exp)
	assert.Empty(t, s.effects)

	// An active curse is neither extended nor cut short.
	s.ApplyRetreatCurse("h1", noon, 10*time.Minute)
	exp = s.ApplyRetreatCurse("h1", noon.Add(time.Minute), 0)
	assert.Equal(t, noon.Add(10*time.Minute), exp)
	assert.Equal(t, 9*time.Minute, s.Remaining("h1", noon.Add(time.Minute)))
}

func TestOnTick_DecaysWhileQuesting(t *testing.T) {
	s := newTestService()
	s.ApplyRetreatCurse("h1", noon, 10*time.Minute)

	// First tick only sets the watermark.
	assert.Equal(t, 10*time.Minute, s.OnTick("h1", true, noon))

	// At the same wall clock, one minute of questing pays one minute off
	// on top of the minute that passed.
	now := noon.Add(time.Minute)
	assert.Equal(t, 8*time.Minute, s.OnTick("h1", true, now))

	// A repeated tick at the same instant changes nothing.
	assert.Equal(t, 8*time.Minute, s.OnTick("h1", true, now))
}

func TestOnTick_NoDecayWhenIdle(t *testing.T) {
	s := newTestService()
	s.ApplyRetreatCurse("h1", noon, 10*time.Minute)
	s.OnTick("h1", false, noon)
	now := noon.Add(time.Minute)
	assert.Equal(t, 9*time.Minute, s.OnTick("h1", false, now))
}

func TestOnTick_PurgesExpired(t *testing.T) {
	s := newTestService()
	s.ApplyRetreatCurse("h1", noon, 2*time.Minute)
	s.OnTick("h1", true, noon)
	assert.Zero(t, s.OnTick("h1", true, noon.Add(time.Minute)))
	_, ok := s.Active("h1", noon.Add(time.Minute))
	assert.False(t, ok)
}

func TestResetWatermark(t *testing.T) {
	s := newTestService()
	s.ApplyRetreatCurse("h1", noon, 10*time.Minute)
	s.OnTick("h1", true, noon)
	s.ResetWatermark("h1")
	// The gap before the next tick is not counted as questing time.
	assert.Equal(t, 8*time.Minute, s.OnTick("h1", true, noon.Add(2*time.Minute)))
}

func TestClearCurse(t *testing.T) {
	s := newTestService()
	assert.False(t, s.ClearCurse("h1", noon))
	s.ApplyRetreatCurse("h1", noon, 10*time.Minute)
	assert.True(t, s.ClearCurse("h1", noon))
	assert.Zero(t, s.Remaining("h1", noon))
}

func TestEndOfDay_Location(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	s := NewService(DefaultRules(), tokyo)
	// 16:00 UTC is 01:00 the next day in Tokyo.
	got := s.EndOfDay(time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, tokyo), got)
}
