// Package curse manages the retreat curse: a time-boxed debuff applied when a
// hero abandons a quest early. Repeated retreats extend the curse, while the
// hard cap and the daily reset keep it bounded. Time spent questing pays it
// down.
package curse

import (
	"sync"
	"time"
)

// TypeEarlyExit is the only status effect type this service manages.
const TypeEarlyExit = "curse_early_exit"

// Rules is the fixed curse configuration.
type Rules struct {
	Grace            time.Duration
	Cap              time.Duration
	ResetsAtMidnight bool
	GoldMultiplier   float64
	XPMultiplier     float64
}

// DefaultRules returns 30s grace, a 30 minute cap, a daily reset and halved gains.
func DefaultRules() Rules {
	return Rules{
		Grace:            30 * time.Second,
		Cap:              30 * time.Minute,
		ResetsAtMidnight: true,
		GoldMultiplier:   0.5,
		XPMultiplier:     0.5,
	}
}

// StatusEffect is the active curse of one hero.
type StatusEffect struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	GoldMultiplier float64   `json:"multiplier_gold"`
	XPMultiplier   float64   `json:"multiplier_xp"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Service holds at most one curse per hero, in memory.
type Service struct {
	mu       sync.Mutex
	rules    Rules
	loc      *time.Location
	effects  map[string]*StatusEffect
	lastTick map[string]time.Time
}

// NewService creates a Service. Midnight is computed in loc (time.Local if nil).
func NewService(rules Rules, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		rules:    rules,
		loc:      loc,
		effects:  make(map[string]*StatusEffect),
		lastTick: make(map[string]time.Time),
	}
}

// Rules returns the configuration.
func (s *Service) Rules() Rules { return s.rules }

// IsInGrace reports whether abandoning after elapsed is free of penalty.
func (s *Service) IsInGrace(elapsed time.Duration) bool {
	return elapsed < s.rules.Grace
}

// OnTick decays the hero's curse by the time since the previous tick while a
// quest is active, purges an expired curse and returns the time left.
func (s *Service) OnTick(heroID string, questActive bool, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, seen := s.lastTick[heroID]
	s.lastTick[heroID] = now
	if eff, ok := s.effects[heroID]; ok && questActive && seen && now.After(last) {
		eff.ExpiresAt = eff.ExpiresAt.Add(-now.Sub(last))
	}
	return s.remainingLocked(heroID, now)
}

// ApplyRetreatCurse starts or extends the hero's curse by remaining and
// returns the new expiry, capped at now+Cap and, when configured, at the next
// local midnight.
func (s *Service) ApplyRetreatCurse(heroID string, now time.Time, remaining time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if remaining < 0 {
		remaining = 0
	}
	eff := s.activeLocked(heroID, now)
	if eff == nil && remaining == 0 {
		return now
	}
	base := now
	if eff != nil {
		base = eff.ExpiresAt
	} else {
		eff = &StatusEffect{ID: heroID + ":" + TypeEarlyExit, Type: TypeEarlyExit}
		s.effects[heroID] = eff
	}

	expiry := base.Add(remaining)
	if limit := s.limit(now); expiry.After(limit) {
		expiry = limit
	}
	eff.ExpiresAt = expiry
	eff.GoldMultiplier = s.rules.GoldMultiplier
	eff.XPMultiplier = s.rules.XPMultiplier
	return expiry
}

// ClearCurse removes the hero's active curse. It reports whether one was removed.
func (s *Service) ClearCurse(heroID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := s.activeLocked(heroID, now) != nil
	delete(s.effects, heroID)
	return active
}

// Remaining returns the non-negative time left on the hero's curse.
func (s *Service) Remaining(heroID string, now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked(heroID, now)
}

// Active returns a copy of the hero's curse if one is in effect at now.
func (s *Service) Active(heroID string, now time.Time) (StatusEffect, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eff := s.activeLocked(heroID, now)
	if eff == nil {
		return StatusEffect{}, false
	}
	return *eff, true
}

// ResetWatermark forgets the last tick time, so the next tick does not count
// the gap as questing time.
func (s *Service) ResetWatermark(heroID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastTick, heroID)
}

// EndOfDay returns the next local midnight after t.
func (s *Service) EndOfDay(t time.Time) time.Time {
	lt := t.In(s.loc)
	y, m, d := lt.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, s.loc)
}

func (s *Service) limit(now time.Time) time.Time {
	limit := now.Add(s.rules.Cap)
	if s.rules.ResetsAtMidnight {
		if eod := s.EndOfDay(now); eod.Before(limit) {
			limit = eod
		}
	}
	return limit
}

// activeLocked returns the live curse or purges an expired one.
func (s *Service) activeLocked(heroID string, now time.Time) *StatusEffect {
	eff, ok := s.effects[heroID]
	if !ok {
		return nil
	}
	if !now.Before(eff.ExpiresAt) {
		delete(s.effects, heroID)
		return nil
	}
	return eff
}

func (s *Service) remainingLocked(heroID string, now time.Time) time.Duration {
	eff := s.activeLocked(heroID, now)
	if eff == nil {
		return 0
	}
	return eff.ExpiresAt.Sub(now)
}
