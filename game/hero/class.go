// Package hero holds hero class traits and the level curve.
package hero

import (
	"errors"
	"strings"

	"github.com/kasuganosora/focusquest/game/event"
)

// Class is a hero class chosen when a quest starts.
type Class string

const (
	Adventurer Class = "adventurer"
	Warrior    Class = "warrior"
	Scholar    Class = "scholar"
	Rogue      Class = "rogue"
)

// ErrUnknownClass is returned by ParseClass for names outside the class table.
var ErrUnknownClass = errors.New("hero: unknown class")

// Traits are the per-class reward multipliers (in percent) and the event type
// the class runs into more often.
type Traits struct {
	XPPercent   int
	GoldPercent int
	Favoured    event.Type // empty for no bias
}

var classTable = map[Class]Traits{
	Adventurer: {XPPercent: 100, GoldPercent: 100},
	Warrior:    {XPPercent: 110, GoldPercent: 90, Favoured: event.Mob},
	Scholar:    {XPPercent: 125, GoldPercent: 75, Favoured: event.Quirky},
	Rogue:      {XPPercent: 90, GoldPercent: 125, Favoured: event.Chest},
}

// Traits returns the traits of c. Unknown classes fall back to Adventurer.
func (c Class) Traits() Traits {
	if t, ok := classTable[c]; ok {
		return t
	}
	return classTable[Adventurer]
}

// ParseClass converts user input into a Class. Empty input selects Adventurer.
func ParseClass(s string) (Class, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Adventurer, nil
	}
	c := Class(s)
	if _, ok := classTable[c]; !ok {
		return "", ErrUnknownClass
	}
	return c, nil
}
