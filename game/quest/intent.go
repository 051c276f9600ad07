package quest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/loot"
)

var jsonMarshal = json.Marshal

// Intent is an input to Store.Process. The variants are Refresh, StartQuest,
// Tick, GiveUp, Complete and ClearError.
type Intent interface {
	intent()
}

// Refresh rehydrates the store from storage and replays due events.
type Refresh struct{}

// StartQuest begins a quest. An empty Class uses the hero's class.
type StartQuest struct {
	Minutes int
	Class   hero.Class
}

// Tick advances the active quest to At.
type Tick struct {
	At time.Time
}

// GiveUp abandons the active quest.
type GiveUp struct{}

// Complete finishes the active quest once its planned end has passed.
type Complete struct{}

// ClearError dismisses the current error.
type ClearError struct{}

func (Refresh) intent()    {}
func (StartQuest) intent() {}
func (Tick) intent()       {}
func (GiveUp) intent()     {}
func (Complete) intent()   {}
func (ClearError) intent() {}

// Routes carried by Navigate.
const (
	RouteHome    = "home"
	RouteQuest   = "quest"
	RouteSummary = "summary"
)

// Effect is a one-shot output of Store.Process. The variants are Navigate,
// ShowError and QuestFinished.
type Effect interface {
	effect()
}

// Navigate asks the client to switch screens.
type Navigate struct {
	Route string
}

// ShowError asks the client to show an error.
type ShowError struct {
	Err *Error
}

// QuestFinished reports a committed terminal transition.
type QuestFinished struct {
	Quest          Quest
	Loot           loot.Loot
	Cursed         bool
	CurseExpiresAt *time.Time
}

func (Navigate) effect()      {}
func (ShowError) effect()     {}
func (QuestFinished) effect() {}

// EncodeEffect renders an effect as a tagged JSON object.
func EncodeEffect(e Effect) ([]byte, error) {
	switch v := e.(type) {
	case Navigate:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Route string `json:"route"`
		}{"navigate", v.Route})
	case ShowError:
		return json.Marshal(struct {
			Type  string `json:"type"`
			Error *Error `json:"error"`
		}{"show_error", v.Err})
	case QuestFinished:
		return json.Marshal(struct {
			Type           string     `json:"type"`
			Quest          Quest      `json:"quest"`
			Loot           loot.Loot  `json:"loot"`
			Cursed         bool       `json:"cursed"`
			CurseExpiresAt *time.Time `json:"curse_expires_at,omitempty"`
		}{"quest_finished", v.Quest, v.Loot, v.Cursed, v.CurseExpiresAt})
	default:
		return nil, fmt.Errorf("quest: unknown effect %T", e)
	}
}
