package event

import (
	"encoding/json"
	"fmt"
)

// Outcome is the result of an encounter. The variants are Win, Flee and None.
type Outcome interface {
	outcome()
}

// Win means the hero defeated the mob.
type Win struct {
	MobName  string
	MobLevel int
}

// Flee means the hero ran from a mob that was too strong.
type Flee struct {
	MobName  string
	MobLevel int
}

// None is the outcome of every non-combat event.
type None struct{}

func (Win) outcome()  {}
func (Flee) outcome() {}
func (None) outcome() {}

// OutcomeRecord is the flat, serializable form of an Outcome.
type OutcomeRecord struct {
	Kind     string `json:"kind"`
	MobName  string `json:"mob_name,omitempty"`
	MobLevel int    `json:"mob_level,omitempty"`
}

const (
	kindWin  = "win"
	kindFlee = "flee"
	kindNone = "none"
)

// Record flattens o. A nil outcome is recorded as none.
func Record(o Outcome) OutcomeRecord {
	switch v := o.(type) {
	case Win:
		return OutcomeRecord{Kind: kindWin, MobName: v.MobName, MobLevel: v.MobLevel}
	case Flee:
		return OutcomeRecord{Kind: kindFlee, MobName: v.MobName, MobLevel: v.MobLevel}
	default:
		return OutcomeRecord{Kind: kindNone}
	}
}

// Outcome rebuilds the variant described by r.
func (r OutcomeRecord) Outcome() (Outcome, error) {
	switch r.Kind {
	case kindWin:
		return Win{MobName: r.MobName, MobLevel: r.MobLevel}, nil
	case kindFlee:
		return Flee{MobName: r.MobName, MobLevel: r.MobLevel}, nil
	case kindNone, "":
		return None{}, nil
	default:
		return nil, fmt.Errorf("event: unknown outcome kind %q", r.Kind)
	}
}

// MarshalJSON encodes the outcome as a tagged record.
func (e QuestEvent) MarshalJSON() ([]byte, error) {
	type plain QuestEvent
	return json.Marshal(struct {
		plain
		Outcome OutcomeRecord `json:"outcome"`
	}{plain: plain(e), Outcome: Record(e.Outcome)})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (e *QuestEvent) UnmarshalJSON(data []byte) error {
	type plain QuestEvent
	var raw struct {
		plain
		Outcome OutcomeRecord `json:"outcome"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o, err := raw.Outcome.Outcome()
	if err != nil {
		return err
	}
	*e = QuestEvent(raw.plain)
	e.Outcome = o
	return nil
}
