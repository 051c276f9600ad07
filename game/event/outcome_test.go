package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuestEventJSON_Outcome(t *testing.T) {
	ev := QuestEvent{
		QuestID:   "q1",
		Idx:       3,
		At:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Type:      Mob,
		Message:   "You defeat a Slime (Lv 1): +5 XP, +4 gold.",
		XPDelta:   5,
		GoldDelta: 4,
		Outcome:   Win{MobName: "Slime", MobLevel: 1},
	}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"outcome":{"kind":"win","mob_name":"Slime","mob_level":1}`)

	var back QuestEvent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ev, back)
}

func TestOutcomeRecord(t *testing.T) {
	assert.Equal(t, "none", Record(nil).Kind)
	o, err := OutcomeRecord{}.Outcome()
	require.NoError(t, err)
	assert.Equal(t, None{}, o)

	_, err = OutcomeRecord{Kind: "draw"}.Outcome()
	assert.Error(t, err)
}
