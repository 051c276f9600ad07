package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/focusquest/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	st, ok := resp["state"].(map[string]interface{})
	require.True(t, ok, "response has no state: %v", resp)
	return st
}

func TestQuest_RequiresAuth(t *testing.T) {
	e := newEnv(t)
	w := postJSON(e.r, "/api/quest/start", map[string]int{"minutes": 25})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestQuest_InitialStateIsIdle(t *testing.T) {
	e := newEnv(t)
	token, heroID := e.login(t, "idle")

	w := getJSON(e.r, "/api/quest", token)
	require.Equal(t, http.StatusOK, w.Code)
	st := stateOf(t, decode(t, w))
	assert.Equal(t, "idle", st["phase"])
	assert.Equal(t, heroID, st["hero"].(map[string]interface{})["id"])
	assert.Equal(t, 1, e.mgr.Loaded())
}

func TestQuest_StartAndGiveUpInGrace(t *testing.T) {
	e := newEnv(t)
	token, heroID := e.login(t, "runner")

	w := postJSON(e.r, "/api/quest/start", map[string]interface{}{"minutes": 25, "class": "scholar"}, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	st := stateOf(t, decode(t, w))
	assert.Equal(t, "active", st["phase"])
	q := st["quest"].(map[string]interface{})
	assert.Equal(t, "scholar", q["class"])
	assert.Equal(t, float64(25), q["duration_minutes"])
	assert.Positive(t, st["planned_events"])
	questID := q["id"].(string)

	// Only one active quest per hero.
	w = postJSON(e.r, "/api/quest/start", map[string]int{"minutes": 25}, bearer(token)...)
	assert.Equal(t, http.StatusConflict, w.Code)
	errBody := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "validation", errBody["kind"])

	// Not over yet.
	w = postJSON(e.r, "/api/quest/complete", nil, bearer(token)...)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(e.r, "/api/quest/clear-error", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, stateOf(t, decode(t, w))["error"])

	w = postJSON(e.r, "/api/quest/giveup", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)
	st = stateOf(t, decode(t, w))
	assert.Equal(t, "gave_up", st["phase"])
	assert.Nil(t, st["curse"], "retreat inside the grace period is free")

	w = getJSON(e.r, "/api/quest/"+questID+"/log", token)
	require.Equal(t, http.StatusOK, w.Code)
	logged := decode(t, w)["quest"].(map[string]interface{})
	assert.Equal(t, true, logged["gave_up"])
	assert.Equal(t, heroID, logged["hero_id"])

	w = getJSON(e.r, "/api/quest/list", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["quests"].([]interface{}), 1)

	assert.Contains(t, e.audit.actions(), audit.ActionQuestStart)
	assert.Contains(t, e.audit.actions(), audit.ActionQuestGiveUp)
}

func TestQuest_StartValidation(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "picky")

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing minutes", map[string]interface{}{}},
		{"too long", map[string]interface{}{"minutes": 500}},
		{"unknown class", map[string]interface{}{"minutes": 25, "class": "bard"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(e.r, "/api/quest/start", tc.body, bearer(token)...)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestQuest_GiveUpWithoutQuest(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "nobody")

	w := postJSON(e.r, "/api/quest/giveup", nil, bearer(token)...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuest_LogIsPrivate(t *testing.T) {
	e := newEnv(t)
	owner, _ := e.login(t, "owner")
	other, _ := e.login(t, "other")

	w := postJSON(e.r, "/api/quest/start", map[string]int{"minutes": 5}, bearer(owner)...)
	require.Equal(t, http.StatusOK, w.Code)
	questID := stateOf(t, decode(t, w))["quest"].(map[string]interface{})["id"].(string)

	w = getJSON(e.r, "/api/quest/"+questID+"/log", other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = getJSON(e.r, "/api/quest/missing/log", owner)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuest_RefreshKeepsActiveQuest(t *testing.T) {
	e := newEnv(t)
	token, heroID := e.login(t, "reloader")

	w := postJSON(e.r, "/api/quest/start", map[string]int{"minutes": 10}, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)

	// A fresh store must pick the quest back up from storage.
	e.mgr.Evict(heroID)
	w = postJSON(e.r, "/api/quest/refresh", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", stateOf(t, decode(t, w))["phase"])
}
