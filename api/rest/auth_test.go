package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginAutoRegister(t *testing.T) {
	e := newEnv(t)

	w := postJSON(e.r, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "pass1234",
		"class":    "rogue",
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	assert.NotEmpty(t, resp["token"])
	assert.NotEmpty(t, resp["hero_id"])
	assert.Equal(t, "rogue", resp["class"])

	var hr model.Hero
	require.NoError(t, e.db.Where("username = ?", "alice").First(&hr).Error)
	assert.Equal(t, 1, hr.Level)
	assert.Equal(t, []string{audit.ActionRegister}, e.audit.actions())
}

func TestLoginUnknownClass(t *testing.T) {
	e := newEnv(t)
	w := postJSON(e.r, "/api/auth/login", map[string]string{
		"username": "alice",
		"password": "pass1234",
		"class":    "bard",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	e := newEnv(t)

	postJSON(e.r, "/api/auth/login", map[string]string{"username": "bob", "password": "correct"})

	w := postJSON(e.r, "/api/auth/login", map[string]string{"username": "bob", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginSecondTime(t *testing.T) {
	e := newEnv(t)

	_, id1 := e.login(t, "carol")
	_, id2 := e.login(t, "carol")
	assert.Equal(t, id1, id2)
	assert.Equal(t, []string{audit.ActionRegister, audit.ActionLogin}, e.audit.actions())
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "dave")

	w := postJSON(e.r, "/api/auth/logout", nil, bearer(token)...)
	assert.Equal(t, http.StatusOK, w.Code)

	// Session removed.
	w = postJSON(e.r, "/api/auth/logout", nil, bearer(token)...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)
	token, _ := e.login(t, "refreshuser")

	w := postJSON(e.r, "/api/auth/refresh", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)
	newToken := decode(t, w)["token"].(string)
	assert.NotEmpty(t, newToken)

	w = getJSON(e.r, "/api/hero", newToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRefresh_NoToken(t *testing.T) {
	e := newEnv(t)
	w := postJSON(e.r, "/api/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginBannedHero(t *testing.T) {
	e := newEnv(t)
	e.login(t, "bannedhero")

	e.db.Model(&model.Hero{}).Where("username = ?", "bannedhero").Update("status", 0)

	w := postJSON(e.r, "/api/auth/login", map[string]string{"username": "bannedhero", "password": "pass1234"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}
