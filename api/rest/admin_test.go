package rest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/api/rest"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/game/quest"
	"github.com/kasuganosora/focusquest/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(t *testing.T, e *env, adminKey string) *gin.Engine {
	h := rest.NewAdminHandler(e.db, e.mgr, e.clock, e.sched, e.cache, e.logger)

	r := gin.New()
	r.Use(rest.AdminAuth(adminKey))
	r.GET("/api/admin/metrics", h.Metrics)
	r.GET("/api/admin/scheduler", h.ListSchedulerTasks)
	r.GET("/api/admin/audit", h.AuditLog)
	r.POST("/api/admin/heroes/:id/ban", h.BanHero)
	r.POST("/api/admin/heroes/:id/curse/clear", h.ClearCurse)
	return r
}

func adminGet(r *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func adminPost(r *gin.Engine, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- AdminAuth ----

func TestAdminAuth_NoKey_Disabled(t *testing.T) {
	r := newAdminRouter(t, newEnv(t), "")
	w := adminGet(r, "/api/admin/metrics", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdminAuth_WrongKey(t *testing.T) {
	r := newAdminRouter(t, newEnv(t), "secret")
	w := adminGet(r, "/api/admin/metrics", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_CorrectKey(t *testing.T) {
	r := newAdminRouter(t, newEnv(t), "secret")
	w := adminGet(r, "/api/admin/metrics", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---- Metrics ----

func TestMetrics_CountsLoadedHeroes(t *testing.T) {
	e := newEnv(t)
	r := newAdminRouter(t, e, "test-key")
	token, _ := e.login(t, "metered")
	w := postJSON(e.r, "/api/quest/start", map[string]int{"minutes": 25}, bearer(token)...)
	require.Equal(t, http.StatusOK, w.Code)

	w = adminGet(r, "/api/admin/metrics", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(1), resp["loaded_heroes"])
	assert.Equal(t, float64(1), resp["active_quests"])
	assert.Equal(t, float64(1), resp["clock_subscribers"])
	assert.Contains(t, resp, "scheduler_tasks")
}

func TestListSchedulerTasks(t *testing.T) {
	e := newEnv(t)
	e.sched.AddTicker("ranking_rebuild", time.Hour, func(time.Time) {})
	r := newAdminRouter(t, e, "test-key")

	w := adminGet(r, "/api/admin/scheduler", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{"ranking_rebuild"}, decode(t, w)["tasks"])
}

// ---- BanHero ----

func TestBanHero_NotFound(t *testing.T) {
	r := newAdminRouter(t, newEnv(t), "test-key")
	w := adminPost(r, "/api/admin/heroes/missing/ban", "test-key", `{"ban":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBanHero_EvictsAndBlocksLogin(t *testing.T) {
	e := newEnv(t)
	r := newAdminRouter(t, e, "test-key")
	token, heroID := e.login(t, "troublemaker")
	require.Equal(t, http.StatusOK, getJSON(e.r, "/api/quest", token).Code)
	require.NoError(t, e.cache.ZAdd(context.Background(), quest.RankingKey, 10, heroID))
	require.Equal(t, 1, e.mgr.Loaded())

	w := adminPost(r, "/api/admin/heroes/"+heroID+"/ban", "test-key", `{"ban":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, e.mgr.Loaded())

	var hr model.Hero
	require.NoError(t, e.db.First(&hr, "id = ?", heroID).Error)
	assert.Equal(t, 0, hr.Status)

	w = postJSON(e.r, "/api/auth/login", map[string]string{"username": "troublemaker", "password": "pass1234"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = adminPost(r, "/api/admin/heroes/"+heroID+"/ban", "test-key", `{"ban":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, e.db.First(&hr, "id = ?", heroID).Error)
	assert.Equal(t, 1, hr.Status)
}

// ---- ClearCurse ----

func TestClearCurse(t *testing.T) {
	e := newEnv(t)
	r := newAdminRouter(t, e, "test-key")
	token, heroID := e.login(t, "cursed")
	require.Equal(t, http.StatusOK, getJSON(e.r, "/api/quest", token).Code)

	w := adminPost(r, "/api/admin/heroes/"+heroID+"/curse/clear", "test-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["cleared"])

	e.mgr.Curse().ApplyRetreatCurse(heroID, time.Now(), 10*time.Minute)
	w = getJSON(e.r, "/api/hero", token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "curse")

	w = adminPost(r, "/api/admin/heroes/"+heroID+"/curse/clear", "test-key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["cleared"])
	assert.Contains(t, e.audit.actions(), audit.ActionCurseClear)
}

// ---- AuditLog ----

func TestAuditLog_FiltersByHero(t *testing.T) {
	e := newEnv(t)
	r := newAdminRouter(t, e, "test-key")
	require.NoError(t, e.db.Create(&[]model.AuditLog{
		{TraceID: "t1", HeroID: "a", Action: audit.ActionLogin},
		{TraceID: "t2", HeroID: "b", Action: audit.ActionLogin},
		{TraceID: "t3", HeroID: "a", Action: audit.ActionQuestStart},
	}).Error)

	w := adminGet(r, "/api/admin/audit?hero_id=a", "test-key")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, float64(2), resp["count"])
	first := resp["entries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, audit.ActionQuestStart, first["action"])
}
