package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/api/rest"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"github.com/kasuganosora/focusquest/scheduler"
	"github.com/kasuganosora/focusquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

var testSec = config.SecurityConfig{JWTSecret: "test-secret", JWTTTLH: 72 * time.Hour}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAuditor) Log(e audit.Entry) {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Action
	}
	return out
}

// env wires every handler over one in-memory database and cache.
type env struct {
	r      *gin.Engine
	db     *gorm.DB
	cache  cache.Cache
	mgr    *quest.Manager
	clock  *scheduler.Clock
	sched  *scheduler.Scheduler
	audit  *recordingAuditor
	logger *zap.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := nopLogger()
	aud := &recordingAuditor{}
	clock := scheduler.NewClock()
	sched := scheduler.New(logger)
	repo := quest.NewGormRepository(db)

	ctx, cancel := context.WithCancel(context.Background())
	mgr := quest.NewManager(ctx, quest.DefaultConfig(), quest.Deps{
		Repo:   repo,
		Audit:  aud,
		Logger: logger,
	}, clock, c, ps)
	t.Cleanup(func() {
		mgr.Close()
		sched.Stop()
		cancel()
	})

	authH := rest.NewAuthHandler(db, c, testSec, aud)
	questH := rest.NewQuestHandler(mgr, repo, logger)
	heroH := rest.NewHeroHandler(mgr, repo, logger)
	rankH := rest.NewRankingHandler(db, c, logger)

	r := gin.New()
	r.POST("/api/auth/login", authH.Login)
	api := r.Group("/api", mw.Auth(testSec, c))
	api.POST("/auth/logout", authH.Logout)
	api.POST("/auth/refresh", authH.Refresh)
	api.GET("/hero", heroH.Me)
	api.GET("/hero/classes", heroH.Classes)
	api.GET("/quest", questH.State)
	api.GET("/quest/list", questH.List)
	api.GET("/quest/:id/log", questH.Log)
	api.POST("/quest/start", questH.Start)
	api.POST("/quest/giveup", questH.GiveUp)
	api.POST("/quest/complete", questH.Complete)
	api.POST("/quest/refresh", questH.Refresh)
	api.POST("/quest/clear-error", questH.ClearError)
	api.GET("/ranking/xp", rankH.TopXP)
	api.POST("/ranking/refresh", rankH.RefreshRanking)

	return &env{r: r, db: db, cache: c, mgr: mgr, clock: clock, sched: sched, audit: aud, logger: logger}
}

// login registers (or logs in) username and returns its token and hero ID.
func (e *env) login(t *testing.T, username string) (string, string) {
	t.Helper()
	w := postJSON(e.r, "/api/auth/login", map[string]string{"username": username, "password": "pass1234"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	return resp["token"].(string), resp["hero_id"].(string)
}

func postJSON(r *gin.Engine, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func getJSON(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) []string { return []string{"Authorization", "Bearer " + token} }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}
