package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/focusquest/api/rest"
	"github.com/kasuganosora/focusquest/api/sse"
	"github.com/kasuganosora/focusquest/api/ws"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
	"github.com/kasuganosora/focusquest/game/curse"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"github.com/kasuganosora/focusquest/notify"
	"github.com/kasuganosora/focusquest/scheduler"
	"github.com/kasuganosora/focusquest/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const adminKey = "integration-admin-key"

// TestServer wraps a real HTTP server with the quest engine wired together.
// Time is driven by the test through Advance.
type TestServer struct {
	DB      *gorm.DB
	Cache   cache.Cache
	PubSub  cache.PubSub
	Manager *quest.Manager
	Clock   *scheduler.Clock
	Server  *httptest.Server
	URL     string // http://127.0.0.1:<port>
	Sec     config.SecurityConfig

	now    atomic.Int64 // unix nanos
	cancel context.CancelFunc
	sched  *scheduler.Scheduler
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
	}

	ts := &TestServer{DB: db, Cache: c, PubSub: pubsub, Sec: sec}
	ts.now.Store(time.Now().UnixNano())

	// ---- Quest engine ----
	sched := scheduler.New(logger)
	clock := scheduler.NewClock()
	notifier := notify.NewService(notify.NewPubSubSink(pubsub), sched, logger)
	reg := prometheus.NewRegistry()
	repo := quest.NewGormRepository(db)
	cfg := quest.DefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	mgr := quest.NewManager(ctx, cfg, quest.Deps{
		Repo:     repo,
		Curse:    curse.NewService(curse.DefaultRules(), cfg.Location),
		Notifier: notifier,
		Metrics:  quest.NewMetrics(reg),
		Logger:   logger,
		Now:      ts.Now,
	}, clock, c, pubsub)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec, nopAuditor{})
	questH := apirest.NewQuestHandler(mgr, repo, logger)
	heroH := apirest.NewHeroHandler(mgr, repo, logger)
	rankH := apirest.NewRankingHandler(db, c, logger)
	adminH := apirest.NewAdminHandler(db, mgr, clock, sched, c, logger)
	auth := mw.Auth(sec, c)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", auth, authH.Logout)
		authG.POST("/refresh", auth, authH.Refresh)

		heroG := api.Group("/hero", auth)
		heroG.GET("", heroH.Me)

		questG := api.Group("/quest", auth, mw.RateLimitBy(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst, mw.ByHero))
		questG.GET("", questH.State)
		questG.GET("/list", questH.List)
		questG.GET("/:id/log", questH.Log)
		questG.POST("/start", questH.Start)
		questG.POST("/giveup", questH.GiveUp)
		questG.POST("/complete", questH.Complete)
		questG.POST("/refresh", questH.Refresh)
		questG.POST("/clear-error", questH.ClearError)

		api.GET("/ranking/xp", auth, rankH.TopXP)

		adminG := api.Group("/admin", apirest.AdminAuth(adminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.POST("/heroes/:id/curse/clear", adminH.ClearCurse)
	}

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- WebSocket ----
	wsH := ws.NewHandler(mgr, pubsub, c, sec, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- Start server ----
	server := httptest.NewServer(r)
	ts.Manager = mgr
	ts.Clock = clock
	ts.Server = server
	ts.URL = server.URL
	ts.cancel = cancel
	ts.sched = sched
	return ts
}

// nopAuditor discards audit entries.
type nopAuditor struct{}

func (nopAuditor) Log(audit.Entry) {}

// Close stops the server and every background worker.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Manager.Close()
	ts.sched.Stop()
	ts.cancel()
}

// Now is the server's notion of the current time.
func (ts *TestServer) Now() time.Time { return time.Unix(0, ts.now.Load()) }

// Advance moves time forward by d and broadcasts one clock tick.
func (ts *TestServer) Advance(d time.Duration) time.Time {
	now := time.Unix(0, ts.now.Add(int64(d)))
	ts.Clock.Broadcast(now)
	return now
}

func (ts *TestServer) do(t *testing.T, method, path string, body interface{}, token string, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, body, token)
}

func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodGet, path, nil, token)
}

func (ts *TestServer) AdminPost(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.do(t, http.MethodPost, path, nil, "", "X-Admin-Key", adminKey)
}

func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Login auto-registers username on first use.
func (ts *TestServer) Login(t *testing.T, username, password string) (token, heroID string) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return result["token"].(string), result["hero_id"].(string)
}

// Event is one server-sent event.
type Event struct {
	Name string
	Data map[string]interface{}
}

// SSEClient reads the /sse stream in the background.
type SSEClient struct {
	events  chan Event
	backlog []Event
	cancel  context.CancelFunc
	once   sync.Once
}

// ConnectSSE opens the event stream and waits for the connected event.
func (ts *TestServer) ConnectSSE(t *testing.T, token string) *SSEClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse?token="+token, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := &SSEClient{events: make(chan Event, 256), cancel: cancel}
	go func() {
		defer resp.Body.Close()
		defer close(sc.events)
		lines := bufio.NewScanner(resp.Body)
		lines.Buffer(make([]byte, 64*1024), 1<<20)
		var name string
		for lines.Scan() {
			l := lines.Text()
			switch {
			case strings.HasPrefix(l, "event: "):
				name = strings.TrimPrefix(l, "event: ")
			case strings.HasPrefix(l, "data: "):
				ev := Event{Name: name}
				_ = json.Unmarshal([]byte(strings.TrimPrefix(l, "data: ")), &ev.Data)
				sc.events <- ev
			}
		}
	}()
	sc.Wait(t, "connected", nil)
	t.Cleanup(sc.Close)
	return sc
}

// Wait returns the first event named name that satisfies match (nil matches
// any). Events skipped on the way are kept for later calls, since channels
// published from different goroutines may interleave.
func (sc *SSEClient) Wait(t *testing.T, name string, match func(map[string]interface{}) bool) Event {
	t.Helper()
	matches := func(ev Event) bool { return ev.Name == name && (match == nil || match(ev.Data)) }
	for i, ev := range sc.backlog {
		if matches(ev) {
			sc.backlog = append(sc.backlog[:i], sc.backlog[i+1:]...)
			return ev
		}
	}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sc.events:
			require.True(t, ok, "stream closed while waiting for %s", name)
			if matches(ev) {
				return ev
			}
			sc.backlog = append(sc.backlog, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", name)
		}
	}
}

func (sc *SSEClient) Close() { sc.once.Do(sc.cancel) }

// Field matches events whose top-level key equals want.
func Field(key string, want interface{}) func(map[string]interface{}) bool {
	return func(d map[string]interface{}) bool { return d[key] == want }
}

var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
