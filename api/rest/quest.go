package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"go.uber.org/zap"
)

// QuestHandler turns quest REST calls into store intents.
type QuestHandler struct {
	mgr    *quest.Manager
	repo   quest.Repository
	logger *zap.Logger
}

// NewQuestHandler creates a QuestHandler.
func NewQuestHandler(mgr *quest.Manager, repo quest.Repository, logger *zap.Logger) *QuestHandler {
	return &QuestHandler{mgr: mgr, repo: repo, logger: logger}
}

type startRequest struct {
	Minutes int    `json:"minutes" binding:"required,min=1"`
	Class   string `json:"class"`
}

// State returns the hero's current quest state.
// GET /api/quest
func (h *QuestHandler) State(c *gin.Context) {
	st, err := h.mgr.Store(c.Request.Context(), mw.GetHeroID(c))
	if err != nil {
		h.respond(c, quest.State{}, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": st.State()})
}

// Start begins a quest.
// POST /api/quest/start
func (h *QuestHandler) Start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.process(c, quest.StartQuest{Minutes: req.Minutes, Class: hero.Class(req.Class)})
}

// GiveUp abandons the active quest.
// POST /api/quest/giveup
func (h *QuestHandler) GiveUp(c *gin.Context) { h.process(c, quest.GiveUp{}) }

// Complete finishes the active quest.
// POST /api/quest/complete
func (h *QuestHandler) Complete(c *gin.Context) { h.process(c, quest.Complete{}) }

// Refresh reloads the quest from storage.
// POST /api/quest/refresh
func (h *QuestHandler) Refresh(c *gin.Context) { h.process(c, quest.Refresh{}) }

// ClearError dismisses the current error.
// POST /api/quest/clear-error
func (h *QuestHandler) ClearError(c *gin.Context) { h.process(c, quest.ClearError{}) }

// Log returns a quest and its adventure log. Only the owner may read it.
// GET /api/quest/:id/log
func (h *QuestHandler) Log(c *gin.Context) {
	ctx := c.Request.Context()
	q, err := h.repo.GetQuest(ctx, c.Param("id"))
	if errors.Is(err, quest.ErrQuestNotFound) || (err == nil && q.HeroID != mw.GetHeroID(c)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "quest not found"})
		return
	}
	if err != nil {
		h.logger.Error("load quest failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	events, err := h.repo.GetQuestEvents(ctx, q.ID)
	if err != nil {
		h.logger.Error("load quest log failed", zap.String("quest_id", q.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quest": q, "events": events})
}

// List returns the hero's quests, newest first.
// GET /api/quest/list?limit=20
func (h *QuestHandler) List(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	quests, err := h.repo.ListQuests(c.Request.Context(), mw.GetHeroID(c), limit)
	if err != nil {
		h.logger.Error("list quests failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quests": quests})
}

func (h *QuestHandler) process(c *gin.Context, in quest.Intent) {
	st, err := h.mgr.Process(c.Request.Context(), mw.GetHeroID(c), in)
	h.respond(c, st, err)
}

// respond maps lifecycle errors to HTTP statuses. Timing errors still carry
// a committed quest, so they are a 200 with a warning.
func (h *QuestHandler) respond(c *gin.Context, st quest.State, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"state": st})
		return
	}
	var qe *quest.Error
	if !errors.As(err, &qe) {
		if errors.Is(err, quest.ErrManagerClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		h.logger.Error("quest request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	switch qe.Kind {
	case quest.KindTiming:
		c.JSON(http.StatusOK, gin.H{"state": st, "warning": qe})
	case quest.KindPersistence:
		c.JSON(http.StatusServiceUnavailable, gin.H{"state": st, "error": qe})
	default:
		c.JSON(validationStatus(qe.Err), gin.H{"state": st, "error": qe})
	}
}

func validationStatus(err error) int {
	switch {
	case errors.Is(err, quest.ErrQuestActive),
		errors.Is(err, quest.ErrAlreadyEnded),
		errors.Is(err, quest.ErrNotFinished):
		return http.StatusConflict
	case errors.Is(err, quest.ErrNoActiveQuest),
		errors.Is(err, quest.ErrUnknownHero):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
