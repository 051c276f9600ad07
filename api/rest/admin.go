package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/game/quest"
	"github.com/kasuganosora/focusquest/model"
	"github.com/kasuganosora/focusquest/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	mgr    *quest.Manager
	clock  *scheduler.Clock
	sched  *scheduler.Scheduler
	cache  cache.Cache
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	mgr *quest.Manager,
	clock *scheduler.Clock,
	sched *scheduler.Scheduler,
	c cache.Cache,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, mgr: mgr, clock: clock, sched: sched, cache: c, logger: logger}
}

// Metrics returns server health metrics.
// GET /api/admin/metrics
func (h *AdminHandler) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"loaded_heroes":     h.mgr.Loaded(),
		"active_quests":     h.mgr.ActiveQuests(),
		"clock_subscribers": h.clock.Subscribers(),
		"scheduler_tasks":   h.sched.ListTickers(),
	})
}

// BanHero bans or unbans a hero. A banned hero's store is evicted; its
// active quest stays in storage.
// POST /api/admin/heroes/:id/ban
func (h *AdminHandler) BanHero(c *gin.Context) {
	heroID := c.Param("id")
	var req struct {
		Ban bool `json:"ban"`
	}
	_ = c.ShouldBindJSON(&req)

	status := 1
	if req.Ban {
		status = 0
	}
	result := h.db.Model(&model.Hero{}).Where("id = ?", heroID).Update("status", status)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "hero not found"})
		return
	}
	if req.Ban {
		h.mgr.Evict(heroID)
		_ = h.cache.ZRem(c.Request.Context(), quest.RankingKey, heroID)
	}
	h.logger.Info("admin changed hero status", zap.String("hero_id", heroID), zap.Int("status", status))
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": status})
}

// ClearCurse lifts a hero's retreat curse.
// POST /api/admin/heroes/:id/curse/clear
func (h *AdminHandler) ClearCurse(c *gin.Context) {
	heroID := c.Param("id")
	cleared := h.mgr.ClearCurse(c.Request.Context(), heroID)
	h.logger.Info("admin cleared curse", zap.String("hero_id", heroID), zap.Bool("cleared", cleared))
	c.JSON(http.StatusOK, gin.H{"ok": true, "cleared": cleared})
}

// AuditLog lists recent audit entries, optionally for one hero.
// GET /api/admin/audit?hero_id=...&limit=50
func (h *AdminHandler) AuditLog(c *gin.Context) {
	limit := 50
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}
	q := h.db.Order("id DESC").Limit(limit)
	if heroID := c.Query("hero_id"); heroID != "" {
		q = q.Where("hero_id = ?", heroID)
	}
	var logs []model.AuditLog
	if err := q.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": logs, "count": len(logs)})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
