package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"go.uber.org/zap"
)

// HeroHandler serves the hero profile.
type HeroHandler struct {
	mgr    *quest.Manager
	repo   quest.Repository
	logger *zap.Logger
}

// NewHeroHandler creates a HeroHandler.
func NewHeroHandler(mgr *quest.Manager, repo quest.Repository, logger *zap.Logger) *HeroHandler {
	return &HeroHandler{mgr: mgr, repo: repo, logger: logger}
}

// Me returns the hero's stats, level progress, curse and recent history.
// GET /api/hero
func (h *HeroHandler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	heroID := mw.GetHeroID(c)
	stats, err := h.repo.GetHero(ctx, heroID)
	if errors.Is(err, quest.ErrUnknownHero) {
		c.JSON(http.StatusNotFound, gin.H{"error": "hero not found"})
		return
	}
	if err != nil {
		h.logger.Error("load hero failed", zap.String("hero_id", heroID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	history, err := h.mgr.History(ctx, heroID)
	if err != nil {
		h.logger.Warn("load history failed", zap.String("hero_id", heroID), zap.Error(err))
		history = []quest.HistoryEntry{}
	}

	resp := gin.H{
		"hero":     stats,
		"progress": levelProgress(stats.XP),
		"history":  history,
	}
	if eff, ok := h.mgr.Curse().Active(heroID, time.Now()); ok {
		resp["curse"] = eff
	}
	c.JSON(http.StatusOK, resp)
}

// Classes lists the selectable classes and their traits.
// GET /api/hero/classes
func (h *HeroHandler) Classes(c *gin.Context) {
	classes := []hero.Class{hero.Adventurer, hero.Warrior, hero.Scholar, hero.Rogue}
	out := make([]gin.H, len(classes))
	for i, cl := range classes {
		t := cl.Traits()
		out[i] = gin.H{
			"class":        cl,
			"xp_percent":   t.XPPercent,
			"gold_percent": t.GoldPercent,
			"favoured":     t.Favoured,
		}
	}
	c.JSON(http.StatusOK, gin.H{"classes": out})
}

// levelProgress reports the XP gathered toward the next level.
func levelProgress(xp int64) gin.H {
	level := hero.LevelForXP(xp)
	into := xp
	for l := 1; l < level; l++ {
		into -= hero.ExpNeeded(l)
	}
	return gin.H{"level": level, "into_level": into, "needed": hero.ExpNeeded(level)}
}
