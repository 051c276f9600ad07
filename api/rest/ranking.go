package rest

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/game/quest"
	"github.com/kasuganosora/focusquest/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RankingHandler handles leaderboard REST endpoints.
type RankingHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *zap.Logger
}

// NewRankingHandler creates a RankingHandler.
func NewRankingHandler(db *gorm.DB, c cache.Cache, logger *zap.Logger) *RankingHandler {
	return &RankingHandler{db: db, cache: c, logger: logger}
}

const rankingTop = 100

// RankEntry is one row in the leaderboard.
type RankEntry struct {
	Rank     int    `json:"rank"`
	HeroID   string `json:"hero_id"`
	Username string `json:"username"`
	Class    string `json:"class"`
	Level    int    `json:"level"`
	XP       int64  `json:"xp"`
	Streak   int    `json:"streak"`
}

// TopXP returns the top heroes sorted by lifetime XP.
// GET /api/ranking/xp?limit=20
func (h *RankingHandler) TopXP(c *gin.Context) {
	limit := 20
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= rankingTop {
		limit = l
	}

	// Try cached ranking from sorted set.
	ctx := c.Request.Context()
	members, err := h.cache.ZRevRangeWithScores(ctx, quest.RankingKey, 0, int64(limit-1))
	if err == nil && len(members) > 0 {
		entries := make([]RankEntry, len(members))
		for i, m := range members {
			entries[i] = RankEntry{Rank: i + 1, HeroID: m.Member, XP: int64(m.Score)}
		}
		h.enrich(entries)
		c.JSON(http.StatusOK, gin.H{"ranking": entries})
		return
	}

	// Fall back to DB query.
	var heroes []model.Hero
	if err := h.db.Select("id, username, class, level, xp, streak").
		Order("xp DESC").
		Limit(limit).
		Find(&heroes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	entries := make([]RankEntry, len(heroes))
	for i, hr := range heroes {
		entries[i] = entryOf(i+1, hr)
		// Refresh cache entry.
		_ = h.cache.ZAdd(ctx, quest.RankingKey, float64(hr.XP), hr.ID)
	}
	c.JSON(http.StatusOK, gin.H{"ranking": entries})
}

// RefreshRanking handles POST /api/admin/ranking/refresh.
func (h *RankingHandler) RefreshRanking(c *gin.Context) {
	n, err := h.Rebuild(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"refreshed": n})
}

// Rebuild reloads the ranking sorted set from the DB. It is also run
// periodically by the scheduler.
func (h *RankingHandler) Rebuild(ctx context.Context) (int, error) {
	var heroes []model.Hero
	if err := h.db.WithContext(ctx).Select("id, xp").Order("xp DESC").Limit(rankingTop).Find(&heroes).Error; err != nil {
		h.logger.Error("ranking rebuild failed", zap.Error(err))
		return 0, err
	}
	for _, hr := range heroes {
		_ = h.cache.ZAdd(ctx, quest.RankingKey, float64(hr.XP), hr.ID)
	}
	return len(heroes), nil
}

func (h *RankingHandler) enrich(entries []RankEntry) {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.HeroID
	}
	var heroes []model.Hero
	h.db.Select("id, username, class, level, xp, streak").Where("id IN ?", ids).Find(&heroes)
	byID := make(map[string]model.Hero, len(heroes))
	for _, hr := range heroes {
		byID[hr.ID] = hr
	}
	for i := range entries {
		if hr, ok := byID[entries[i].HeroID]; ok {
			entries[i] = entryOf(entries[i].Rank, hr)
		}
	}
}

func entryOf(rank int, hr model.Hero) RankEntry {
	return RankEntry{
		Rank:     rank,
		HeroID:   hr.ID,
		Username: hr.Username,
		Class:    hr.Class,
		Level:    hr.Level,
		XP:       hr.XP,
		Streak:   hr.Streak,
	}
}
