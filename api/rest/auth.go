package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/config"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/quest"
	mw "github.com/kasuganosora/focusquest/middleware"
	"github.com/kasuganosora/focusquest/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
	audit quest.Auditor
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, auditor quest.Auditor) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, audit: auditor}
}

type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=32"`
	Password string `json:"password" binding:"required,min=4,max=64"`
	// Class is only used when the login registers a new hero.
	Class string `json:"class"`
}

// Login handles POST /api/auth/login.
// Auto-registers on first login if the username does not exist.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action := audit.ActionLogin
	var hr model.Hero
	err := h.db.Where("username = ?", req.Username).First(&hr).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		class, err := hero.ParseClass(req.Class)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		hr = model.Hero{
			ID:           uuid.NewString(),
			Username:     req.Username,
			PasswordHash: string(hash),
			Class:        string(class),
			Status:       1,
			Level:        1,
		}
		if createErr := h.db.Create(&hr).Error; createErr != nil {
			// Unique constraint violation: another request registered the same name.
			if isUniqueViolation(createErr) {
				c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
			}
			return
		}
		action = audit.ActionRegister
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	} else {
		if err := bcrypt.CompareHashAndPassword([]byte(hr.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if hr.Status == 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "hero banned"})
			return
		}
	}

	token, err := mw.GenerateToken(hr.ID, hr.Username, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Set(ctx, mw.SessionKey(token), hr.ID, h.sec.JWTTTLH)

	// Update last login (best-effort).
	now := time.Now()
	ip := c.ClientIP()
	_ = h.db.Model(&hr).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": ip,
	})
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		HeroID:  hr.ID,
		Action:  action,
		IP:      ip,
	})

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"hero_id": hr.ID,
		"class":   hr.Class,
	})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	token := mw.GetToken(c)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing token"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(token))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	heroID := mw.GetHeroID(c)
	if heroID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var hr model.Hero
	if err := h.db.Select("id", "username", "status").Where("id = ?", heroID).First(&hr).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if hr.Status == 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "hero banned"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKey(mw.GetToken(c)))

	newToken, err := mw.GenerateToken(hr.ID, hr.Username, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	_ = h.cache.Set(ctx, mw.SessionKey(newToken), hr.ID, h.sec.JWTTTLH)

	c.JSON(http.StatusOK, gin.H{"token": newToken})
}

// isUniqueViolation detects duplicate-key errors. Both drivers translate them
// to gorm.ErrDuplicatedKey; the message check covers untranslated dialects.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
