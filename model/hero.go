package model

import "time"

// Hero is a player account and its progression.
type Hero struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:64;not null" json:"-"`
	Class        string     `gorm:"size:16;not null;default:adventurer" json:"class"`
	Status       int        `gorm:"default:1" json:"status"` // 0=banned 1=normal
	Level        int        `gorm:"default:1" json:"level"`
	XP           int64      `gorm:"index:idx_hero_xp;default:0" json:"xp"`
	Gold         int64      `gorm:"default:0" json:"gold"`
	Streak       int        `gorm:"default:0" json:"streak"`
	LastQuestDay string     `gorm:"size:10" json:"last_quest_day"` // 2006-01-02 in the quest timezone
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	LastLoginIP  string     `gorm:"size:45" json:"last_login_ip"`
}
