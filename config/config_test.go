package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  port: 9090\nquest:\n  max_minutes: 90\ncurse:\n  cap: 15m\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90, cfg.Quest.MaxMinutes)
	assert.Equal(t, 15*time.Minute, cfg.Curse.Cap)

	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, time.Second, cfg.Quest.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Curse.Grace)
	assert.Equal(t, 0.5, cfg.Curse.GoldMultiplier)
	assert.True(t, cfg.Curse.ResetsAtMidnight)
	assert.Equal(t, "pubsub", cfg.Notify.Driver)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Quest.MinMinutes)
	assert.Equal(t, 180, cfg.Quest.MaxMinutes)
	assert.Equal(t, 10*time.Minute, cfg.Quest.MaxLate)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
}

func TestQuestConfig_Location(t *testing.T) {
	assert.Equal(t, time.Local, QuestConfig{}.Location())
	assert.Equal(t, time.Local, QuestConfig{Timezone: "Local"}.Location())
	assert.Equal(t, time.Local, QuestConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", QuestConfig{Timezone: "UTC"}.Location().String())
}
