package quest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/cache"
	"github.com/kasuganosora/focusquest/game/curse"
	"github.com/kasuganosora/focusquest/game/loot"
	"github.com/kasuganosora/focusquest/scheduler"
	"go.uber.org/zap"
)

// RankingKey is the sorted set of hero ids scored by lifetime XP.
const RankingKey = "ranking:xp"

const historySize = 20

// ErrManagerClosed is returned by a Manager after Close.
var ErrManagerClosed = errors.New("quest: manager closed")

// HistoryKey is the list of a hero's most recent finished quests.
func HistoryKey(heroID string) string { return "hero:" + heroID + ":history" }

// StateChannel carries JSON State snapshots of a hero.
func StateChannel(heroID string) string { return "quest:" + heroID + ":state" }

// EffectsChannel carries JSON effects of a hero.
func EffectsChannel(heroID string) string { return "quest:" + heroID + ":effects" }

// HistoryEntry is one finished quest in the hero's history feed.
type HistoryEntry struct {
	QuestID   string    `json:"quest_id"`
	Minutes   int       `json:"minutes"`
	Completed bool      `json:"completed"`
	GaveUp    bool      `json:"gave_up"`
	Validated bool      `json:"validated"`
	XP        int       `json:"xp"`
	Gold      int       `json:"gold"`
	Items     []string  `json:"items,omitempty"`
	EndedAt   time.Time `json:"ended_at"`
}

type managedStore struct {
	store  *Store
	cancel func()
	// ready is closed once the first Refresh finished; err holds its failure.
	ready chan struct{}
	err   error
}

// Manager keeps one Store per hero, drives them from the shared clock and
// publishes their states and effects.
type Manager struct {
	ctx    context.Context
	cfg    Config
	deps   Deps
	clock  *scheduler.Clock
	cache  cache.Cache
	pubsub cache.PubSub
	logger *zap.Logger

	mu     sync.Mutex
	stores map[string]*managedStore
	closed bool
}

// NewManager creates a Manager. Stores run until ctx is done or Close.
func NewManager(ctx context.Context, cfg Config, deps Deps, clock *scheduler.Clock, c cache.Cache, ps cache.PubSub) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Audit == nil {
		deps.Audit = nopAuditor{}
	}
	if deps.Curse == nil {
		deps.Curse = curse.NewService(curse.DefaultRules(), cfg.Location)
	}
	return &Manager{
		ctx:    ctx,
		cfg:    cfg,
		deps:   deps,
		clock:  clock,
		cache:  c,
		pubsub: ps,
		logger: deps.Logger,
		stores: make(map[string]*managedStore),
	}
}

// Store returns the hero's store, creating and refreshing it on first use.
func (m *Manager) Store(ctx context.Context, heroID string) (*Store, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if ms, ok := m.stores[heroID]; ok {
		m.mu.Unlock()
		select {
		case <-ms.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if ms.err != nil {
			return nil, ms.err
		}
		return ms.store, nil
	}

	deps := m.deps
	deps.OnState = func(st State) { m.publishState(heroID, st) }
	deps.OnSettled = m.settled
	st := NewStore(heroID, m.cfg, deps)
	runCtx, cancel := context.WithCancel(m.ctx)
	ticks, unsubscribe := m.clock.Subscribe()
	ms := &managedStore{store: st, cancel: func() { cancel(); unsubscribe() }, ready: make(chan struct{})}
	m.stores[heroID] = ms
	m.mu.Unlock()

	go m.forwardEffects(runCtx, st)
	if err := st.Process(ctx, Refresh{}); err != nil && KindOf(err) != KindTiming {
		ms.err = err
		m.evict(heroID, ms)
		close(ms.ready)
		return nil, err
	}
	go st.Run(runCtx, ticks)
	close(ms.ready)
	return st, nil
}

// Process applies an intent to the hero's store and returns the new state.
func (m *Manager) Process(ctx context.Context, heroID string, in Intent) (State, error) {
	st, err := m.Store(ctx, heroID)
	if err != nil {
		return State{}, err
	}
	err = st.Process(ctx, in)
	return st.State(), err
}

// ClearCurse lifts the hero's curse. It reports whether one was active.
func (m *Manager) ClearCurse(ctx context.Context, heroID string) bool {
	cleared := m.deps.Curse.ClearCurse(heroID, m.deps.Now())
	m.deps.Audit.Log(audit.Entry{
		HeroID: heroID,
		Action: audit.ActionCurseClear,
		Detail: map[string]interface{}{"cleared": cleared},
	})
	m.mu.Lock()
	ms, ok := m.stores[heroID]
	m.mu.Unlock()
	if ok {
		_ = ms.store.Process(ctx, ClearError{})
	}
	return cleared
}

// Curse returns the curse service shared by every store.
func (m *Manager) Curse() *curse.Service { return m.deps.Curse }

// History returns the hero's recent finished quests, newest first.
func (m *Manager) History(ctx context.Context, heroID string) ([]HistoryEntry, error) {
	raw, err := m.cache.LRange(ctx, HistoryKey(heroID), 0, historySize-1)
	if err != nil {
		if cache.IsNotFound(err) {
			return []HistoryEntry{}, nil
		}
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			m.logger.Warn("skip malformed history entry", zap.String("hero_id", heroID), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Loaded returns the number of stores in memory.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}

// ActiveQuests returns the number of stores with a running quest.
func (m *Manager) ActiveQuests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ms := range m.stores {
		if ms.store.State().Phase == PhaseActive {
			n++
		}
	}
	return n
}

// Evict stops and forgets the hero's store. A running quest stays in
// storage and resumes on the next Store call.
func (m *Manager) Evict(heroID string) {
	m.mu.Lock()
	ms, ok := m.stores[heroID]
	m.mu.Unlock()
	if ok {
		m.evict(heroID, ms)
	}
}

// Close stops every store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ms := range m.stores {
		ms.cancel()
		delete(m.stores, id)
	}
}

func (m *Manager) evict(heroID string, ms *managedStore) {
	m.mu.Lock()
	if cur, ok := m.stores[heroID]; ok && cur == ms {
		delete(m.stores, heroID)
	}
	m.mu.Unlock()
	ms.cancel()
}

func (m *Manager) forwardEffects(ctx context.Context, st *Store) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-st.Effects():
			data, err := EncodeEffect(e)
			if err != nil {
				m.logger.Error("encode effect failed", zap.Error(err))
				continue
			}
			if err := m.pubsub.Publish(ctx, EffectsChannel(st.HeroID()), string(data)); err != nil {
				m.logger.Warn("publish effect failed", zap.String("hero_id", st.HeroID()), zap.Error(err))
			}
		}
	}
}

func (m *Manager) publishState(heroID string, st State) {
	data, err := json.Marshal(st)
	if err != nil {
		m.logger.Error("encode state failed", zap.String("hero_id", heroID), zap.Error(err))
		return
	}
	if err := m.pubsub.Publish(m.ctx, StateChannel(heroID), string(data)); err != nil {
		m.logger.Warn("publish state failed", zap.String("hero_id", heroID), zap.Error(err))
	}
}

// settled updates the XP ranking and the history feed.
func (m *Manager) settled(ctx context.Context, h HeroStats, q Quest, gains loot.Loot) {
	if err := m.cache.ZAdd(ctx, RankingKey, float64(h.XP), h.ID); err != nil {
		m.logger.Warn("ranking update failed", zap.String("hero_id", h.ID), zap.Error(err))
	}
	entry := HistoryEntry{
		QuestID:   q.ID,
		Minutes:   q.DurationMinutes,
		Completed: q.Completed,
		GaveUp:    q.GaveUp,
		Validated: q.ServerValidated,
		XP:        gains.XP,
		Gold:      gains.Gold,
	}
	if q.EndTime != nil {
		entry.EndedAt = *q.EndTime
	}
	for _, it := range gains.Items {
		entry.Items = append(entry.Items, it.ID)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	key := HistoryKey(h.ID)
	if err := m.cache.LPush(ctx, key, string(data)); err != nil {
		m.logger.Warn("history push failed", zap.String("hero_id", h.ID), zap.Error(err))
		return
	}
	if err := m.cache.LTrim(ctx, key, 0, historySize-1); err != nil {
		m.logger.Warn("history trim failed", zap.String("hero_id", h.ID), zap.Error(err))
	}
}
