package quest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/focusquest/audit"
	"github.com/kasuganosora/focusquest/game/curse"
	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/loot"
	"github.com/kasuganosora/focusquest/game/planner"
	"github.com/kasuganosora/focusquest/game/resolver"
	"github.com/kasuganosora/focusquest/game/rng"
	"github.com/kasuganosora/focusquest/game/validation"
	"go.uber.org/zap"
)

// Phase is the lifecycle position of a Store.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseCompleted Phase = "completed"
	PhaseGaveUp    Phase = "gave_up"
)

// State is the published snapshot of a Store.
type State struct {
	Phase                 Phase               `json:"phase"`
	Hero                  HeroStats           `json:"hero"`
	Quest                 *Quest              `json:"quest,omitempty"`
	ElapsedSeconds        int64               `json:"elapsed_s"`
	RemainingSeconds      int64               `json:"remaining_s"`
	RunningXP             int                 `json:"running_xp"`
	RunningGold           int                 `json:"running_gold"`
	LastResolvedIdx       int                 `json:"last_resolved_idx"`
	PlannedEvents         int                 `json:"planned_events"`
	RecentLog             []event.QuestEvent  `json:"recent_log"`
	Curse                 *curse.StatusEffect `json:"curse,omitempty"`
	CurseRemainingSeconds int64               `json:"curse_remaining_s"`
	LastLoot              *loot.Loot          `json:"last_loot,omitempty"`
	Error                 *Error              `json:"error,omitempty"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Config holds the lifecycle knobs.
type Config struct {
	MinMinutes    int
	MaxMinutes    int
	RecentLogSize int
	Limits        validation.Limits
	Location      *time.Location
}

// DefaultConfig allows 1 to 180 minute quests and keeps 20 log entries.
func DefaultConfig() Config {
	return Config{
		MinMinutes:    1,
		MaxMinutes:    180,
		RecentLogSize: 20,
		Limits:        validation.DefaultLimits(),
		Location:      time.Local,
	}
}

// Deps are the collaborators of a Store. Only Repo is required.
type Deps struct {
	Repo     Repository
	Curse    *curse.Service
	Notifier Notifier
	Remote   RemoteValidator
	Audit    Auditor
	Metrics  *Metrics
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
	// OnState receives every published snapshot.
	OnState func(State)
	// OnSettled runs after a terminal transition is committed.
	OnSettled func(ctx context.Context, h HeroStats, q Quest, gains loot.Loot)
}

const effectBuffer = 64

// Store owns the quest lifecycle of one hero. Process is serialized, so at
// most one transition is in flight and the first terminal intent wins.
type Store struct {
	heroID string
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu     sync.Mutex
	st     State
	plan   []event.Planned
	recent []event.QuestEvent

	snap    atomic.Pointer[State]
	effects chan Effect
}

// NewStore creates an idle Store. Call Process(Refresh{}) to load storage.
func NewStore(heroID string, cfg Config, deps Deps) *Store {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RecentLogSize <= 0 {
		cfg.RecentLogSize = 20
	}
	if deps.Curse == nil {
		deps.Curse = curse.NewService(curse.DefaultRules(), cfg.Location)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Audit == nil {
		deps.Audit = nopAuditor{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	s := &Store{
		heroID:  heroID,
		cfg:     cfg,
		deps:    deps,
		logger:  deps.Logger.With(zap.String("hero_id", heroID)),
		st:      State{Phase: PhaseIdle, LastResolvedIdx: -1},
		effects: make(chan Effect, effectBuffer),
	}
	initial := s.st
	s.snap.Store(&initial)
	return s
}

// HeroID returns the hero this store serves.
func (s *Store) HeroID() string { return s.heroID }

// State returns the latest published snapshot.
func (s *Store) State() State { return *s.snap.Load() }

// Effects delivers one-shot effects. When nobody drains it, effects are dropped.
func (s *Store) Effects() <-chan Effect { return s.effects }

// Process applies one intent. A returned error is always an *Error and has
// also been emitted as ShowError.
func (s *Store) Process(ctx context.Context, in Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.deps.Now()
	_, isTick := in.(Tick)
	quiet := isTick && s.st.Phase != PhaseActive
	var qerr *Error
	switch v := in.(type) {
	case Refresh:
		qerr = s.refresh(ctx, now)
	case StartQuest:
		qerr = s.start(ctx, v, now)
	case Tick:
		now = v.At
		qerr = s.tick(ctx, now)
	case GiveUp:
		qerr = s.giveUp(ctx, now)
	case Complete:
		qerr = s.complete(ctx, now, now)
	case ClearError:
		s.st.Error = nil
	default:
		qerr = validationErr("process", fmt.Errorf("quest: unknown intent %T", in))
	}

	if qerr != nil {
		s.fail(qerr)
	}
	s.publish(now, quiet)
	if qerr != nil {
		return qerr
	}
	return nil
}

// Run feeds clock ticks into Process until ctx is done or ticks is closed.
func (s *Store) Run(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			_ = s.Process(ctx, Tick{At: t})
		}
	}
}

func (s *Store) refresh(ctx context.Context, now time.Time) *Error {
	const op = "refresh"
	h, err := s.deps.Repo.GetHero(ctx, s.heroID)
	if err != nil {
		return s.repoErr(op, err)
	}
	q, err := s.deps.Repo.GetActiveQuest(ctx, s.heroID)
	if err != nil {
		return persistenceErr(op, err)
	}
	if q == nil {
		s.st.Hero = h
		if s.st.Phase == PhaseActive {
			s.st = State{Phase: PhaseIdle, Hero: h, LastResolvedIdx: -1}
			s.plan, s.recent = nil, nil
		}
		return nil
	}

	plan, err := s.deps.Repo.GetQuestPlan(ctx, q.ID)
	if err != nil {
		return persistenceErr(op, err)
	}
	if len(plan) == 0 {
		plan = planner.Plan(q.ID, specOf(*q))
		if err := s.deps.Repo.SaveQuestPlan(ctx, q.ID, plan); err != nil {
			return persistenceErr(op, err)
		}
	}
	events, err := s.deps.Repo.GetQuestEvents(ctx, q.ID)
	if err != nil {
		return persistenceErr(op, err)
	}
	last, err := s.deps.Repo.GetLastResolvedEventIdx(ctx, q.ID)
	if err != nil {
		return persistenceErr(op, err)
	}

	resumed := s.st.Phase != PhaseActive || s.st.Quest == nil || s.st.Quest.ID != q.ID
	s.st = State{Phase: PhaseActive, Hero: h, Quest: q, LastResolvedIdx: last}
	s.plan, s.recent = plan, nil
	for _, ev := range events {
		s.st.RunningXP += ev.XPDelta
		s.st.RunningGold += ev.GoldDelta
		s.remember(ev)
	}
	if resumed {
		s.deps.Metrics.questResumed()
		s.deps.Curse.ResetWatermark(s.heroID)
		s.showOngoing(ctx, *q)
		s.logger.Info("quest resumed", zap.String("quest_id", q.ID), zap.Int("last_idx", last))
	}
	return s.advance(ctx, now, op)
}

func (s *Store) start(ctx context.Context, in StartQuest, now time.Time) *Error {
	const op = "start"
	if in.Minutes < s.cfg.MinMinutes || in.Minutes > s.cfg.MaxMinutes {
		return validationErr(op, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrInvalidDuration, in.Minutes, s.cfg.MinMinutes, s.cfg.MaxMinutes))
	}
	class := in.Class
	if class != "" {
		c, err := hero.ParseClass(string(class))
		if err != nil {
			return validationErr(op, err)
		}
		class = c
	}

	h, err := s.deps.Repo.GetHero(ctx, s.heroID)
	if err != nil {
		return s.repoErr(op, err)
	}
	active, err := s.deps.Repo.GetActiveQuest(ctx, s.heroID)
	if err != nil {
		return persistenceErr(op, err)
	}
	if active != nil {
		return validationErr(op, ErrQuestActive)
	}
	if class == "" {
		class = h.Class
	}
	if class == "" {
		class = hero.Adventurer
	}

	q := Quest{
		ID:              s.deps.NewID(),
		HeroID:          s.heroID,
		DurationMinutes: in.Minutes,
		StartTime:       now,
		Class:           class,
		HeroLevel:       h.Level,
	}
	q.Seed = rng.DeriveSeed(now, s.heroID, q.ID)
	plan := planner.Plan(q.ID, specOf(q))

	// The plan goes first: a quest row is never visible without its plan.
	if err := s.deps.Repo.SaveQuestPlan(ctx, q.ID, plan); err != nil {
		return persistenceErr(op, err)
	}
	if err := s.deps.Repo.CreateQuest(ctx, q); err != nil {
		if cerr := s.deps.Repo.ClearQuestPlan(ctx, q.ID); cerr != nil {
			s.logger.Warn("clear orphan plan failed", zap.String("quest_id", q.ID), zap.Error(cerr))
		}
		return persistenceErr(op, err)
	}

	s.st = State{Phase: PhaseActive, Hero: h, Quest: &q, LastResolvedIdx: -1}
	s.plan, s.recent = plan, nil
	s.deps.Curse.ResetWatermark(s.heroID)
	s.deps.Curse.OnTick(s.heroID, true, now)
	s.showOngoing(ctx, q)
	s.deps.Metrics.questStarted()
	s.deps.Audit.Log(audit.Entry{
		HeroID:  s.heroID,
		QuestID: q.ID,
		Action:  audit.ActionQuestStart,
		Detail:  map[string]interface{}{"minutes": q.DurationMinutes, "class": q.Class, "events": len(plan)},
	})
	s.logger.Info("quest started",
		zap.String("quest_id", q.ID),
		zap.Int("minutes", q.DurationMinutes),
		zap.String("class", string(q.Class)),
		zap.Int("events", len(plan)))
	s.emit(Navigate{Route: RouteQuest})
	return nil
}

func (s *Store) tick(ctx context.Context, now time.Time) *Error {
	s.deps.Curse.OnTick(s.heroID, s.st.Phase == PhaseActive, now)
	if s.st.Phase != PhaseActive {
		return nil
	}
	return s.advance(ctx, now, "tick")
}

// advance resolves every due event and auto-completes at the planned end.
func (s *Store) advance(ctx context.Context, now time.Time, op string) *Error {
	if err := s.resolveDue(ctx, now, op); err != nil {
		return err
	}
	if end := s.st.Quest.PlannedEnd(); !now.Before(end) {
		return s.complete(ctx, now, end)
	}
	return nil
}

func (s *Store) resolveDue(ctx context.Context, now time.Time, op string) *Error {
	q := s.st.Quest
	rc := resolver.Context{QuestID: q.ID, BaseSeed: q.Seed, HeroLevel: q.HeroLevel, Class: q.Class}
	for _, p := range s.plan {
		if p.Idx <= s.st.LastResolvedIdx {
			continue
		}
		if p.DueAt.After(now) {
			break
		}
		ev := resolver.Resolve(rc, p)
		if err := s.deps.Repo.AppendQuestEvent(ctx, ev); err != nil {
			return persistenceErr(op, err)
		}
		s.st.LastResolvedIdx = ev.Idx
		s.st.RunningXP += ev.XPDelta
		s.st.RunningGold += ev.GoldDelta
		s.remember(ev)
		s.deps.Metrics.eventResolved(string(ev.Type))
	}
	return nil
}

func (s *Store) giveUp(ctx context.Context, now time.Time) *Error {
	const op = "give_up"
	if err := s.requireActive(op); err != nil {
		return err
	}
	// Nothing left to retreat from: the quest ran its full course.
	if end := s.st.Quest.PlannedEnd(); !now.Before(end) {
		return s.complete(ctx, now, end)
	}
	if err := s.resolveDue(ctx, now, op); err != nil {
		return err
	}

	q := *s.st.Quest
	elapsed := q.Elapsed(now)
	cursed := !s.deps.Curse.IsInGrace(elapsed)
	minutes := int(elapsed / time.Minute)
	if minutes > q.DurationMinutes {
		minutes = q.DurationMinutes
	}
	gains := s.gains(loot.Roll(minutes, q.HeroLevel, q.Class, q.Seed), now)

	end := now
	q.EndTime = &end
	q.GaveUp = true
	setGains(&q, gains)
	h, err := s.deps.Repo.CommitTerminal(ctx, Settlement{Quest: q, Gains: gains, ResetStreak: cursed})
	if err != nil {
		return s.commitErr(op, err)
	}

	var expiresAt *time.Time
	if cursed {
		exp := s.deps.Curse.ApplyRetreatCurse(s.heroID, now, q.PlannedEnd().Sub(now))
		expiresAt = &exp
	}
	s.finish(ctx, PhaseGaveUp, q, h, gains)
	s.deps.Metrics.questGaveUp(cursed)
	s.deps.Audit.Log(audit.Entry{
		HeroID:  s.heroID,
		QuestID: q.ID,
		Action:  audit.ActionQuestGiveUp,
		Detail:  map[string]interface{}{"elapsed_s": int64(elapsed / time.Second), "cursed": cursed},
	})
	s.logger.Info("quest given up",
		zap.String("quest_id", q.ID),
		zap.Duration("elapsed", elapsed),
		zap.Bool("cursed", cursed))
	s.emit(QuestFinished{Quest: q, Loot: gains, Cursed: cursed, CurseExpiresAt: expiresAt})
	s.emit(Navigate{Route: RouteSummary})
	return nil
}

// complete finishes the quest at end. User completions pass end == now,
// automatic ones pass the planned end.
func (s *Store) complete(ctx context.Context, now, end time.Time) *Error {
	const op = "complete"
	if err := s.requireActive(op); err != nil {
		return err
	}
	q := *s.st.Quest
	if now.Before(q.PlannedEnd()) {
		return validationErr(op, ErrNotFinished)
	}
	if err := s.resolveDue(ctx, now, op); err != nil {
		return err
	}

	validated, seed, verr := s.validate(ctx, q, end, now)
	gains := s.gains(loot.Roll(q.DurationMinutes, q.HeroLevel, q.Class, seed), now)

	q.EndTime = &end
	q.Completed = true
	q.ServerValidated = validated
	if seed != q.Seed {
		q.RewardSeed = seed
	}
	setGains(&q, gains)
	h, err := s.deps.Repo.CommitTerminal(ctx, Settlement{
		Quest: q,
		Gains: gains,
		Day:   now.In(s.cfg.Location).Format(DayLayout),
	})
	if err != nil {
		return s.commitErr(op, err)
	}

	s.deps.Curse.ResetWatermark(s.heroID)
	s.finish(ctx, PhaseCompleted, q, h, gains)
	items := make([]string, len(gains.Items))
	for i, it := range gains.Items {
		items[i] = it.ID
	}
	if err := s.deps.Notifier.ShowCompleted(ctx, s.heroID, q.ID, gains.XP, gains.Gold, items); err != nil {
		s.logger.Warn("notify completed failed", zap.Error(err))
	}
	s.deps.Metrics.questCompleted(validated)
	detail := map[string]interface{}{"xp": gains.XP, "gold": gains.Gold, "items": items, "validated": validated}
	entry := audit.Entry{HeroID: s.heroID, QuestID: q.ID, Action: audit.ActionQuestComplete, Detail: detail}
	if verr != nil {
		entry.Error = verr.Error()
	}
	s.deps.Audit.Log(entry)
	s.logger.Info("quest completed",
		zap.String("quest_id", q.ID),
		zap.Bool("validated", validated),
		zap.Int("xp", gains.XP),
		zap.Int("gold", gains.Gold))
	s.emit(QuestFinished{Quest: q, Loot: gains})
	s.emit(Navigate{Route: RouteSummary})
	if verr != nil {
		return timingErr(op, verr)
	}
	return nil
}

// validate asks the remote validator first and falls back to the local
// timing check when it is absent or unreachable.
func (s *Store) validate(ctx context.Context, q Quest, end, now time.Time) (bool, int64, error) {
	if s.deps.Remote != nil {
		v, err := s.deps.Remote.Validate(ctx, q, end)
		if err == nil {
			seed := q.Seed
			if v.Seed != 0 {
				seed = v.Seed
			}
			if !v.Accepted {
				return false, seed, fmt.Errorf("quest: rejected by validator: %s", v.Reason)
			}
			return true, seed, nil
		}
		s.logger.Warn("remote validation unavailable, using local check", zap.Error(err))
	}
	if err := validation.ValidateTimes(q.StartTime, end, q.DurationMinutes, now, s.cfg.Limits); err != nil {
		return false, q.Seed, err
	}
	return true, q.Seed, nil
}

// gains adds the resolved event rewards to base and applies the curse
// multipliers active at now.
func (s *Store) gains(base loot.Loot, now time.Time) loot.Loot {
	total := base
	total.XP += s.st.RunningXP
	total.Gold += s.st.RunningGold
	if eff, ok := s.deps.Curse.Active(s.heroID, now); ok {
		total = total.Scale(eff.XPMultiplier, eff.GoldMultiplier)
	}
	return total
}

func setGains(q *Quest, gains loot.Loot) {
	q.XPGained = gains.XP
	q.GoldGained = gains.Gold
	q.Items = gains.Items
}

func (s *Store) finish(ctx context.Context, phase Phase, q Quest, h HeroStats, gains loot.Loot) {
	s.st.Phase = phase
	s.st.Quest = &q
	s.st.Hero = h
	s.st.LastLoot = &gains
	s.plan = nil
	if err := s.deps.Notifier.ClearOngoing(ctx, s.heroID); err != nil {
		s.logger.Warn("clear ongoing notification failed", zap.Error(err))
	}
	if err := s.deps.Notifier.CancelScheduledEnd(ctx, s.heroID); err != nil {
		s.logger.Warn("cancel end notification failed", zap.Error(err))
	}
	if s.deps.OnSettled != nil {
		s.deps.OnSettled(ctx, h, q, gains)
	}
}

func (s *Store) showOngoing(ctx context.Context, q Quest) {
	if err := s.deps.Notifier.ShowOngoing(ctx, s.heroID, q.ID, q.PlannedEnd()); err != nil {
		s.logger.Warn("show ongoing notification failed", zap.Error(err))
	}
	if err := s.deps.Notifier.ScheduleEnd(ctx, s.heroID, q.ID, q.PlannedEnd()); err != nil {
		s.logger.Warn("schedule end notification failed", zap.Error(err))
	}
}

func (s *Store) requireActive(op string) *Error {
	switch s.st.Phase {
	case PhaseActive:
		return nil
	case PhaseCompleted, PhaseGaveUp:
		return validationErr(op, ErrAlreadyEnded)
	default:
		return validationErr(op, ErrNoActiveQuest)
	}
}

func (s *Store) repoErr(op string, err error) *Error {
	if errors.Is(err, ErrUnknownHero) {
		return validationErr(op, err)
	}
	return persistenceErr(op, err)
}

func (s *Store) commitErr(op string, err error) *Error {
	if errors.Is(err, ErrAlreadyEnded) {
		return validationErr(op, err)
	}
	return persistenceErr(op, err)
}

func (s *Store) remember(ev event.QuestEvent) {
	s.recent = append(s.recent, ev)
	if over := len(s.recent) - s.cfg.RecentLogSize; over > 0 {
		s.recent = append([]event.QuestEvent(nil), s.recent[over:]...)
	}
}

// fail records err and emits it, unless it repeats the current error.
func (s *Store) fail(err *Error) {
	if cur := s.st.Error; cur != nil && cur.Kind == err.Kind && cur.Op == err.Op && cur.Err.Error() == err.Err.Error() {
		return
	}
	s.st.Error = err
	if err.Kind == KindPersistence {
		s.logger.Error("quest persistence failed", zap.String("op", err.Op), zap.Error(err.Err))
	}
	s.emit(ShowError{Err: err})
}

func (s *Store) emit(e Effect) {
	select {
	case s.effects <- e:
	default:
		s.logger.Warn("effect dropped", zap.String("effect", fmt.Sprintf("%T", e)))
	}
}

// publish snapshots the state. Idle ticks without a curse to count down are
// not pushed to OnState.
func (s *Store) publish(now time.Time, quiet bool) {
	st := s.st
	if st.Quest != nil {
		q := *st.Quest
		st.Quest = &q
		if st.Phase == PhaseActive {
			st.ElapsedSeconds = int64(q.Elapsed(now) / time.Second)
			st.RemainingSeconds = int64(q.Remaining(now) / time.Second)
		}
	}
	st.PlannedEvents = len(s.plan)
	st.RecentLog = append([]event.QuestEvent(nil), s.recent...)
	if eff, ok := s.deps.Curse.Active(s.heroID, now); ok {
		st.Curse = &eff
		st.CurseRemainingSeconds = int64(eff.ExpiresAt.Sub(now) / time.Second)
	}
	st.UpdatedAt = now
	s.snap.Store(&st)

	if s.deps.OnState == nil {
		return
	}
	if quiet && st.Phase != PhaseActive && st.Curse == nil {
		return
	}
	s.deps.OnState(st)
}

func specOf(q Quest) planner.Spec {
	return planner.Spec{
		DurationMinutes: q.DurationMinutes,
		Seed:            q.Seed,
		StartAt:         q.StartTime,
		HeroLevel:       q.HeroLevel,
		Class:           q.Class,
	}
}
