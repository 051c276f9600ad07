package quest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kasuganosora/focusquest/game/curse"
	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/validation"
	"github.com/kasuganosora/focusquest/model"
	"github.com/kasuganosora/focusquest/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

const scenarioSeed = int64(-2974172916796731326)

func nopLogger() *zap.Logger { l, _ := zap.NewDevelopment(); return l }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// seqIDs returns q1, q2, ...
func seqIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("q%d", n.Add(1)) }
}

type fixture struct {
	db    *gorm.DB
	repo  *GormRepository
	clock *fakeClock
	curse *curse.Service
	ids   func() string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	require.NoError(t, db.Create(&model.Hero{
		ID:           "h1",
		Username:     "ann",
		PasswordHash: "x",
		Class:        "adventurer",
		Level:        3,
		XP:           110,
	}).Error)
	return &fixture{
		db:    db,
		repo:  NewGormRepository(db),
		clock: &fakeClock{t: t0},
		curse: curse.NewService(curse.DefaultRules(), time.UTC),
		ids:   seqIDs(),
	}
}

func testConfig() Config {
	return Config{
		MinMinutes:    1,
		MaxMinutes:    180,
		RecentLogSize: 20,
		Limits:        validation.DefaultLimits(),
		Location:      time.UTC,
	}
}

func (f *fixture) deps(repo Repository) Deps {
	return Deps{
		Repo:   repo,
		Curse:  f.curse,
		Logger: nopLogger(),
		Now:    f.clock.Now,
		NewID:  f.ids,
	}
}

func (f *fixture) store(t *testing.T) *Store {
	t.Helper()
	return NewStore("h1", testConfig(), f.deps(f.repo))
}

func (f *fixture) at(d time.Duration) time.Time {
	t := t0.Add(d)
	f.clock.Set(t)
	return t
}

func drain(s *Store) []Effect {
	var out []Effect
	for {
		select {
		case e := <-s.Effects():
			out = append(out, e)
		default:
			return out
		}
	}
}

var errBoom = errors.New("disk on fire")

// flakyRepo fails the selected operations.
type flakyRepo struct {
	Repository
	failCreate atomic.Bool
	failAppend atomic.Bool
	failCommit atomic.Bool
}

func (r *flakyRepo) CreateQuest(ctx context.Context, q Quest) error {
	if r.failCreate.Load() {
		return errBoom
	}
	return r.Repository.CreateQuest(ctx, q)
}

func (r *flakyRepo) AppendQuestEvent(ctx context.Context, ev event.QuestEvent) error {
	if r.failAppend.Load() {
		return errBoom
	}
	return r.Repository.AppendQuestEvent(ctx, ev)
}

func (r *flakyRepo) CommitTerminal(ctx context.Context, s Settlement) (HeroStats, error) {
	if r.failCommit.Load() {
		return HeroStats{}, errBoom
	}
	return r.Repository.CommitTerminal(ctx, s)
}

type stubValidator struct {
	verdict RemoteVerdict
	err     error
}

func (v stubValidator) Validate(context.Context, Quest, time.Time) (RemoteVerdict, error) {
	return v.verdict, v.err
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *recordingNotifier) record(s string) {
	n.mu.Lock()
	n.calls = append(n.calls, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

func (n *recordingNotifier) ShowOngoing(_ context.Context, heroID, questID string, _ time.Time) error {
	n.record("ongoing:" + questID)
	return nil
}

func (n *recordingNotifier) ClearOngoing(context.Context, string) error {
	n.record("clear")
	return nil
}

func (n *recordingNotifier) ScheduleEnd(_ context.Context, _, questID string, _ time.Time) error {
	n.record("schedule:" + questID)
	return nil
}

func (n *recordingNotifier) CancelScheduledEnd(context.Context, string) error {
	n.record("cancel")
	return nil
}

func (n *recordingNotifier) ShowCompleted(_ context.Context, _, questID string, _, _ int, _ []string) error {
	n.record("completed:" + questID)
	return nil
}
