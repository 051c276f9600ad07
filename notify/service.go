package notify

import (
	"context"
	"sync"
	"time"

	"github.com/kasuganosora/focusquest/scheduler"
	"go.uber.org/zap"
)

// Service shows quest status through a Sink. The end reminder is a delayed
// scheduler task, so it fires even when no client is connected.
type Service struct {
	sink   Sink
	sched  *scheduler.Scheduler
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	ongoing map[string]Notice
}

// NewService creates a Service.
func NewService(sink Sink, sched *scheduler.Scheduler, logger *zap.Logger) *Service {
	return &Service{
		sink:    sink,
		sched:   sched,
		logger:  logger,
		now:     time.Now,
		ongoing: make(map[string]Notice),
	}
}

func endTask(heroID string) string { return "notify_end:" + heroID }

func (s *Service) ShowOngoing(ctx context.Context, heroID, questID string, endsAt time.Time) error {
	n := Notice{Kind: KindOngoing, HeroID: heroID, QuestID: questID, EndsAt: &endsAt, At: s.now()}
	s.mu.Lock()
	s.ongoing[heroID] = n
	s.mu.Unlock()
	return s.sink.Send(ctx, n)
}

func (s *Service) ClearOngoing(ctx context.Context, heroID string) error {
	s.mu.Lock()
	n, ok := s.ongoing[heroID]
	delete(s.ongoing, heroID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.sink.Send(ctx, Notice{Kind: KindCleared, HeroID: heroID, QuestID: n.QuestID, At: s.now()})
}

func (s *Service) ScheduleEnd(_ context.Context, heroID, questID string, at time.Time) error {
	delay := at.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.sched.AddDelay(endTask(heroID), delay, func(fired time.Time) {
		n := Notice{Kind: KindQuestEnd, HeroID: heroID, QuestID: questID, EndsAt: &at, At: fired}
		if err := s.sink.Send(context.Background(), n); err != nil {
			s.logger.Warn("send quest end notice failed", zap.String("hero_id", heroID), zap.Error(err))
		}
	})
	return nil
}

func (s *Service) CancelScheduledEnd(_ context.Context, heroID string) error {
	s.sched.Remove(endTask(heroID))
	return nil
}

func (s *Service) ShowCompleted(ctx context.Context, heroID, questID string, xp, gold int, items []string) error {
	return s.sink.Send(ctx, Notice{
		Kind:    KindCompleted,
		HeroID:  heroID,
		QuestID: questID,
		XP:      xp,
		Gold:    gold,
		Items:   items,
		At:      s.now(),
	})
}

// Ongoing returns the hero's current ongoing notice, if any.
func (s *Service) Ongoing(heroID string) (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.ongoing[heroID]
	return n, ok
}

// Close closes the sink.
func (s *Service) Close() error { return s.sink.Close() }
