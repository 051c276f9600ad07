package quest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/kasuganosora/focusquest/game/event"
	"github.com/kasuganosora/focusquest/game/hero"
	"github.com/kasuganosora/focusquest/game/loot"
	"github.com/kasuganosora/focusquest/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the durable storage of quests, plans, logs and hero stats.
type Repository interface {
	SaveQuestPlan(ctx context.Context, questID string, plan []event.Planned) error
	GetQuestPlan(ctx context.Context, questID string) ([]event.Planned, error)
	ClearQuestPlan(ctx context.Context, questID string) error

	// AppendQuestEvent is idempotent on (quest id, idx).
	AppendQuestEvent(ctx context.Context, ev event.QuestEvent) error
	GetQuestEvents(ctx context.Context, questID string) ([]event.QuestEvent, error)
	// GetLastResolvedEventIdx returns -1 when nothing was resolved yet.
	GetLastResolvedEventIdx(ctx context.Context, questID string) (int, error)

	CreateQuest(ctx context.Context, q Quest) error
	// GetActiveQuest returns nil, nil when the hero has no active quest.
	GetActiveQuest(ctx context.Context, heroID string) (*Quest, error)
	GetQuest(ctx context.Context, questID string) (*Quest, error)
	ListQuests(ctx context.Context, heroID string, limit int) ([]Quest, error)
	GetHero(ctx context.Context, heroID string) (HeroStats, error)

	// CommitTerminal writes the end of the quest, the hero's progression and
	// clears the plan in one transaction. It returns ErrAlreadyEnded when
	// another terminal transition already won.
	CommitTerminal(ctx context.Context, s Settlement) (HeroStats, error)
}

// GormRepository implements Repository on gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a GormRepository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) SaveQuestPlan(ctx context.Context, questID string, plan []event.Planned) error {
	if len(plan) == 0 {
		return nil
	}
	rows := make([]model.PlannedEvent, len(plan))
	for i, p := range plan {
		rows[i] = model.PlannedEvent{
			QuestID: questID,
			Idx:     p.Idx,
			DueAt:   p.DueAt,
			Type:    string(p.Type),
			IsMajor: p.IsMajor,
			MobTier: string(p.MobTier),
		}
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, 100).Error
}

func (r *GormRepository) GetQuestPlan(ctx context.Context, questID string) ([]event.Planned, error) {
	var rows []model.PlannedEvent
	if err := r.db.WithContext(ctx).Where("quest_id = ?", questID).
		Order("idx ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	plan := make([]event.Planned, len(rows))
	for i, row := range rows {
		plan[i] = event.Planned{
			QuestID: row.QuestID,
			Idx:     row.Idx,
			DueAt:   row.DueAt,
			Type:    event.Type(row.Type),
			IsMajor: row.IsMajor,
			MobTier: event.MobTier(row.MobTier),
		}
	}
	return plan, nil
}

func (r *GormRepository) ClearQuestPlan(ctx context.Context, questID string) error {
	return r.db.WithContext(ctx).Where("quest_id = ?", questID).Delete(&model.PlannedEvent{}).Error
}

func (r *GormRepository) AppendQuestEvent(ctx context.Context, ev event.QuestEvent) error {
	outcome, err := json.Marshal(event.Record(ev.Outcome))
	if err != nil {
		return err
	}
	row := model.QuestEvent{
		QuestID:   ev.QuestID,
		Idx:       ev.Idx,
		At:        ev.At,
		Type:      string(ev.Type),
		Message:   ev.Message,
		XPDelta:   ev.XPDelta,
		GoldDelta: ev.GoldDelta,
		Outcome:   datatypes.JSON(outcome),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

func (r *GormRepository) GetQuestEvents(ctx context.Context, questID string) ([]event.QuestEvent, error) {
	var rows []model.QuestEvent
	if err := r.db.WithContext(ctx).Where("quest_id = ?", questID).
		Order("idx ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]event.QuestEvent, 0, len(rows))
	for _, row := range rows {
		var rec event.OutcomeRecord
		if len(row.Outcome) > 0 {
			if err := json.Unmarshal(row.Outcome, &rec); err != nil {
				return nil, err
			}
		}
		outcome, err := rec.Outcome()
		if err != nil {
			return nil, err
		}
		events = append(events, event.QuestEvent{
			QuestID:   row.QuestID,
			Idx:       row.Idx,
			At:        row.At,
			Type:      event.Type(row.Type),
			Message:   row.Message,
			XPDelta:   row.XPDelta,
			GoldDelta: row.GoldDelta,
			Outcome:   outcome,
		})
	}
	return events, nil
}

func (r *GormRepository) GetLastResolvedEventIdx(ctx context.Context, questID string) (int, error) {
	var last sql.NullInt64
	row := r.db.WithContext(ctx).Model(&model.QuestEvent{}).
		Where("quest_id = ?", questID).
		Select("MAX(idx)").Row()
	if err := row.Scan(&last); err != nil {
		return -1, err
	}
	if !last.Valid {
		return -1, nil
	}
	return int(last.Int64), nil
}

func (r *GormRepository) CreateQuest(ctx context.Context, q Quest) error {
	row := toQuestRow(q)
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *GormRepository) GetActiveQuest(ctx context.Context, heroID string) (*Quest, error) {
	var row model.Quest
	err := r.db.WithContext(ctx).
		Where("hero_id = ? AND end_time IS NULL AND gave_up = ?", heroID, false).
		Order("start_time DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	q, err := fromQuestRow(row)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *GormRepository) GetQuest(ctx context.Context, questID string) (*Quest, error) {
	var row model.Quest
	err := r.db.WithContext(ctx).Where("id = ?", questID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestNotFound
	}
	if err != nil {
		return nil, err
	}
	q, err := fromQuestRow(row)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *GormRepository) ListQuests(ctx context.Context, heroID string, limit int) ([]Quest, error) {
	var rows []model.Quest
	if err := r.db.WithContext(ctx).Where("hero_id = ?", heroID).
		Order("start_time DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	quests := make([]Quest, 0, len(rows))
	for _, row := range rows {
		q, err := fromQuestRow(row)
		if err != nil {
			return nil, err
		}
		quests = append(quests, q)
	}
	return quests, nil
}

func (r *GormRepository) GetHero(ctx context.Context, heroID string) (HeroStats, error) {
	return getHero(r.db.WithContext(ctx), heroID)
}

func (r *GormRepository) CommitTerminal(ctx context.Context, s Settlement) (HeroStats, error) {
	var updated HeroStats
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := json.Marshal(s.Gains.Items)
		if err != nil {
			return err
		}
		end := time.Now()
		if s.Quest.EndTime != nil {
			end = *s.Quest.EndTime
		}
		res := tx.Model(&model.Quest{}).
			Where("id = ? AND end_time IS NULL AND gave_up = ?", s.Quest.ID, false).
			Updates(map[string]interface{}{
				"end_time":         end,
				"completed":        s.Quest.Completed,
				"gave_up":          s.Quest.GaveUp,
				"server_validated": s.Quest.ServerValidated,
				"reward_seed":      s.Quest.RewardSeed,
				"xp_gained":        s.Gains.XP,
				"gold_gained":      s.Gains.Gold,
				"items":            datatypes.JSON(items),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyEnded
		}

		h, err := getHero(tx, s.Quest.HeroID)
		if err != nil {
			return err
		}
		updated = Progress(h, s)
		if err := tx.Model(&model.Hero{}).Where("id = ?", h.ID).
			Updates(map[string]interface{}{
				"xp":             updated.XP,
				"gold":           updated.Gold,
				"level":          updated.Level,
				"streak":         updated.Streak,
				"last_quest_day": updated.LastQuestDay,
			}).Error; err != nil {
			return err
		}
		return tx.Where("quest_id = ?", s.Quest.ID).Delete(&model.PlannedEvent{}).Error
	})
	if err != nil {
		return HeroStats{}, err
	}
	return updated, nil
}

func getHero(db *gorm.DB, heroID string) (HeroStats, error) {
	var row model.Hero
	err := db.Where("id = ?", heroID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return HeroStats{}, ErrUnknownHero
	}
	if err != nil {
		return HeroStats{}, err
	}
	return HeroStats{
		ID:           row.ID,
		Username:     row.Username,
		Class:        hero.Class(row.Class),
		Level:        row.Level,
		XP:           row.XP,
		Gold:         row.Gold,
		Streak:       row.Streak,
		LastQuestDay: row.LastQuestDay,
	}, nil
}

func toQuestRow(q Quest) model.Quest {
	items, _ := json.Marshal(q.Items)
	return model.Quest{
		ID:              q.ID,
		HeroID:          q.HeroID,
		DurationMinutes: q.DurationMinutes,
		StartTime:       q.StartTime,
		EndTime:         q.EndTime,
		Completed:       q.Completed,
		GaveUp:          q.GaveUp,
		ServerValidated: q.ServerValidated,
		Class:           string(q.Class),
		HeroLevel:       q.HeroLevel,
		Seed:            q.Seed,
		RewardSeed:      q.RewardSeed,
		XPGained:        q.XPGained,
		GoldGained:      q.GoldGained,
		Items:           datatypes.JSON(items),
	}
}

func fromQuestRow(row model.Quest) (Quest, error) {
	q := Quest{
		ID:              row.ID,
		HeroID:          row.HeroID,
		DurationMinutes: row.DurationMinutes,
		StartTime:       row.StartTime,
		EndTime:         row.EndTime,
		Completed:       row.Completed,
		GaveUp:          row.GaveUp,
		ServerValidated: row.ServerValidated,
		Class:           hero.Class(row.Class),
		HeroLevel:       row.HeroLevel,
		Seed:            row.Seed,
		RewardSeed:      row.RewardSeed,
		XPGained:        row.XPGained,
		GoldGained:      row.GoldGained,
	}
	if len(row.Items) > 0 && string(row.Items) != "null" {
		var items []loot.Item
		if err := json.Unmarshal(row.Items, &items); err != nil {
			return Quest{}, err
		}
		q.Items = items
	}
	return q, nil
}
