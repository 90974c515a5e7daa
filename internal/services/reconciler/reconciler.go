// Package reconciler реализует фоновые задачи сверки жизненного цикла.
//
// Каждая задача — периодический проход по хранилищу: находит записи,
// пересёкшие свою временную границу, и доводит состояние до актуального.
// Ошибка на одной записи не прерывает проход: она логируется, остальные
// записи обрабатываются. Условные UPDATE делают задачи идемпотентными —
// повторный проход по уже обработанной записи не меняет ни одной строки
// и не публикует повторных событий.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/wellmind/billing-service/internal/config"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/metrics"
	"github.com/wellmind/billing-service/internal/models"
	"github.com/wellmind/billing-service/internal/rabbitmq"
)

const lifecycleExchange = "lifecycle"

type ReconcilerRepository interface {
	FindExpiredDateTrials(ctx context.Context) ([]*models.User, error)
	FinishDateTrial(ctx context.Context, userUID string) (int, error)
	FindTrialsRolledOver(ctx context.Context) ([]*models.User, error)
	FindCancelledPlansExpired(ctx context.Context) ([]*models.User, error)
	FindCompletedPlans(ctx context.Context) ([]*models.User, error)
	UpdateLifecycleState(ctx context.Context, userUID string, from, to models.LifecycleState) (int, error)
	DeleteSchedulesByUser(ctx context.Context, userUID string) (int, error)
}

type ReconcilerService struct {
	repo ReconcilerRepository
	cfg  config.Reconciler
	log  *slog.Logger
	now  func() time.Time
}

// NewReconcilerService создает новый экземпляр ReconcilerService.
func NewReconcilerService(repo ReconcilerRepository, cfg config.Reconciler, log *slog.Logger) *ReconcilerService {
	return &ReconcilerService{
		repo: repo,
		cfg:  cfg,
		log:  log,
		now:  time.Now,
	}
}

// ExpireDateTrials закрывает пробные периоды по датам, чей end_trial наступил.
func (s *ReconcilerService) ExpireDateTrials(ctx context.Context) {
	s.runExpireDateTrials(ctx)

	ticker := time.NewTicker(s.cfg.DateTrialInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.runExpireDateTrials(ctx)
	}
}

func (s *ReconcilerService) runExpireDateTrials(ctx context.Context) {
	const sweep = "date_trial_expiry"
	s.log.Info("starting sweep to expire date trials")
	users, err := s.repo.FindExpiredDateTrials(ctx)
	if err != nil {
		s.log.Error("failed to find expired date trials", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no expired date trials found")
		return
	}
	s.log.Info("found expired date trials", "count", len(users))
	for _, user := range users {
		rows, err := s.repo.FinishDateTrial(ctx, user.UID)
		if err != nil {
			metrics.SweepErrors.WithLabelValues(sweep).Inc()
			s.log.Error("failed to finish date trial", "user_uid", user.UID, sl.Err(err))
			continue
		}
		if rows == 0 {
			continue
		}
		metrics.SweepProcessed.WithLabelValues(sweep).Inc()
		s.log.Info("date trial finished", "user_uid", user.UID)
	}
}

// RollOverTrials переводит пользователей с истёкшим пробным окном
// в оплачиваемый период и публикует событие trial_rolled.
func (s *ReconcilerService) RollOverTrials(ctx context.Context, channel rabbitmq.Channel) {
	s.runRollOverTrials(ctx, channel)

	ticker := time.NewTicker(s.cfg.TrialRolloverInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.runRollOverTrials(ctx, channel)
	}
}

func (s *ReconcilerService) runRollOverTrials(ctx context.Context, channel rabbitmq.Channel) {
	const sweep = "trial_rollover"
	s.log.Info("starting sweep to roll over expired trials")
	users, err := s.repo.FindTrialsRolledOver(ctx)
	if err != nil {
		s.log.Error("failed to find rolled over trials", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no rolled over trials found")
		return
	}
	s.log.Info("found rolled over trials", "count", len(users))
	for _, user := range users {
		rows, err := s.repo.UpdateLifecycleState(ctx, user.UID, models.StateTrialActive, models.StatePlanActive)
		if err != nil {
			metrics.SweepErrors.WithLabelValues(sweep).Inc()
			s.log.Error("failed to roll over trial", "user_uid", user.UID, sl.Err(err))
			continue
		}
		if rows == 0 {
			// Состояние успели изменить раньше: отмена или параллельный проход.
			continue
		}
		metrics.SweepProcessed.WithLabelValues(sweep).Inc()
		s.log.Info("trial rolled over to active plan", "user_uid", user.UID)
		s.publish(channel, "trial_rolled", user)
	}
}

// ExpireCancelledPlans завершает отменённые планы, чья граница активного
// периода пройдена: записи графиков удаляются, публикуется plan_ended.
func (s *ReconcilerService) ExpireCancelledPlans(ctx context.Context, channel rabbitmq.Channel) {
	s.runExpireCancelledPlans(ctx, channel)

	ticker := time.NewTicker(s.cfg.PlanExpiryInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.runExpireCancelledPlans(ctx, channel)
	}
}

func (s *ReconcilerService) runExpireCancelledPlans(ctx context.Context, channel rabbitmq.Channel) {
	const sweep = "cancelled_plan_expiry"
	s.log.Info("starting sweep to expire cancelled plans")
	users, err := s.repo.FindCancelledPlansExpired(ctx)
	if err != nil {
		s.log.Error("failed to find expired cancelled plans", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no expired cancelled plans found")
		return
	}
	s.log.Info("found expired cancelled plans", "count", len(users))
	for _, user := range users {
		s.finishPlan(ctx, channel, sweep, user, models.StatePlanCancelled)
	}
}

// CompletePlans завершает неотменённые планы, дошедшие до конца фазы,
// и публикует plan_ended.
func (s *ReconcilerService) CompletePlans(ctx context.Context, channel rabbitmq.Channel) {
	s.runCompletePlans(ctx, channel)

	ticker := time.NewTicker(s.cfg.PlanExpiryInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.runCompletePlans(ctx, channel)
	}
}

func (s *ReconcilerService) runCompletePlans(ctx context.Context, channel rabbitmq.Channel) {
	const sweep = "plan_completion"
	s.log.Info("starting sweep to complete finished plans")
	users, err := s.repo.FindCompletedPlans(ctx)
	if err != nil {
		s.log.Error("failed to find completed plans", sl.Err(err))
		return
	}
	if len(users) == 0 {
		s.log.Info("no completed plans found")
		return
	}
	s.log.Info("found completed plans", "count", len(users))
	for _, user := range users {
		s.finishPlan(ctx, channel, sweep, user, models.StatePlanActive)
	}
}

// finishPlan переводит пользователя в ended из ожидаемого состояния и
// удаляет его записи графиков. Удаление выполняется только после
// успешного перевода состояния.
func (s *ReconcilerService) finishPlan(ctx context.Context, channel rabbitmq.Channel,
	sweep string, user *models.User, from models.LifecycleState) {
	rows, err := s.repo.UpdateLifecycleState(ctx, user.UID, from, models.StateEnded)
	if err != nil {
		metrics.SweepErrors.WithLabelValues(sweep).Inc()
		s.log.Error("failed to finish plan", "user_uid", user.UID, sl.Err(err))
		return
	}
	if rows == 0 {
		return
	}
	if _, err := s.repo.DeleteSchedulesByUser(ctx, user.UID); err != nil {
		metrics.SweepErrors.WithLabelValues(sweep).Inc()
		s.log.Error("failed to delete schedules", "user_uid", user.UID, sl.Err(err))
		return
	}
	metrics.SweepProcessed.WithLabelValues(sweep).Inc()
	s.log.Info("plan finished", "user_uid", user.UID)
	s.publish(channel, "plan_ended", user)
}

func (s *ReconcilerService) publish(channel rabbitmq.Channel, kind string, user *models.User) {
	if channel == nil {
		return
	}
	event := models.LifecycleEvent{
		UserUID:  user.UID,
		Email:    user.Email,
		Username: user.Username,
		Kind:     kind,
		Occurred: s.now().UTC(),
	}
	if err := rabbitmq.PublishMessage(channel, lifecycleExchange, kind, event); err != nil {
		s.log.Error("failed to publish message", sl.Err(err))
	}
}
