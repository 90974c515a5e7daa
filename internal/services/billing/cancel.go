package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/lib/cycle"
	"github.com/wellmind/billing-service/internal/models"
	"github.com/wellmind/billing-service/internal/processor"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

// Cancel отменяет график платежей пользователя.
//
// Ветка выбирается по моменту отмены относительно пробного окна: отмена до
// его конца убирает записи графиков и закрывает цикл, отмена после конца
// оставляет план активным до границы текущего цикла. Повторная отмена уже
// отменённого графика — no-op: возвращается текущий снимок без внешних
// побочных эффектов.
func (s *BillingService) Cancel(ctx context.Context, userUID, scheduleID string) (*models.CancellationResult, error) {
	const op = "services.billing.Cancel"

	rec, err := s.schedules.GetScheduleByScheduleID(ctx, scheduleID)
	if err != nil {
		if repository.IsNotFound(err) {
			return s.cancelWithoutRecord(ctx, userUID, scheduleID)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load schedule", fmt.Errorf("%s: %w", op, err))
	}
	if rec.UserUID != userUID {
		return nil, apperr.New(apperr.KindNotFound, "schedule not found")
	}

	sched, err := s.proc.RetrieveSchedule(ctx, scheduleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to retrieve schedule", fmt.Errorf("%s: %w", op, err))
	}
	if sched.Status == processor.ScheduleStatusCanceled {
		return s.alreadyCancelled(ctx, userUID, rec)
	}

	cancelled, err := s.proc.CancelSchedule(ctx, scheduleID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to cancel schedule", fmt.Errorf("%s: %w", op, err))
	}
	canceledAt := s.now().UTC()
	if cancelled.CanceledAt != nil {
		canceledAt = *cancelled.CanceledAt
	}

	trialEnd := rec.Phase.TrialEnd
	if trialEnd != nil && !canceledAt.After(*trialEnd) {
		return s.cancelDuringTrial(ctx, userUID, canceledAt)
	}
	return s.cancelActivePlan(ctx, userUID, rec, canceledAt, trialEnd != nil)
}

// alreadyCancelled возвращает снимок по уже отменённому графику, ничего
// не меняя ни у провайдера, ни в хранилище. IsTrialCancel выводится из
// записи графика: повторная отмена возвращает то же значение, что и
// первая, независимо от того, была ли у графика пробная фаза.
func (s *BillingService) alreadyCancelled(ctx context.Context, userUID string,
	rec *models.ScheduleRecord) (*models.CancellationResult, error) {
	const op = "services.billing.alreadyCancelled"

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load user", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("schedule already cancelled", "user_uid", userUID, "schedule_id", rec.ScheduleID)
	result := &models.CancellationResult{
		IsTrialCancel: rec.Phase.TrialEnd != nil || user.State == models.StateTrialCancelled,
	}
	if user.State == models.StatePlanCancelled {
		result.Phase = &rec.Phase
	}
	return result, nil
}

// cancelWithoutRecord отвечает на повторную отмену, когда записи графика
// уже нет: отмена во время пробного окна удаляет записи насовсем, поэтому
// повторный запрос обслуживается по статусу провайдера и состоянию
// пользователя, без побочных эффектов.
func (s *BillingService) cancelWithoutRecord(ctx context.Context, userUID,
	scheduleID string) (*models.CancellationResult, error) {
	const op = "services.billing.cancelWithoutRecord"

	sched, err := s.proc.RetrieveSchedule(ctx, scheduleID)
	if err != nil {
		s.log.Info("schedule unknown to processor", "schedule_id", scheduleID, "err", err)
		return nil, apperr.New(apperr.KindNotFound, "schedule not found")
	}
	if sched.Status != processor.ScheduleStatusCanceled {
		return nil, apperr.New(apperr.KindNotFound, "schedule not found")
	}

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load user", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("schedule already cancelled, record removed",
		"user_uid", userUID, "schedule_id", scheduleID)
	return &models.CancellationResult{IsTrialCancel: user.State == models.StateTrialCancelled}, nil
}

// cancelDuringTrial закрывает цикл при отмене до конца пробного окна:
// записи графиков удаляются насовсем, план не начинается.
func (s *BillingService) cancelDuringTrial(ctx context.Context, userUID string,
	canceledAt time.Time) (*models.CancellationResult, error) {
	const op = "services.billing.cancelDuringTrial"

	rows, err := s.users.UpdateLifecycleState(ctx, userUID, models.StateTrialActive, models.StateTrialCancelled)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update lifecycle state", fmt.Errorf("%s: %w", op, err))
	}
	if rows == 0 {
		s.log.Warn("lifecycle state changed concurrently", "user_uid", userUID)
	}
	if _, err := s.schedules.DeleteSchedulesByUser(ctx, userUID); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to delete schedules", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("schedule cancelled during trial", "user_uid", userUID, "canceled_at", canceledAt)
	return &models.CancellationResult{IsTrialCancel: true}, nil
}

// cancelActivePlan отменяет график во время оплачиваемого периода: план
// остаётся активным до первой границы цикла не раньше момента отмены.
func (s *BillingService) cancelActivePlan(ctx context.Context, userUID string,
	rec *models.ScheduleRecord, canceledAt time.Time, hadTrial bool) (*models.CancellationResult, error) {
	const op = "services.billing.cancelActivePlan"

	activePlanEnd, err := cycle.ActivePlanEnd(rec.Price.Interval, rec.Price.IntervalCount,
		rec.Phase.StartDate, rec.Phase.EndDate, canceledAt)
	if err != nil {
		return nil, s.cycleError(op, err)
	}

	phase := rec.Phase
	phase.ActivePlanEnd = &activePlanEnd
	if _, err := s.schedules.UpdateCurrentPhase(ctx, rec.ID, phase); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update phase", fmt.Errorf("%s: %w", op, err))
	}
	if _, err := s.users.SetLifecycleState(ctx, userUID, models.StatePlanCancelled); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update lifecycle state", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("schedule cancelled during active plan",
		"user_uid", userUID, "canceled_at", canceledAt, "active_plan_end", activePlanEnd)
	return &models.CancellationResult{IsTrialCancel: hadTrial, Phase: &phase}, nil
}
