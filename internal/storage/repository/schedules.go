package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wellmind/billing-service/internal/models"
)

const scheduleColumns = `id, user_uid, price_id, payment_method_id, schedule_id,
				      subscription_id, setup_intent_id, is_schedule,
				      price_amount, price_currency, price_interval, price_interval_count,
				      phase_start, phase_end, trial_end, active_plan_end, created_at`

func scanSchedule(row interface{ Scan(...any) error }) (*models.ScheduleRecord, error) {
	var rec models.ScheduleRecord
	var priceID sql.NullString
	var trialEnd, activePlanEnd sql.NullTime
	if err := row.Scan(&rec.ID, &rec.UserUID, &priceID, &rec.PaymentMethodID,
		&rec.ScheduleID, &rec.SubscriptionID, &rec.SetupIntentID, &rec.IsSchedule,
		&rec.Price.UnitAmount, &rec.Price.Currency, &rec.Price.Interval, &rec.Price.IntervalCount,
		&rec.Phase.StartDate, &rec.Phase.EndDate, &trialEnd, &activePlanEnd,
		&rec.CreatedAt); err != nil {
		return nil, err
	}
	if priceID.Valid {
		rec.PriceID = &priceID.String
	}
	if trialEnd.Valid {
		rec.Phase.TrialEnd = &trialEnd.Time
	}
	if activePlanEnd.Valid {
		rec.Phase.ActivePlanEnd = &activePlanEnd.Time
	}
	return &rec, nil
}

// CreateScheduleRecord вставляет новую запись графика платежей и возвращает её ID.
func (s *Storage) CreateScheduleRecord(ctx context.Context, rec models.ScheduleRecord) (int, error) {
	const op = "storage.CreateScheduleRecord"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO billing_schedules (user_uid, price_id, payment_method_id,
				  schedule_id, subscription_id, setup_intent_id, is_schedule,
				  price_amount, price_currency, price_interval, price_interval_count,
				  phase_start, phase_end, trial_end, active_plan_end)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		rec.UserUID, rec.PriceID, rec.PaymentMethodID,
		rec.ScheduleID, rec.SubscriptionID, rec.SetupIntentID, rec.IsSchedule,
		rec.Price.UnitAmount, rec.Price.Currency, rec.Price.Interval, rec.Price.IntervalCount,
		rec.Phase.StartDate, rec.Phase.EndDate, rec.Phase.TrialEnd, rec.Phase.ActivePlanEnd).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetScheduleByScheduleID возвращает запись по идентификатору графика провайдера.
func (s *Storage) GetScheduleByScheduleID(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error) {
	const op = "storage.GetScheduleByScheduleID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + scheduleColumns + `
			  FROM billing_schedules
			  WHERE schedule_id = $1`
	rec, err := scanSchedule(s.DB.QueryRowContext(ctx, query, scheduleID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// ListSchedulesByUser возвращает записи графиков пользователя.
func (s *Storage) ListSchedulesByUser(ctx context.Context, userUID string) ([]*models.ScheduleRecord, error) {
	const op = "storage.ListSchedulesByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + scheduleColumns + `
			  FROM billing_schedules
			  WHERE user_uid = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.ScheduleRecord
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateCurrentPhase перезаписывает снимок текущей фазы записи графика.
func (s *Storage) UpdateCurrentPhase(ctx context.Context, id int, phase models.CurrentPhase) (int, error) {
	const op = "storage.UpdateCurrentPhase"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE billing_schedules
			  SET phase_start = $1, phase_end = $2, trial_end = $3, active_plan_end = $4
			  WHERE id = $5`
	res, err := s.DB.ExecContext(ctx, query,
		phase.StartDate, phase.EndDate, phase.TrialEnd, phase.ActivePlanEnd, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// DeleteSchedulesByUser удаляет все записи графиков пользователя и возвращает
// количество удалённых строк. Записи удаляются насовсем: по достижении
// терминальной границы история не сохраняется.
func (s *Storage) DeleteSchedulesByUser(ctx context.Context, userUID string) (int, error) {
	const op = "storage.DeleteSchedulesByUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM billing_schedules WHERE user_uid = $1`
	res, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
