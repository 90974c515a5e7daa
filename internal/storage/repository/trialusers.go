package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wellmind/billing-service/internal/models"
)

// FindTrialUserByUserUID ищет запись пробного периода пользователя.
// Отсутствие записи не является ошибкой: возвращается found = false.
func (s *Storage) FindTrialUserByUserUID(ctx context.Context, userUID string) (*models.TrialUser, bool, error) {
	const op = "storage.FindTrialUserByUserUID"
	select {
	case <-ctx.Done():
		return nil, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, start_trial, end_trial, created_at, updated_at
			  FROM trial_users
			  WHERE user_uid = $1`
	var t models.TrialUser
	err := s.DB.QueryRowContext(ctx, query, userUID).Scan(
		&t.ID, &t.UserUID, &t.StartTrial, &t.EndTrial, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &t, true, nil
}

// GetTrialUser возвращает запись пробного периода по её ID.
func (s *Storage) GetTrialUser(ctx context.Context, id int) (*models.TrialUser, error) {
	const op = "storage.GetTrialUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, start_trial, end_trial, created_at, updated_at
			  FROM trial_users
			  WHERE id = $1`
	var t models.TrialUser
	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.UserUID, &t.StartTrial, &t.EndTrial, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

// CreateTrialUser вставляет новую запись пробного периода и возвращает её ID.
func (s *Storage) CreateTrialUser(ctx context.Context, trial models.TrialUser) (int, error) {
	const op = "storage.CreateTrialUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO trial_users (user_uid, start_trial, end_trial)
			  VALUES ($1, $2, $3)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		trial.UserUID, trial.StartTrial, trial.EndTrial).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// UpdateTrialUser обновляет даты записи пробного периода по её ID
// и возвращает количество изменённых строк. Nil-дата оставляет прежнее
// значение; запись никогда не удаляется.
func (s *Storage) UpdateTrialUser(ctx context.Context, id int, startTrial, endTrial *time.Time) (int, error) {
	const op = "storage.UpdateTrialUser"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE trial_users
			  SET start_trial = COALESCE($1, start_trial),
			      end_trial = COALESCE($2, end_trial),
			      updated_at = NOW()
			  WHERE id = $3`
	res, err := s.DB.ExecContext(ctx, query, startTrial, endTrial, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
