package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wellmind/billing-service/internal/models"
)

const userColumns = `uid, email, username, password_hash, role, customer_id,
				      trial_used, lifecycle_state, date_trial, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var state string
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &u.PasswordHash, &u.Role,
		&u.CustomerID, &u.TrialUsed, &state, &u.DateTrial, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.State = models.LifecycleState(state)
	return u, nil
}

// RegisterUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newID string
	query := `INSERT INTO users (email, username, password_hash, role, customer_id, lifecycle_state)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role, user.CustomerID,
		string(models.StateNone)).Scan(&newID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE username = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users
			  WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// MarkTrialUsed помечает пробное окно использованным и переводит пользователя
// в заданное состояние. Условие trial_used = false делает пометку монотонной:
// повторный вызов не затрагивает ни одной строки.
func (s *Storage) MarkTrialUsed(ctx context.Context, userUID string, state models.LifecycleState) (int, error) {
	const op = "storage.MarkTrialUsed"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET trial_used = true, lifecycle_state = $1
			  WHERE uid = $2
			    AND trial_used = false`
	res, err := s.DB.ExecContext(ctx, query, string(state), userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpdateLifecycleState переводит пользователя из ожидаемого состояния в новое.
// Возвращает число изменённых строк: 0 означает, что кто-то успел изменить
// состояние раньше, и перевод не применён.
func (s *Storage) UpdateLifecycleState(ctx context.Context, userUID string, from, to models.LifecycleState) (int, error) {
	const op = "storage.UpdateLifecycleState"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET lifecycle_state = $1
			  WHERE uid = $2
			    AND lifecycle_state = $3`
	res, err := s.DB.ExecContext(ctx, query, string(to), userUID, string(from))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// SetLifecycleState переводит пользователя в новое состояние из любого
// состояния, кроме равного новому (повторный вызов — no-op).
func (s *Storage) SetLifecycleState(ctx context.Context, userUID string, to models.LifecycleState) (int, error) {
	const op = "storage.SetLifecycleState"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET lifecycle_state = $1
			  WHERE uid = $2
			    AND lifecycle_state <> $1`
	res, err := s.DB.ExecContext(ctx, query, string(to), userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// SetDateTrial выставляет флаг пробного периода по датам.
func (s *Storage) SetDateTrial(ctx context.Context, userUID string, active bool) error {
	const op = "storage.SetDateTrial"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET date_trial = $1
			  WHERE uid = $2`
	_, err := s.DB.ExecContext(ctx, query, active, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UserExists сообщает, существует ли пользователь с таким username или email.
func (s *Storage) UserExists(ctx context.Context, username, email string) (bool, error) {
	const op = "storage.UserExists"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`
	var exists bool
	if err := s.DB.QueryRowContext(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// FindExpiredDateTrials находит пользователей с активным пробным периодом
// по датам, у которых end_trial наступил сегодня или раньше.
func (s *Storage) FindExpiredDateTrials(ctx context.Context) ([]*models.User, error) {
	const op = "storage.FindExpiredDateTrials"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users u
			  JOIN trial_users t ON t.user_uid = u.uid
			  WHERE u.date_trial = true
			    AND t.end_trial::DATE <= CURRENT_DATE`
	return s.queryUsers(ctx, op, query)
}

// FinishDateTrial снимает флаг пробного периода по датам.
// Повторный вызов не затрагивает ни одной строки.
func (s *Storage) FinishDateTrial(ctx context.Context, userUID string) (int, error) {
	const op = "storage.FinishDateTrial"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET date_trial = false
			  WHERE uid = $1
			    AND date_trial = true`
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

// FindTrialsRolledOver находит пользователей, чьё пробное окно биллинга
// уже закончилось, но состояние ещё не переведено в оплачиваемый период.
func (s *Storage) FindTrialsRolledOver(ctx context.Context) ([]*models.User, error) {
	const op = "storage.FindTrialsRolledOver"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users u
			  JOIN billing_schedules b ON b.user_uid = u.uid
			  WHERE u.lifecycle_state = 'trial_active'
			    AND b.is_schedule = true
			    AND b.trial_end IS NOT NULL
			    AND b.trial_end < NOW()`
	return s.queryUsers(ctx, op, query)
}

// FindCancelledPlansExpired находит пользователей с отменённым планом,
// у которых граница активного периода уже пройдена.
func (s *Storage) FindCancelledPlansExpired(ctx context.Context) ([]*models.User, error) {
	const op = "storage.FindCancelledPlansExpired"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users u
			  JOIN billing_schedules b ON b.user_uid = u.uid
			  WHERE u.lifecycle_state = 'plan_cancelled'
			    AND b.active_plan_end IS NOT NULL
			    AND b.active_plan_end < NOW()`
	return s.queryUsers(ctx, op, query)
}

// FindCompletedPlans находит пользователей с неотменённым планом,
// дошедшим до естественного конца фазы.
func (s *Storage) FindCompletedPlans(ctx context.Context) ([]*models.User, error) {
	const op = "storage.FindCompletedPlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + `
			  FROM users u
			  JOIN billing_schedules b ON b.user_uid = u.uid
			  WHERE u.lifecycle_state = 'plan_active'
			    AND b.is_schedule = true
			    AND b.phase_end < NOW()`
	return s.queryUsers(ctx, op, query)
}

func (s *Storage) queryUsers(ctx context.Context, op, query string) ([]*models.User, error) {
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// IsNotFound сообщает, что запрос не нашёл ни одной строки.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
