// Package trial реализует выдачу и корректировку бесплатного пробного
// периода по датам. Запись в trial_users живёт отдельно от графиков
// платежей и закрывается задачей сверки по наступлению end_trial.
package trial

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/models"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

// DateLayout — формат дат пробного периода в запросах.
const DateLayout = "02-01-2006"

type TrialRepository interface {
	FindTrialUserByUserUID(ctx context.Context, userUID string) (*models.TrialUser, bool, error)
	GetTrialUser(ctx context.Context, id int) (*models.TrialUser, error)
	CreateTrialUser(ctx context.Context, trial models.TrialUser) (int, error)
	UpdateTrialUser(ctx context.Context, id int, startTrial, endTrial *time.Time) (int, error)
	SetDateTrial(ctx context.Context, userUID string, active bool) error
}

type Service struct {
	repo TrialRepository
	log  *slog.Logger
	now  func() time.Time
}

// New создает новый экземпляр Service.
func New(repo TrialRepository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// Apply выдаёт новый пробный период либо корректирует существующий.
//
// При user_trial = false создаётся новая запись: обе даты обязательны,
// начало не раньше текущего дня, конец строго позже начала, повторная
// выдача запрещена. При user_trial = true корректируется существующая
// запись: пропущенные даты берутся из неё, переданное начало не может
// быть в прошлом, порядок дат проверяется заново. Все проверки
// выполняются до записи в хранилище.
func (s *Service) Apply(ctx context.Context, userUID string, req models.TrialRequest) (*models.TrialView, error) {
	if req.UserTrial {
		return s.update(ctx, userUID, req)
	}
	return s.create(ctx, userUID, req)
}

func (s *Service) create(ctx context.Context, userUID string, req models.TrialRequest) (*models.TrialView, error) {
	const op = "services.trial.create"

	if req.StartTrial == "" || req.EndTrial == "" {
		return nil, apperr.New(apperr.KindMissingParam, "start_trial and end_trial are required")
	}
	start, end, err := parseDates(req.StartTrial, req.EndTrial)
	if err != nil {
		return nil, err
	}
	today := dateOnly(s.now())
	if start.Before(today) {
		return nil, apperr.New(apperr.KindInvalidDateRange, "start date must not be in the past")
	}
	if !end.After(start) {
		return nil, apperr.New(apperr.KindInvalidDateRange, "end date must be after start date")
	}

	_, found, err := s.repo.FindTrialUserByUserUID(ctx, userUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to check existing trial", fmt.Errorf("%s: %w", op, err))
	}
	if found {
		return nil, apperr.New(apperr.KindAlreadyExists, "trial period already exists")
	}

	id, err := s.repo.CreateTrialUser(ctx, models.TrialUser{
		UserUID:    userUID,
		StartTrial: start,
		EndTrial:   end,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to create trial", fmt.Errorf("%s: %w", op, err))
	}
	if err := s.repo.SetDateTrial(ctx, userUID, true); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to activate trial", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("trial period granted", "user_uid", userUID, "trial_id", id)
	return &models.TrialView{
		ID:         id,
		UserUID:    userUID,
		StartTrial: start,
		EndTrial:   end,
		UserTrial:  true,
	}, nil
}

func (s *Service) update(ctx context.Context, userUID string, req models.TrialRequest) (*models.TrialView, error) {
	const op = "services.trial.update"

	existing, err := s.findExisting(ctx, userUID, req.TrialID)
	if err != nil {
		return nil, err
	}

	var startPtr, endPtr *time.Time
	if req.StartTrial != "" {
		start, err := time.Parse(DateLayout, req.StartTrial)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidDateRange, "invalid start_trial format, expected "+DateLayout)
		}
		startPtr = &start
	}
	if req.EndTrial != "" {
		end, err := time.Parse(DateLayout, req.EndTrial)
		if err != nil {
			return nil, apperr.New(apperr.KindInvalidDateRange, "invalid end_trial format, expected "+DateLayout)
		}
		endPtr = &end
	}

	start := existing.StartTrial
	if startPtr != nil {
		// Новое начало подчиняется тем же правилам, что и при выдаче.
		// Сохранённое начало не перепроверяется: у уже идущего периода
		// оно в прошлом, и это не мешает двигать только конец.
		if dateOnly(*startPtr).Before(dateOnly(s.now())) {
			return nil, apperr.New(apperr.KindInvalidDateRange, "start date must not be in the past")
		}
		start = *startPtr
	}
	end := existing.EndTrial
	if endPtr != nil {
		end = *endPtr
	}
	if !dateOnly(end).After(dateOnly(start)) {
		return nil, apperr.New(apperr.KindInvalidDateRange, "end date must be after start date")
	}

	if _, err := s.repo.UpdateTrialUser(ctx, existing.ID, startPtr, endPtr); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update trial", fmt.Errorf("%s: %w", op, err))
	}
	if err := s.repo.SetDateTrial(ctx, userUID, true); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to activate trial", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("trial period updated", "user_uid", userUID, "trial_id", existing.ID)
	return &models.TrialView{
		ID:         existing.ID,
		UserUID:    userUID,
		StartTrial: start,
		EndTrial:   end,
		UserTrial:  true,
	}, nil
}

func (s *Service) findExisting(ctx context.Context, userUID string, trialID *int) (*models.TrialUser, error) {
	const op = "services.trial.findExisting"

	if trialID != nil {
		t, err := s.repo.GetTrialUser(ctx, *trialID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, apperr.New(apperr.KindNotFound, "trial period not found")
			}
			return nil, apperr.Wrap(apperr.KindInternal, "failed to load trial", fmt.Errorf("%s: %w", op, err))
		}
		if t.UserUID != userUID {
			return nil, apperr.New(apperr.KindNotFound, "trial period not found")
		}
		return t, nil
	}

	t, found, err := s.repo.FindTrialUserByUserUID(ctx, userUID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load trial", fmt.Errorf("%s: %w", op, err))
	}
	if !found {
		return nil, apperr.New(apperr.KindNotFound, "trial period not found")
	}
	return t, nil
}

func parseDates(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(DateLayout, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindInvalidDateRange, "invalid start_trial format, expected "+DateLayout)
	}
	end, err := time.Parse(DateLayout, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.New(apperr.KindInvalidDateRange, "invalid end_trial format, expected "+DateLayout)
	}
	return start, end, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
