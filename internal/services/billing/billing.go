// Package billing реализует оформление и отмену платёжных графиков.
//
// Оформление выбирает одну из трёх веток: график с пробным окном при первом
// обращении, график без пробного окна при повторном, либо разовый setup
// intent с мандатом. Локальная запись создаётся только после успешного
// вызова провайдера: при сбое внешнего вызова хранилище не меняется.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/lib/cycle"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/models"
	"github.com/wellmind/billing-service/internal/processor"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

const priceCacheTTL = time.Hour

type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	MarkTrialUsed(ctx context.Context, userUID string, state models.LifecycleState) (int, error)
	UpdateLifecycleState(ctx context.Context, userUID string, from, to models.LifecycleState) (int, error)
	SetLifecycleState(ctx context.Context, userUID string, to models.LifecycleState) (int, error)
}

type ScheduleRepository interface {
	CreateScheduleRecord(ctx context.Context, rec models.ScheduleRecord) (int, error)
	GetScheduleByScheduleID(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error)
	ListSchedulesByUser(ctx context.Context, userUID string) ([]*models.ScheduleRecord, error)
	UpdateCurrentPhase(ctx context.Context, id int, phase models.CurrentPhase) (int, error)
	DeleteSchedulesByUser(ctx context.Context, userUID string) (int, error)
}

type Processor interface {
	RetrievePrice(ctx context.Context, priceID string) (*processor.Price, error)
	CreateSchedule(ctx context.Context, req processor.CreateScheduleParams) (*processor.Schedule, error)
	RetrieveSchedule(ctx context.Context, scheduleID string) (*processor.Schedule, error)
	CancelSchedule(ctx context.Context, scheduleID string) (*processor.Schedule, error)
	CreateSetupIntent(ctx context.Context, req processor.SetupIntentParams) (*processor.SetupIntent, error)
}

type PriceCache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

type BillingService struct {
	users       UserRepository
	schedules   ScheduleRepository
	proc        Processor
	cache       PriceCache
	trialWindow time.Duration
	log         *slog.Logger
	now         func() time.Time
}

// New создает новый экземпляр BillingService.
func New(users UserRepository, schedules ScheduleRepository, proc Processor,
	cache PriceCache, trialWindow time.Duration, log *slog.Logger) *BillingService {
	return &BillingService{
		users:       users,
		schedules:   schedules,
		proc:        proc,
		cache:       cache,
		trialWindow: trialWindow,
		log:         log,
		now:         time.Now,
	}
}

// Subscribe оформляет подписку для пользователя.
//
// Проверки параметров выполняются до любых внешних вызовов. Ветка
// выбирается по is_schedule и признаку использованного пробного окна:
// первый график получает пробное окно длиной trialWindow и одну итерацию
// фазы, повторный — фазу без пробного окна с числом итераций по кратности
// тарифа, is_schedule = false создаёт setup intent с мандатом.
func (s *BillingService) Subscribe(ctx context.Context, userUID string, req models.SubscribeRequest) (*models.ScheduleResult, error) {
	const op = "services.billing.Subscribe"

	if req.PriceID == "" {
		return nil, apperr.New(apperr.KindMissingParam, "price_id is required")
	}

	user, err := s.users.GetUser(ctx, userUID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.KindNotFound, "user not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load user", fmt.Errorf("%s: %w", op, err))
	}

	price, err := s.getPrice(ctx, req.PriceID)
	if err != nil {
		return nil, err
	}
	if price.Recurring == nil {
		return nil, apperr.New(apperr.KindMissingRecurring, "price has no recurring definition")
	}

	switch {
	case req.IsSchedule && !user.TrialUsed:
		return s.subscribeWithTrial(ctx, user, req, price)
	case req.IsSchedule:
		return s.subscribeWithoutTrial(ctx, user, req, price)
	default:
		return s.createSetupIntent(ctx, user, req, price)
	}
}

// ListSchedules возвращает записи графиков пользователя.
func (s *BillingService) ListSchedules(ctx context.Context, userUID string) ([]*models.ScheduleRecord, error) {
	return s.schedules.ListSchedulesByUser(ctx, userUID)
}

func (s *BillingService) subscribeWithTrial(ctx context.Context, user *models.User,
	req models.SubscribeRequest, price *processor.Price) (*models.ScheduleResult, error) {
	const op = "services.billing.subscribeWithTrial"

	now := s.now().UTC()
	trialEnd := now.Add(s.trialWindow)

	sched, err := s.proc.CreateSchedule(ctx, processor.CreateScheduleParams{
		CustomerID: user.CustomerID,
		PriceID:    price.ID,
		TrialEnd:   &trialEnd,
		Iterations: 1,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to create schedule", fmt.Errorf("%s: %w", op, err))
	}

	phase := s.schedulePhase(sched, price, now, &trialEnd)
	activePlanEnd, err := cycle.ActivePlanEnd(price.Recurring.Interval, price.Recurring.IntervalCount,
		phase.StartDate, phase.EndDate, phase.StartDate)
	if err != nil {
		return nil, s.cycleError(op, err)
	}
	phase.ActivePlanEnd = &activePlanEnd

	rec := models.ScheduleRecord{
		UserUID:         user.UID,
		PriceID:         &price.ID,
		PaymentMethodID: req.PaymentMethodID,
		ScheduleID:      sched.ID,
		SubscriptionID:  sched.SubscriptionID,
		IsSchedule:      true,
		Price:           priceDetail(price),
		Phase:           phase,
	}
	if _, err := s.schedules.CreateScheduleRecord(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to save schedule", fmt.Errorf("%s: %w", op, err))
	}

	// Нулевое или уже истёкшее пробное окно сразу открывает оплачиваемый период.
	state := models.StateTrialActive
	if !trialEnd.After(now) {
		state = models.StatePlanActive
	}
	rows, err := s.users.MarkTrialUsed(ctx, user.UID, state)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to mark trial used", fmt.Errorf("%s: %w", op, err))
	}
	if rows == 0 {
		s.log.Warn("trial already marked used", "user_uid", user.UID)
	}
	user.TrialUsed = true
	user.State = state

	s.log.Info("schedule with trial created",
		"user_uid", user.UID, "schedule_id", sched.ID, "trial_end", trialEnd)
	return &models.ScheduleResult{
		ScheduleID:     sched.ID,
		SubscriptionID: sched.SubscriptionID,
		IsSchedule:     true,
		Phase:          &phase,
		Lifecycle:      user.Lifecycle(),
	}, nil
}

func (s *BillingService) subscribeWithoutTrial(ctx context.Context, user *models.User,
	req models.SubscribeRequest, price *processor.Price) (*models.ScheduleResult, error) {
	const op = "services.billing.subscribeWithoutTrial"

	now := s.now().UTC()
	sched, err := s.proc.CreateSchedule(ctx, processor.CreateScheduleParams{
		CustomerID: user.CustomerID,
		PriceID:    price.ID,
		Iterations: price.Recurring.IntervalCount,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to create schedule", fmt.Errorf("%s: %w", op, err))
	}

	phase := s.schedulePhase(sched, price, now, nil)
	activePlanEnd, err := cycle.ActivePlanEnd(price.Recurring.Interval, price.Recurring.IntervalCount,
		phase.StartDate, phase.EndDate, phase.StartDate)
	if err != nil {
		return nil, s.cycleError(op, err)
	}
	phase.ActivePlanEnd = &activePlanEnd

	rec := models.ScheduleRecord{
		UserUID:         user.UID,
		PriceID:         &price.ID,
		PaymentMethodID: req.PaymentMethodID,
		ScheduleID:      sched.ID,
		SubscriptionID:  sched.SubscriptionID,
		IsSchedule:      true,
		Price:           priceDetail(price),
		Phase:           phase,
	}
	if _, err := s.schedules.CreateScheduleRecord(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to save schedule", fmt.Errorf("%s: %w", op, err))
	}

	if _, err := s.users.SetLifecycleState(ctx, user.UID, models.StatePlanActive); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to update lifecycle state", fmt.Errorf("%s: %w", op, err))
	}
	user.State = models.StatePlanActive

	s.log.Info("schedule without trial created", "user_uid", user.UID, "schedule_id", sched.ID)
	return &models.ScheduleResult{
		ScheduleID:     sched.ID,
		SubscriptionID: sched.SubscriptionID,
		IsSchedule:     true,
		Phase:          &phase,
		Lifecycle:      user.Lifecycle(),
	}, nil
}

func (s *BillingService) createSetupIntent(ctx context.Context, user *models.User,
	req models.SubscribeRequest, price *processor.Price) (*models.ScheduleResult, error) {
	const op = "services.billing.createSetupIntent"

	si, err := s.proc.CreateSetupIntent(ctx, processor.SetupIntentParams{
		CustomerID:      user.CustomerID,
		PaymentMethodID: req.PaymentMethodID,
		Amount:          price.UnitAmount,
		Currency:        price.Currency,
		Interval:        price.Recurring.Interval,
		IntervalCount:   price.Recurring.IntervalCount,
		Reference:       user.UID,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to create setup intent", fmt.Errorf("%s: %w", op, err))
	}

	now := s.now().UTC()
	rec := models.ScheduleRecord{
		UserUID:         user.UID,
		PaymentMethodID: req.PaymentMethodID,
		SetupIntentID:   si.ID,
		IsSchedule:      false,
		Price:           priceDetail(price),
		Phase: models.CurrentPhase{
			StartDate: now,
			EndDate:   advance(now, price.Recurring.Interval, price.Recurring.IntervalCount),
		},
	}
	if _, err := s.schedules.CreateScheduleRecord(ctx, rec); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to save setup intent", fmt.Errorf("%s: %w", op, err))
	}

	s.log.Info("setup intent created", "user_uid", user.UID, "setup_intent_id", si.ID)
	return &models.ScheduleResult{
		SetupIntentID: si.ID,
		IsSchedule:    false,
		Lifecycle:     user.Lifecycle(),
	}, nil
}

// getPrice возвращает тариф из кеша либо от провайдера. Ошибки кеша
// не прерывают оформление: тариф запрашивается у провайдера напрямую.
func (s *BillingService) getPrice(ctx context.Context, priceID string) (*processor.Price, error) {
	const op = "services.billing.getPrice"
	key := "price:" + priceID

	var cached processor.Price
	found, err := s.cache.Get(key, &cached)
	if err != nil {
		s.log.Warn("failed to read price cache", sl.Err(err))
	}
	if found {
		return &cached, nil
	}

	price, err := s.proc.RetrievePrice(ctx, priceID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProcessorFailure, "failed to retrieve price", fmt.Errorf("%s: %w", op, err))
	}
	if err := s.cache.Set(key, price, priceCacheTTL); err != nil {
		s.log.Warn("failed to cache price", sl.Err(err))
	}
	return price, nil
}

// schedulePhase собирает снимок фазы из ответа провайдера; если провайдер
// не вернул фаз, границы считаются локально от момента оформления.
func (s *BillingService) schedulePhase(sched *processor.Schedule, price *processor.Price,
	now time.Time, trialEnd *time.Time) models.CurrentPhase {
	if len(sched.Phases) > 0 {
		ph := sched.Phases[0]
		return models.CurrentPhase{
			StartDate: ph.StartDate,
			EndDate:   ph.EndDate,
			TrialEnd:  ph.TrialEnd,
		}
	}
	start := now
	billingStart := start
	if trialEnd != nil {
		billingStart = *trialEnd
	}
	return models.CurrentPhase{
		StartDate: start,
		EndDate:   advance(billingStart, price.Recurring.Interval, price.Recurring.IntervalCount),
		TrialEnd:  trialEnd,
	}
}

func (s *BillingService) cycleError(op string, err error) error {
	if errors.Is(err, cycle.ErrPastHorizon) || errors.Is(err, cycle.ErrUnsupportedInterval) {
		return apperr.Wrap(apperr.KindMissingRecurring, err.Error(), fmt.Errorf("%s: %w", op, err))
	}
	return apperr.Wrap(apperr.KindInternal, "failed to compute plan boundary", fmt.Errorf("%s: %w", op, err))
}

func priceDetail(price *processor.Price) models.PriceDetail {
	return models.PriceDetail{
		UnitAmount:    price.UnitAmount,
		Currency:      price.Currency,
		Interval:      price.Recurring.Interval,
		IntervalCount: price.Recurring.IntervalCount,
	}
}

func advance(t time.Time, interval string, count int) time.Time {
	switch interval {
	case "day":
		return t.AddDate(0, 0, count)
	case "month":
		return t.AddDate(0, count, 0)
	case "year":
		return t.AddDate(count, 0, 0)
	}
	return t
}
