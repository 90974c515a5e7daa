package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/models"
	"github.com/wellmind/billing-service/internal/processor"
)

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) MarkTrialUsed(ctx context.Context, userUID string, state models.LifecycleState) (int, error) {
	args := m.Called(ctx, userUID, state)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) UpdateLifecycleState(ctx context.Context, userUID string, from, to models.LifecycleState) (int, error) {
	args := m.Called(ctx, userUID, from, to)
	return args.Int(0), args.Error(1)
}

func (m *MockUserRepository) SetLifecycleState(ctx context.Context, userUID string, to models.LifecycleState) (int, error) {
	args := m.Called(ctx, userUID, to)
	return args.Int(0), args.Error(1)
}

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) CreateScheduleRecord(ctx context.Context, rec models.ScheduleRecord) (int, error) {
	args := m.Called(ctx, rec)
	return args.Int(0), args.Error(1)
}

func (m *MockScheduleRepository) GetScheduleByScheduleID(ctx context.Context, scheduleID string) (*models.ScheduleRecord, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ScheduleRecord), args.Error(1)
}

func (m *MockScheduleRepository) ListSchedulesByUser(ctx context.Context, userUID string) ([]*models.ScheduleRecord, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ScheduleRecord), args.Error(1)
}

func (m *MockScheduleRepository) UpdateCurrentPhase(ctx context.Context, id int, phase models.CurrentPhase) (int, error) {
	args := m.Called(ctx, id, phase)
	return args.Int(0), args.Error(1)
}

func (m *MockScheduleRepository) DeleteSchedulesByUser(ctx context.Context, userUID string) (int, error) {
	args := m.Called(ctx, userUID)
	return args.Int(0), args.Error(1)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) RetrievePrice(ctx context.Context, priceID string) (*processor.Price, error) {
	args := m.Called(ctx, priceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Price), args.Error(1)
}

func (m *MockProcessor) CreateSchedule(ctx context.Context, req processor.CreateScheduleParams) (*processor.Schedule, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Schedule), args.Error(1)
}

func (m *MockProcessor) RetrieveSchedule(ctx context.Context, scheduleID string) (*processor.Schedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Schedule), args.Error(1)
}

func (m *MockProcessor) CancelSchedule(ctx context.Context, scheduleID string) (*processor.Schedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.Schedule), args.Error(1)
}

func (m *MockProcessor) CreateSetupIntent(ctx context.Context, req processor.SetupIntentParams) (*processor.SetupIntent, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.SetupIntent), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func notFoundErr() error {
	return fmt.Errorf("storage.GetScheduleByScheduleID: %w", sql.ErrNoRows)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const (
	userUID    = "550e8400-e29b-41d4-a716-446655440000"
	customerID = "cus_123"
	priceID    = "price_123"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestService(users *MockUserRepository, schedules *MockScheduleRepository,
	proc *MockProcessor, cache *MockCache) *BillingService {
	s := New(users, schedules, proc, cache, 14*24*time.Hour, newNoopLogger())
	s.now = func() time.Time { return fixedNow }
	return s
}

func quarterlyPrice() *processor.Price {
	return &processor.Price{
		ID:         priceID,
		UnitAmount: 1990,
		Currency:   "usd",
		Recurring:  &processor.Recurring{Interval: "month", IntervalCount: 3},
	}
}

func cacheMiss(c *MockCache) {
	c.On("Get", "price:"+priceID, mock.Anything).Return(false, nil).Once()
	c.On("Set", "price:"+priceID, mock.Anything, time.Hour).Return(nil).Once()
}

func TestBillingService_Subscribe_WithTrial(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	trialEnd := fixedNow.Add(14 * 24 * time.Hour)
	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, CustomerID: customerID, State: models.StateNone}, nil).Once()
	cacheMiss(cache)
	proc.On("RetrievePrice", mock.Anything, priceID).Return(quarterlyPrice(), nil).Once()
	proc.On("CreateSchedule", mock.Anything, mock.MatchedBy(func(req processor.CreateScheduleParams) bool {
		return req.CustomerID == customerID && req.TrialEnd != nil &&
			req.TrialEnd.Equal(trialEnd) && req.Iterations == 1
	})).Return(&processor.Schedule{
		ID:             "sub_sched_1",
		SubscriptionID: "sub_1",
		Status:         "active",
		Phases: []processor.Phase{{
			StartDate: fixedNow,
			EndDate:   trialEnd.AddDate(0, 3, 0),
			TrialEnd:  &trialEnd,
		}},
	}, nil).Once()
	schedules.On("CreateScheduleRecord", mock.Anything, mock.MatchedBy(func(rec models.ScheduleRecord) bool {
		return rec.UserUID == userUID && rec.IsSchedule && rec.ScheduleID == "sub_sched_1" &&
			rec.Phase.TrialEnd != nil && rec.Phase.ActivePlanEnd != nil
	})).Return(1, nil).Once()
	users.On("MarkTrialUsed", mock.Anything, userUID, models.StateTrialActive).Return(1, nil).Once()

	result, err := service.Subscribe(context.Background(), userUID,
		models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true})

	require.NoError(t, err)
	assert.Equal(t, "sub_sched_1", result.ScheduleID)
	assert.True(t, result.IsSchedule)
	assert.Equal(t, models.StateTrialActive, result.Lifecycle.State)
	assert.True(t, result.Lifecycle.IsTrialUsed)
	assert.True(t, result.Lifecycle.IsTrialRunning)
	require.NotNil(t, result.Phase)
	require.NotNil(t, result.Phase.ActivePlanEnd)
	// Первая граница цикла не раньше начала фазы: start + 3 месяца.
	assert.Equal(t, fixedNow.AddDate(0, 3, 0), *result.Phase.ActivePlanEnd)

	users.AssertExpectations(t)
	schedules.AssertExpectations(t)
	proc.AssertExpectations(t)
	cache.AssertExpectations(t)
}

func TestBillingService_Subscribe_WithoutTrial(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, CustomerID: customerID, TrialUsed: true, State: models.StateEnded}, nil).Once()
	cacheMiss(cache)
	proc.On("RetrievePrice", mock.Anything, priceID).Return(quarterlyPrice(), nil).Once()
	proc.On("CreateSchedule", mock.Anything, mock.MatchedBy(func(req processor.CreateScheduleParams) bool {
		return req.TrialEnd == nil && req.Iterations == 3
	})).Return(&processor.Schedule{
		ID:             "sub_sched_2",
		SubscriptionID: "sub_2",
		Status:         "active",
		Phases: []processor.Phase{{
			StartDate: fixedNow,
			EndDate:   fixedNow.AddDate(0, 9, 0),
		}},
	}, nil).Once()
	schedules.On("CreateScheduleRecord", mock.Anything, mock.AnythingOfType("models.ScheduleRecord")).Return(2, nil).Once()
	users.On("SetLifecycleState", mock.Anything, userUID, models.StatePlanActive).Return(1, nil).Once()

	result, err := service.Subscribe(context.Background(), userUID,
		models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true})

	require.NoError(t, err)
	assert.Equal(t, models.StatePlanActive, result.Lifecycle.State)
	assert.True(t, result.Lifecycle.IsPlanRunning)
	assert.False(t, result.Lifecycle.IsTrialRunning)
	require.NotNil(t, result.Phase.ActivePlanEnd)
	assert.Equal(t, fixedNow.AddDate(0, 3, 0), *result.Phase.ActivePlanEnd)

	users.AssertExpectations(t)
	proc.AssertExpectations(t)
}

func TestBillingService_Subscribe_SetupIntent(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, CustomerID: customerID, State: models.StateNone}, nil).Once()
	cacheMiss(cache)
	proc.On("RetrievePrice", mock.Anything, priceID).Return(quarterlyPrice(), nil).Once()
	proc.On("CreateSetupIntent", mock.Anything, mock.MatchedBy(func(req processor.SetupIntentParams) bool {
		return req.CustomerID == customerID && req.PaymentMethodID == "pm_1" &&
			req.Amount == 1990 && req.Interval == "month" && req.IntervalCount == 3
	})).Return(&processor.SetupIntent{ID: "seti_1", Status: "succeeded"}, nil).Once()
	schedules.On("CreateScheduleRecord", mock.Anything, mock.MatchedBy(func(rec models.ScheduleRecord) bool {
		return !rec.IsSchedule && rec.SetupIntentID == "seti_1" && rec.PriceID == nil
	})).Return(3, nil).Once()

	result, err := service.Subscribe(context.Background(), userUID,
		models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: false})

	require.NoError(t, err)
	assert.Equal(t, "seti_1", result.SetupIntentID)
	assert.False(t, result.IsSchedule)
	// Setup intent не меняет состояние жизненного цикла.
	assert.Equal(t, models.StateNone, result.Lifecycle.State)

	users.AssertExpectations(t)
	proc.AssertExpectations(t)
	schedules.AssertExpectations(t)
}

func TestBillingService_Subscribe_Validation(t *testing.T) {
	tests := []struct {
		name         string
		req          models.SubscribeRequest
		setupMocks   func(*MockUserRepository, *MockProcessor, *MockCache)
		expectedKind apperr.Kind
	}{
		{
			name:         "missing price id",
			req:          models.SubscribeRequest{PaymentMethodID: "pm_1", IsSchedule: true},
			setupMocks:   func(_ *MockUserRepository, _ *MockProcessor, _ *MockCache) {},
			expectedKind: apperr.KindMissingParam,
		},
		{
			name: "price without recurring",
			req:  models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true},
			setupMocks: func(u *MockUserRepository, p *MockProcessor, c *MockCache) {
				u.On("GetUser", mock.Anything, userUID).
					Return(&models.User{UID: userUID, CustomerID: customerID}, nil).Once()
				cacheMiss(c)
				p.On("RetrievePrice", mock.Anything, priceID).
					Return(&processor.Price{ID: priceID, UnitAmount: 1990, Currency: "usd"}, nil).Once()
			},
			expectedKind: apperr.KindMissingRecurring,
		},
		{
			name: "processor failure on schedule",
			req:  models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true},
			setupMocks: func(u *MockUserRepository, p *MockProcessor, c *MockCache) {
				u.On("GetUser", mock.Anything, userUID).
					Return(&models.User{UID: userUID, CustomerID: customerID}, nil).Once()
				cacheMiss(c)
				p.On("RetrievePrice", mock.Anything, priceID).Return(quarterlyPrice(), nil).Once()
				p.On("CreateSchedule", mock.Anything, mock.AnythingOfType("processor.CreateScheduleParams")).
					Return(nil, errors.New("stripe is down")).Once()
			},
			expectedKind: apperr.KindProcessorFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			schedules := new(MockScheduleRepository)
			proc := new(MockProcessor)
			cache := new(MockCache)
			service := newTestService(users, schedules, proc, cache)
			tt.setupMocks(users, proc, cache)

			_, err := service.Subscribe(context.Background(), userUID, tt.req)

			require.Error(t, err)
			assert.Equal(t, tt.expectedKind, apperr.KindOf(err))
			// При сбое провайдера или валидации запись не создаётся.
			schedules.AssertNotCalled(t, "CreateScheduleRecord", mock.Anything, mock.Anything)
			users.AssertExpectations(t)
			proc.AssertExpectations(t)
		})
	}
}

func TestBillingService_Subscribe_PriceCacheHit(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, CustomerID: customerID, TrialUsed: true}, nil).Once()
	cache.On("Get", "price:"+priceID, mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(1).(*processor.Price) = *quarterlyPrice()
	}).Return(true, nil).Once()
	proc.On("CreateSchedule", mock.Anything, mock.AnythingOfType("processor.CreateScheduleParams")).
		Return(&processor.Schedule{
			ID: "sub_sched_3",
			Phases: []processor.Phase{{
				StartDate: fixedNow,
				EndDate:   fixedNow.AddDate(0, 9, 0),
			}},
		}, nil).Once()
	schedules.On("CreateScheduleRecord", mock.Anything, mock.AnythingOfType("models.ScheduleRecord")).Return(4, nil).Once()
	users.On("SetLifecycleState", mock.Anything, userUID, models.StatePlanActive).Return(1, nil).Once()

	_, err := service.Subscribe(context.Background(), userUID,
		models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true})

	require.NoError(t, err)
	proc.AssertNotCalled(t, "RetrievePrice", mock.Anything, mock.Anything)
	cache.AssertExpectations(t)
}

func scheduleRecordWithTrial() *models.ScheduleRecord {
	trialEnd := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return &models.ScheduleRecord{
		ID:         1,
		UserUID:    userUID,
		ScheduleID: "sub_sched_1",
		IsSchedule: true,
		Price:      models.PriceDetail{UnitAmount: 1990, Currency: "usd", Interval: "month", IntervalCount: 3},
		Phase: models.CurrentPhase{
			StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
			TrialEnd:  &trialEnd,
		},
	}
}

func TestBillingService_Cancel_DuringTrial(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	rec := scheduleRecordWithTrial()
	canceledAt := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(rec, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "active"}, nil).Once()
	proc.On("CancelSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled", CanceledAt: &canceledAt}, nil).Once()
	users.On("UpdateLifecycleState", mock.Anything, userUID, models.StateTrialActive, models.StateTrialCancelled).
		Return(1, nil).Once()
	schedules.On("DeleteSchedulesByUser", mock.Anything, userUID).Return(1, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.True(t, result.IsTrialCancel)
	assert.Nil(t, result.Phase)

	users.AssertExpectations(t)
	schedules.AssertExpectations(t)
	proc.AssertExpectations(t)
}

func TestBillingService_Cancel_DuringActivePlan(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	rec := scheduleRecordWithTrial()
	canceledAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(rec, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "active"}, nil).Once()
	proc.On("CancelSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled", CanceledAt: &canceledAt}, nil).Once()
	schedules.On("UpdateCurrentPhase", mock.Anything, 1, mock.MatchedBy(func(phase models.CurrentPhase) bool {
		return phase.ActivePlanEnd != nil &&
			phase.ActivePlanEnd.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	})).Return(1, nil).Once()
	users.On("SetLifecycleState", mock.Anything, userUID, models.StatePlanCancelled).Return(1, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.True(t, result.IsTrialCancel)
	require.NotNil(t, result.Phase)
	// Отмена 1 мая при цикле в 3 месяца от 1 января: план активен до 1 июля.
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *result.Phase.ActivePlanEnd)
	// Записи не удаляются: план ещё активен до границы цикла.
	schedules.AssertNotCalled(t, "DeleteSchedulesByUser", mock.Anything, mock.Anything)

	users.AssertExpectations(t)
	schedules.AssertExpectations(t)
	proc.AssertExpectations(t)
}

func TestBillingService_Cancel_WithoutTrialPhase(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	rec := scheduleRecordWithTrial()
	rec.Phase.TrialEnd = nil
	canceledAt := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)
	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(rec, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "active"}, nil).Once()
	proc.On("CancelSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled", CanceledAt: &canceledAt}, nil).Once()
	schedules.On("UpdateCurrentPhase", mock.Anything, 1, mock.AnythingOfType("models.CurrentPhase")).Return(1, nil).Once()
	users.On("SetLifecycleState", mock.Anything, userUID, models.StatePlanCancelled).Return(1, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.False(t, result.IsTrialCancel)
	require.NotNil(t, result.Phase)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), *result.Phase.ActivePlanEnd)
}

func TestBillingService_Cancel_Idempotent(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	rec := scheduleRecordWithTrial()
	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(rec, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled"}, nil).Once()
	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, State: models.StatePlanCancelled, TrialUsed: true}, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.True(t, result.IsTrialCancel)
	require.NotNil(t, result.Phase)
	// Повторная отмена не зовёт провайдера и не трогает хранилище.
	proc.AssertNotCalled(t, "CancelSchedule", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "UpdateLifecycleState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	schedules.AssertNotCalled(t, "DeleteSchedulesByUser", mock.Anything, mock.Anything)
}

func TestBillingService_Cancel_NotFound(t *testing.T) {
	tests := []struct {
		name       string
		setupMocks func(*MockScheduleRepository, *MockProcessor)
		callerUID  string
	}{
		{
			// Записи нет и провайдер график не знает: отменять нечего.
			name: "unknown schedule",
			setupMocks: func(s *MockScheduleRepository, p *MockProcessor) {
				s.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").
					Return(nil, notFoundErr()).Once()
				p.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
					Return(nil, errors.New("no such schedule")).Once()
			},
			callerUID: userUID,
		},
		{
			// Записи нет, у провайдера график ещё активен: локальное хранилище
			// рассинхронизировано, но чужой активный график не отменяем.
			name: "record missing but schedule still active",
			setupMocks: func(s *MockScheduleRepository, p *MockProcessor) {
				s.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").
					Return(nil, notFoundErr()).Once()
				p.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
					Return(&processor.Schedule{ID: "sub_sched_1", Status: "active"}, nil).Once()
			},
			callerUID: userUID,
		},
		{
			name: "schedule belongs to another user",
			setupMocks: func(s *MockScheduleRepository, p *MockProcessor) {
				s.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").
					Return(scheduleRecordWithTrial(), nil).Once()
			},
			callerUID: "other-user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			schedules := new(MockScheduleRepository)
			proc := new(MockProcessor)
			cache := new(MockCache)
			service := newTestService(users, schedules, proc, cache)
			tt.setupMocks(schedules, proc)

			_, err := service.Cancel(context.Background(), tt.callerUID, "sub_sched_1")

			require.Error(t, err)
			assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
			proc.AssertNotCalled(t, "CancelSchedule", mock.Anything, mock.Anything)
			proc.AssertExpectations(t)
		})
	}
}

// Повторная отмена графика без пробной фазы: значение is_trial_cancel не
// должно меняться между первым и повторным вызовом.
func TestBillingService_Cancel_RepeatWithoutTrialKeepsFlag(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	rec := scheduleRecordWithTrial()
	rec.Phase.TrialEnd = nil
	activePlanEnd := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	rec.Phase.ActivePlanEnd = &activePlanEnd

	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(rec, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled"}, nil).Once()
	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, State: models.StatePlanCancelled, TrialUsed: false}, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	// Первая отмена вернула false: пробной фазы у графика не было.
	assert.False(t, result.IsTrialCancel)
	require.NotNil(t, result.Phase)
	proc.AssertNotCalled(t, "CancelSchedule", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "SetLifecycleState", mock.Anything, mock.Anything, mock.Anything)
}

// Повторная отмена после отмены в пробном окне: записи графиков уже
// удалены, но ответ остаётся тем же, что и при первой отмене.
func TestBillingService_Cancel_RepeatAfterTrialCancel(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").
		Return(nil, notFoundErr()).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled"}, nil).Once()
	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, State: models.StateTrialCancelled, TrialUsed: true}, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.True(t, result.IsTrialCancel)
	assert.Nil(t, result.Phase)
	proc.AssertNotCalled(t, "CancelSchedule", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "UpdateLifecycleState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	schedules.AssertNotCalled(t, "DeleteSchedulesByUser", mock.Anything, mock.Anything)
}

// Полный путь ветки с пробным окном: оформление графика, затем отмена уже
// после конца пробного окна — запись не удаляется, граница активного
// периода пересчитывается по моменту отмены.
func TestBillingService_SubscribeThenCancelAfterTrial(t *testing.T) {
	users := new(MockUserRepository)
	schedules := new(MockScheduleRepository)
	proc := new(MockProcessor)
	cache := new(MockCache)
	service := newTestService(users, schedules, proc, cache)

	trialEnd := fixedNow.Add(14 * 24 * time.Hour)
	phaseEnd := trialEnd.AddDate(0, 3, 0)

	users.On("GetUser", mock.Anything, userUID).
		Return(&models.User{UID: userUID, CustomerID: customerID, State: models.StateNone}, nil).Once()
	cacheMiss(cache)
	proc.On("RetrievePrice", mock.Anything, priceID).Return(quarterlyPrice(), nil).Once()
	proc.On("CreateSchedule", mock.Anything, mock.AnythingOfType("processor.CreateScheduleParams")).
		Return(&processor.Schedule{
			ID:             "sub_sched_1",
			SubscriptionID: "sub_1",
			Status:         "active",
			Phases: []processor.Phase{{
				StartDate: fixedNow,
				EndDate:   phaseEnd,
				TrialEnd:  &trialEnd,
			}},
		}, nil).Once()

	var created models.ScheduleRecord
	schedules.On("CreateScheduleRecord", mock.Anything, mock.AnythingOfType("models.ScheduleRecord")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(models.ScheduleRecord)
		}).Return(1, nil).Once()
	users.On("MarkTrialUsed", mock.Anything, userUID, models.StateTrialActive).Return(1, nil).Once()

	_, err := service.Subscribe(context.Background(), userUID,
		models.SubscribeRequest{PriceID: priceID, PaymentMethodID: "pm_1", IsSchedule: true})
	require.NoError(t, err)
	created.ID = 1

	// Отмена спустя два месяца, пробное окно давно пройдено.
	canceledAt := fixedNow.AddDate(0, 2, 0)
	schedules.On("GetScheduleByScheduleID", mock.Anything, "sub_sched_1").Return(&created, nil).Once()
	proc.On("RetrieveSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "active"}, nil).Once()
	proc.On("CancelSchedule", mock.Anything, "sub_sched_1").
		Return(&processor.Schedule{ID: "sub_sched_1", Status: "canceled", CanceledAt: &canceledAt}, nil).Once()
	schedules.On("UpdateCurrentPhase", mock.Anything, 1, mock.MatchedBy(func(phase models.CurrentPhase) bool {
		return phase.ActivePlanEnd != nil && phase.ActivePlanEnd.Equal(fixedNow.AddDate(0, 3, 0))
	})).Return(1, nil).Once()
	users.On("SetLifecycleState", mock.Anything, userUID, models.StatePlanCancelled).Return(1, nil).Once()

	result, err := service.Cancel(context.Background(), userUID, "sub_sched_1")

	require.NoError(t, err)
	assert.True(t, result.IsTrialCancel)
	require.NotNil(t, result.Phase)
	require.NotNil(t, result.Phase.ActivePlanEnd)
	assert.Equal(t, fixedNow.AddDate(0, 3, 0), *result.Phase.ActivePlanEnd)
	schedules.AssertNotCalled(t, "DeleteSchedulesByUser", mock.Anything, mock.Anything)

	users.AssertExpectations(t)
	schedules.AssertExpectations(t)
	proc.AssertExpectations(t)
}
