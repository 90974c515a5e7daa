package subscribe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/lib/apperr"
	"github.com/wellmind/billing-service/internal/models"
)

// MockService реализует интерфейс subscribe.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Subscribe(ctx context.Context, userUID string, req models.SubscribeRequest) (*models.ScheduleResult, error) {
	args := m.Called(ctx, userUID, req)
	if res := args.Get(0); res != nil {
		return res.(*models.ScheduleResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestSubscribeHandler(t *testing.T) {
	const userUID = "550e8400-e29b-41d4-a716-446655440000"

	tests := []struct {
		name           string
		body           string
		withUID        bool
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "успешное оформление графика",
			body:    `{"price_id":"price_123","payment_method_id":"pm_1","is_schedule":true}`,
			withUID: true,
			setupMock: func(m *MockService) {
				m.On("Subscribe", mock.Anything, userUID, mock.AnythingOfType("models.SubscribeRequest")).
					Return(&models.ScheduleResult{ScheduleID: "sub_sched_1", IsSchedule: true}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"schedule_id":"sub_sched_1"`,
		},
		{
			name:           "некорректный JSON",
			body:           `{not json`,
			withUID:        true,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid request body`,
		},
		{
			name:           "нет способа оплаты",
			body:           `{"price_id":"price_123","is_schedule":true}`,
			withUID:        true,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `PaymentMethodID`,
		},
		{
			name:           "пользователь не авторизован",
			body:           `{"price_id":"price_123","payment_method_id":"pm_1","is_schedule":true}`,
			withUID:        false,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `unauthorized`,
		},
		{
			name:    "отсутствует price_id",
			body:    `{"payment_method_id":"pm_1","is_schedule":true}`,
			withUID: true,
			setupMock: func(m *MockService) {
				m.On("Subscribe", mock.Anything, userUID, mock.AnythingOfType("models.SubscribeRequest")).
					Return(nil, apperr.New(apperr.KindMissingParam, "price_id is required"))
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `price_id is required`,
		},
		{
			name:    "сбой платёжного провайдера",
			body:    `{"price_id":"price_123","payment_method_id":"pm_1","is_schedule":true}`,
			withUID: true,
			setupMock: func(m *MockService) {
				m.On("Subscribe", mock.Anything, userUID, mock.AnythingOfType("models.SubscribeRequest")).
					Return(nil, apperr.New(apperr.KindProcessorFailure, "failed to create schedule"))
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `failed to create schedule`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(newNoopLogger(), mockService)

			req := httptest.NewRequest(http.MethodPost, "/billing/subscribe", strings.NewReader(tt.body))
			if tt.withUID {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UID, userUID))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
