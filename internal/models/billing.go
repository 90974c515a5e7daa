package models

import "time"

// PriceDetail — снимок тарифа платёжного провайдера на момент оформления.
// Суммы хранятся в минимальных единицах валюты (копейки, центы).
type PriceDetail struct {
	UnitAmount    int64  `json:"unit_amount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`       // day, month или year
	IntervalCount int    `json:"interval_count"` // 1, 3 или 6
}

// CurrentPhase — снимок текущей фазы графика платежей.
// TrialEnd равен nil, если график создан без пробного окна.
// ActivePlanEnd — граница, до которой план остаётся активным после отмены.
type CurrentPhase struct {
	StartDate     time.Time  `json:"start_date"`
	EndDate       time.Time  `json:"end_date"`
	TrialEnd      *time.Time `json:"trial_end,omitempty"`
	ActivePlanEnd *time.Time `json:"active_plan_end,omitempty"`
}

// ScheduleRecord — локальная запись графика платежей или разового setup intent.
// На пользователя существует не более одной живой записи с IsSchedule=true:
// задачи сверки удаляют запись, как только её терминальная граница пройдена.
type ScheduleRecord struct {
	ID              int
	UserUID         string
	PriceID         *string // nil для разового setup intent
	PaymentMethodID string
	ScheduleID      string // Идентификатор графика на стороне провайдера
	SubscriptionID  string
	SetupIntentID   string
	IsSchedule      bool // Дискриминатор: график или разовый setup intent
	Price           PriceDetail
	Phase           CurrentPhase
	CreatedAt       time.Time
}

// SubscribeRequest используется для приёма данных из JSON-запроса на оформление.
// PriceID проверяется в сервисе, а не валидатором: его отсутствие — отдельный
// вид ошибки до любых внешних вызовов.
type SubscribeRequest struct {
	PriceID         string `json:"price_id"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
	IsSchedule      bool   `json:"is_schedule"`
}

// ScheduleResult — результат оформления подписки или setup intent.
type ScheduleResult struct {
	ScheduleID     string        `json:"schedule_id,omitempty"`
	SubscriptionID string        `json:"subscription_id,omitempty"`
	SetupIntentID  string        `json:"setup_intent_id,omitempty"`
	IsSchedule     bool          `json:"is_schedule"`
	Phase          *CurrentPhase `json:"current_phase,omitempty"`
	Lifecycle      LifecycleView `json:"lifecycle"`
}

// CancellationResult — результат отмены графика.
// При отмене до конца пробного окна возвращается только IsTrialCancel,
// в остальных ветках — пересчитанный снимок фазы.
type CancellationResult struct {
	IsTrialCancel bool          `json:"is_trial_cancel"`
	Phase         *CurrentPhase `json:"current_phase,omitempty"`
}

// LifecycleEvent — событие жизненного цикла, публикуемое задачами сверки
// в RabbitMQ для сервиса уведомлений.
type LifecycleEvent struct {
	UserUID  string    `json:"user_uid"`
	Email    string    `json:"email"`
	Username string    `json:"username"`
	Kind     string    `json:"kind"` // trial_rolled или plan_ended
	Occurred time.Time `json:"occurred"`
}
