// Package processor реализует клиента платёжного провайдера (Stripe).
//
// Сервисы работают с узкими локальными типами пакета: секунды эпохи из
// ответов провайдера конвертируются в time.Time на этой границе, поэтому
// дальше по коду даты всегда сериализуются в RFC 3339, а не в сырые секунды.
package processor

import "time"

// ScheduleStatusCanceled — статус уже отменённого графика у провайдера.
const ScheduleStatusCanceled = "canceled"

// Recurring — определение периодического списания тарифа.
type Recurring struct {
	Interval      string // day, month или year
	IntervalCount int
}

// Price — тариф провайдера. Recurring равен nil для разовых тарифов.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
	ProductID  string
	Recurring  *Recurring
}

// Product — продукт провайдера.
type Product struct {
	ID   string
	Name string
}

// Phase — фаза графика платежей.
type Phase struct {
	StartDate time.Time
	EndDate   time.Time
	TrialEnd  *time.Time
}

// Schedule — график платежей на стороне провайдера.
type Schedule struct {
	ID             string
	SubscriptionID string
	Status         string
	CanceledAt     *time.Time
	Phases         []Phase
}

// SetupIntent — разовый setup intent с мандатом на периодическое списание.
type SetupIntent struct {
	ID           string
	Status       string
	ClientSecret string
}

// CreateScheduleParams — параметры создания графика.
// TrialEnd равен nil, когда график создаётся без пробного окна;
// Iterations задаёт число повторений фазы.
type CreateScheduleParams struct {
	CustomerID string
	PriceID    string
	TrialEnd   *time.Time
	Iterations int
}

// SetupIntentParams — параметры создания setup intent с мандатом.
type SetupIntentParams struct {
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Interval        string
	IntervalCount   int
	Reference       string
}
