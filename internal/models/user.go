// Package models содержит доменные структуры биллингового сервиса:
// пользователь с состоянием жизненного цикла подписки, запись графика
// платежей и запись бесплатного пробного периода по датам.
package models

import "time"

// LifecycleState описывает состояние жизненного цикла биллинга пользователя.
// Состояние заменяет набор независимых булевых флагов: в каждый момент
// времени пользователь находится ровно в одном состоянии.
type LifecycleState string

const (
	// StateNone — подписка ещё не оформлялась или полностью завершена и сброшена.
	StateNone LifecycleState = "none"
	// StateTrialActive — открыто пробное окно оплачиваемого графика.
	StateTrialActive LifecycleState = "trial_active"
	// StateTrialCancelled — график отменён до окончания пробного окна.
	StateTrialCancelled LifecycleState = "trial_cancelled"
	// StatePlanActive — идёт оплачиваемый период.
	StatePlanActive LifecycleState = "plan_active"
	// StatePlanCancelled — график отменён, но оплаченный период ещё длится.
	StatePlanCancelled LifecycleState = "plan_cancelled"
	// StateEnded — оплаченный период полностью истёк.
	StateEnded LifecycleState = "ended"
)

// User представляет зарегистрированного пользователя системы.
// TrialUsed монотонен: однажды выставленный, он больше не сбрасывается.
type User struct {
	UID          string         // Уникальный идентификатор пользователя
	Email        string         // Электронная почта
	Username     string         // Имя пользователя (уникальное)
	PasswordHash string         // Хэш пароля пользователя
	Role         string         // Роль пользователя, admin или user
	CustomerID   string         // Идентификатор клиента на стороне платёжного провайдера
	TrialUsed    bool           // Пробное окно биллинга уже использовалось
	State        LifecycleState // Текущее состояние жизненного цикла биллинга
	DateTrial    bool           // Активен ли пробный период по датам (trial_users)
	CreatedAt    time.Time
}

// IsTrialRunning возвращает true, если пробное окно биллинга сейчас открыто.
func (u *User) IsTrialRunning() bool { return u.State == StateTrialActive }

// IsTrialCancel возвращает true, если график был отменён во время пробного окна.
// Отмена после конца пробного окна сюда не входит: была ли у отменённого
// графика пробная фаза, определяется по его записи, а не по состоянию.
func (u *User) IsTrialCancel() bool {
	return u.State == StateTrialCancelled
}

// IsPlanRunning возвращает true, если идёт оплачиваемый период.
func (u *User) IsPlanRunning() bool {
	return u.State == StatePlanActive || u.State == StatePlanCancelled
}

// IsPlanCancel возвращает true, если график отменён после окончания пробного окна.
func (u *User) IsPlanCancel() bool { return u.State == StatePlanCancelled }

// LifecycleView — представление состояния пользователя в JSON-ответах.
// Булевы поля выводятся из LifecycleState для совместимости с клиентами.
type LifecycleView struct {
	State          LifecycleState `json:"state"`
	IsTrialUsed    bool           `json:"is_trial_used"`
	IsTrialRunning bool           `json:"is_trial_running"`
	IsTrialCancel  bool           `json:"is_trial_cancel"`
	IsPlanRunning  bool           `json:"is_plan_running"`
	IsPlanCancel   bool           `json:"is_plan_cancel"`
	DateTrial      bool           `json:"user_trial"`
}

// Lifecycle собирает LifecycleView из текущего состояния пользователя.
func (u *User) Lifecycle() LifecycleView {
	return LifecycleView{
		State:          u.State,
		IsTrialUsed:    u.TrialUsed,
		IsTrialRunning: u.IsTrialRunning(),
		IsTrialCancel:  u.IsTrialCancel(),
		IsPlanRunning:  u.IsPlanRunning(),
		IsPlanCancel:   u.IsPlanCancel(),
		DateTrial:      u.DateTrial,
	}
}
