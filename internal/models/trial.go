package models

import "time"

// TrialUser — запись бесплатного пробного периода по датам.
// Существует не более одной записи на пользователя; отсутствие записи
// означает, что пробный период по датам не выдавался.
type TrialUser struct {
	ID         int
	UserUID    string
	StartTrial time.Time
	EndTrial   time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TrialRequest используется для приёма данных из JSON-запроса на выдачу
// или корректировку пробного периода. Даты приходят строками в формате
// 02-01-2006 и валидируются вручную; при обновлении пропущенные даты
// берутся из существующей записи.
type TrialRequest struct {
	UserTrial  bool   `json:"user_trial"`
	TrialID    *int   `json:"trial_id,omitempty"`
	StartTrial string `json:"start_trial,omitempty"`
	EndTrial   string `json:"end_trial,omitempty"`
}

// TrialView — объединённое представление записи пробного периода,
// возвращаемое после выдачи или обновления.
type TrialView struct {
	ID         int       `json:"id"`
	UserUID    string    `json:"user_uid"`
	StartTrial time.Time `json:"start_trial"`
	EndTrial   time.Time `json:"end_trial"`
	UserTrial  bool      `json:"user_trial"`
}
