// Package cycle считает границу активного периода оплаченного плана
// для графиков с интервалом списания в несколько месяцев.
package cycle

import (
	"errors"
	"time"
)

// maxPlanMonths ограничивает горизонт обхода циклов: план длиннее десяти лет
// не поддерживается, выход за горизонт — ошибка, а не неопределённая граница.
const maxPlanMonths = 120

var (
	// ErrUnsupportedInterval — комбинация интервала и кратности не поддерживается.
	ErrUnsupportedInterval = errors.New("unsupported billing interval")
	// ErrPastHorizon — точка наблюдения дальше последней вычислимой границы цикла.
	ErrPastHorizon = errors.New("observation instant is past the plan horizon")
)

// ActivePlanEnd возвращает границу, до которой план остаётся активным.
//
// Для кратности 1 граница совпадает с концом фазы, который сообщил провайдер,
// независимо от точки наблюдения. Для месячных интервалов с кратностью 3 или 6
// от начала фазы откладываются циклы по count месяцев и возвращается первая
// граница, не раньше точки наблюдения. Точка наблюдения — начало пробного окна
// при оформлении либо момент отмены при отмене графика.
func ActivePlanEnd(interval string, count int, phaseStart, phaseEnd, observed time.Time) (time.Time, error) {
	if count == 1 {
		switch interval {
		case "day", "month", "year":
			return phaseEnd, nil
		}
		return time.Time{}, ErrUnsupportedInterval
	}
	if interval != "month" || (count != 3 && count != 6) {
		return time.Time{}, ErrUnsupportedInterval
	}

	for months := count; months <= maxPlanMonths; months += count {
		boundary := phaseStart.AddDate(0, months, 0)
		if !observed.After(boundary) {
			return boundary, nil
		}
	}
	return time.Time{}, ErrPastHorizon
}
