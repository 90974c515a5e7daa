// Package apperr определяет классификацию ошибок биллингового сервиса.
//
// Ошибки валидации (MissingParam, InvalidDateRange, AlreadyExists, NotFound)
// возникают до любых внешних вызовов и возвращаются без побочных эффектов.
// ProcessorFailure означает сбой платёжного провайдера, Internal — любой
// другой неожиданный сбой (например, ошибку хранилища).
package apperr

import (
	"errors"
	"fmt"
)

// Kind — вид ошибки, по которому HTTP-обработчики выбирают статус ответа.
type Kind string

const (
	// KindMissingParam — отсутствует обязательный параметр запроса.
	KindMissingParam Kind = "MISSING_PARAM"
	// KindMissingRecurring — у тарифа нет определения периодического списания.
	KindMissingRecurring Kind = "MISSING_RECURRING_DEFINITION"
	// KindAlreadyExists — запись уже существует.
	KindAlreadyExists Kind = "ALREADY_EXISTS"
	// KindNotFound — запись по указанному идентификатору не найдена.
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidDateRange — нарушен порядок дат пробного периода.
	KindInvalidDateRange Kind = "INVALID_DATE_RANGE"
	// KindProcessorFailure — вызов платёжного провайдера завершился ошибкой.
	KindProcessorFailure Kind = "PROCESSOR_FAILURE"
	// KindInternal — неожиданный внутренний сбой.
	KindInternal Kind = "INTERNAL"
)

// Error — структурированная ошибка с видом и человеко-читаемым сообщением.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New создает ошибку заданного вида с сообщением.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap оборачивает исходную ошибку, сохраняя вид и сообщение.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf возвращает вид ошибки или KindInternal, если ошибка не классифицирована.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message возвращает сообщение классифицированной ошибки либо запасной текст.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return fallback
}
