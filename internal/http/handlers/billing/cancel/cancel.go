// Package cancel реализует HTTP-обработчик отмены графика платежей.
package cancel

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/http/response"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/models"
)

// Service описывает интерфейс бизнес-логики отмены графика.
type Service interface {
	Cancel(ctx context.Context, userUID, scheduleID string) (*models.CancellationResult, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отменить график платежей
// @Description Отменяет график у провайдера. До конца пробного окна цикл закрывается сразу, после — план остаётся активным до границы цикла.
// @Tags Billing
// @Produce  json
// @Security BearerAuth
// @Param id path string true "Идентификатор графика"
// @Success 200 {object} map[string]any "Результат отмены"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "График не найден"
// @Failure 502 {object} response.ErrorResponse "Сбой платёжного провайдера"
// @Router /billing/schedules/{id} [delete]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.cancel"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	scheduleID := chi.URLParam(r, "id")
	if scheduleID == "" {
		log.Error("schedule id is empty")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("schedule id is required"))
		return
	}

	userUID, ok := middlewarectx.UserUID(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.Cancel(r.Context(), userUID, scheduleID)
	if err != nil {
		log.Error("failed to cancel schedule", sl.Err(err))
		w.WriteHeader(response.StatusCode(err))
		render.JSON(w, r, response.FromError(err, "could not cancel schedule"))
		return
	}

	log.Info("schedule cancelled", slog.String("schedule_id", scheduleID),
		slog.Bool("is_trial_cancel", result.IsTrialCancel))
	render.JSON(w, r, response.OKWithData(result))
}
