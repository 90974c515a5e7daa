// Package schedulelist реализует HTTP-обработчик списка графиков пользователя.
package schedulelist

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/http/response"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/models"
)

// Service описывает интерфейс бизнес-логики получения графиков.
type Service interface {
	ListSchedules(ctx context.Context, userUID string) ([]*models.ScheduleRecord, error)
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
// @Summary Список графиков платежей
// @Description Возвращает записи графиков текущего пользователя.
// @Tags Billing
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} map[string]any "Список графиков"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /billing/schedules [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.schedulelist"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUID(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	schedules, err := h.service.ListSchedules(r.Context(), userUID)
	if err != nil {
		log.Error("failed to list schedules", sl.Err(err))
		w.WriteHeader(response.StatusCode(err))
		render.JSON(w, r, response.FromError(err, "could not list schedules"))
		return
	}

	log.Info("schedules listed", slog.Int("count", len(schedules)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"schedules": schedules,
		"count":     len(schedules),
	}))
}
