// Package apply реализует HTTP-обработчик выдачи и корректировки
// бесплатного пробного периода по датам.
package apply

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/http/response"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/models"
)

// Service описывает интерфейс бизнес-логики пробного периода.
type Service interface {
	Apply(ctx context.Context, userUID string, req models.TrialRequest) (*models.TrialView, error)
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
// @Summary Выдать или скорректировать пробный период
// @Description Создает запись пробного периода по датам либо обновляет существующую.
// @Tags Trial
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.TrialRequest true "Даты пробного периода"
// @Success 200 {object} map[string]any "Запись пробного периода"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или отсутствуют даты"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Запись не найдена"
// @Failure 409 {object} response.ErrorResponse "Пробный период уже выдан"
// @Failure 422 {object} response.ErrorResponse "Нарушен порядок дат"
// @Router /trial [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.trial.apply"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.TrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	userUID, ok := middlewarectx.UserUID(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	view, err := h.service.Apply(r.Context(), userUID, req)
	if err != nil {
		log.Error("failed to apply trial", sl.Err(err))
		w.WriteHeader(response.StatusCode(err))
		render.JSON(w, r, response.FromError(err, "could not apply trial"))
		return
	}

	log.Info("trial applied", slog.Int("trial_id", view.ID))
	render.JSON(w, r, response.OKWithData(view))
}
