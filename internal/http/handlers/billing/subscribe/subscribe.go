// Package subscribe реализует HTTP-обработчик оформления подписки.
//
// Handler принимает JSON-запрос с тарифом и способом оплаты, извлекает UID
// пользователя из контекста и вызывает бизнес-логику оформления. Вид
// ошибки сервиса определяет HTTP-статус ответа.
package subscribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/http/response"
	"github.com/wellmind/billing-service/internal/lib/sl"
	"github.com/wellmind/billing-service/internal/models"
)

// Service описывает интерфейс бизнес-логики оформления подписки.
type Service interface {
	Subscribe(ctx context.Context, userUID string, req models.SubscribeRequest) (*models.ScheduleResult, error)
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Оформить подписку
// @Description Создает график платежей или setup intent для текущего пользователя.
// @Tags Billing
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body models.SubscribeRequest true "Параметры оформления"
// @Success 200 {object} map[string]any "Результат оформления"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON или отсутствует price_id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Тариф без периодического списания"
// @Failure 502 {object} response.ErrorResponse "Сбой платёжного провайдера"
// @Router /billing/subscribe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.billing.subscribe"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	log.Info("request body decoded", slog.Any("request", req))

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := middlewarectx.UserUID(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	result, err := h.service.Subscribe(r.Context(), userUID, req)
	if err != nil {
		log.Error("failed to subscribe", sl.Err(err))
		w.WriteHeader(response.StatusCode(err))
		render.JSON(w, r, response.FromError(err, "could not subscribe"))
		return
	}

	log.Info("subscription created", slog.Bool("is_schedule", result.IsSchedule))
	render.JSON(w, r, response.OKWithData(result))
}
