// Package billingservice предоставляет маршруты для основного приложения.
package billingservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wellmind/billing-service/internal/http/handlers/auth/login"
	"github.com/wellmind/billing-service/internal/http/handlers/auth/register"
	"github.com/wellmind/billing-service/internal/http/handlers/billing/cancel"
	"github.com/wellmind/billing-service/internal/http/handlers/billing/schedulelist"
	"github.com/wellmind/billing-service/internal/http/handlers/billing/subscribe"
	"github.com/wellmind/billing-service/internal/http/handlers/health"
	"github.com/wellmind/billing-service/internal/http/handlers/trial/apply"
	"github.com/wellmind/billing-service/internal/http/middlewarectx"
	"github.com/wellmind/billing-service/internal/lib/jwt"
	authservice "github.com/wellmind/billing-service/internal/services/auth"
	billingsvc "github.com/wellmind/billing-service/internal/services/billing"
	trialservice "github.com/wellmind/billing-service/internal/services/trial"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, jwtMaker jwt.Maker,
	authService *authservice.AuthService, billingService *billingsvc.BillingService,
	trialService *trialservice.Service, db *repository.Storage) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/billing/subscribe", subscribe.New(logger, billingService).ServeHTTP)
			r.Get("/billing/schedules", schedulelist.New(logger, billingService).ServeHTTP)
			r.Delete("/billing/schedules/{id}", cancel.New(logger, billingService).ServeHTTP)
			r.Post("/trial", apply.New(logger, trialService).ServeHTTP)
		})

		r.Get("/health", health.New(logger, db).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
}
