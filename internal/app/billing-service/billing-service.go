// Package billingservice собирает HTTP-приложение биллингового сервиса:
// хранилище, кеш, платёжный провайдер и маршруты API.
package billingservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/wellmind/billing-service/internal/cache"
	"github.com/wellmind/billing-service/internal/config"
	"github.com/wellmind/billing-service/internal/lib/jwt"
	"github.com/wellmind/billing-service/internal/migrations"
	"github.com/wellmind/billing-service/internal/processor"
	authservice "github.com/wellmind/billing-service/internal/services/auth"
	billingservice "github.com/wellmind/billing-service/internal/services/billing"
	trialservice "github.com/wellmind/billing-service/internal/services/trial"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

// App представляет HTTP-приложение биллингового сервиса.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
}

// New создает новый экземпляр приложения.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	processorClient := processor.NewClient(cfg.StripeAPIKey)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)

	authService := authservice.NewAuthService(db, processorClient, jwtMaker, logger)
	billingService := billingservice.New(db, db, processorClient, cacheRedis, cfg.TrialWindow, logger)
	trialService := trialservice.New(db, logger)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, jwtMaker, authService, billingService, trialService, db)

	router.Get("/docs/*", httpSwagger.WrapHandler)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if closeErr := a.db.DB.Close(); closeErr != nil {
			a.logger.Error("failed to close storage", slog.Any("err", closeErr))
		}
		return err
	}
}
