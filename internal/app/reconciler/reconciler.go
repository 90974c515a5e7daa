// Package reconciler содержит сборку приложения фоновой сверки жизненного цикла.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/wellmind/billing-service/internal/config"
	"github.com/wellmind/billing-service/internal/rabbitmq"
	reconcilerservice "github.com/wellmind/billing-service/internal/services/reconciler"
	"github.com/wellmind/billing-service/internal/storage/repository"
)

// App представляет приложение сверки.
type App struct {
	reconcilerService *reconcilerservice.ReconcilerService
	conn              *amqp.Connection
	ch                *amqp.Channel
	logger            *slog.Logger
}

func waitForDB(ctx context.Context, db *repository.Storage) error {
	for range 10 {
		err := db.CheckDatabaseReady(ctx)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр приложения сверки.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	queues := rabbitmq.GetLifecycleQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues, cfg.RabbitMQPrefetch)
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(ctx, db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	reconcilerService := reconcilerservice.NewReconcilerService(db, cfg.Reconciler, logger)

	return &App{
		reconcilerService: reconcilerService,
		conn:              conn,
		ch:                ch,
		logger:            logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", "error", err)
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", "error", err)
		}
	}
}

// Run запускает задачи сверки и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	go a.reconcilerService.ExpireDateTrials(ctx)
	go a.reconcilerService.RollOverTrials(ctx, a.ch)
	go a.reconcilerService.ExpireCancelledPlans(ctx, a.ch)
	go a.reconcilerService.CompletePlans(ctx, a.ch)

	<-ctx.Done()

	a.logger.Info("shutting down reconciler service")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
