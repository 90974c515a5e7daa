// Package notificationsender содержит сборку приложения отправки писем
// о событиях жизненного цикла подписки.
package notificationsender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/wellmind/billing-service/internal/config"
	"github.com/wellmind/billing-service/internal/lib/smtp"
	"github.com/wellmind/billing-service/internal/rabbitmq"
	senderservice "github.com/wellmind/billing-service/internal/services/sender"
)

// App представляет приложение отправки уведомлений.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	prefetch      int
	logger        *slog.Logger
}

// New создает новый экземпляр приложения отправки уведомлений.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	queues := rabbitmq.GetLifecycleQueues()
	ch, err := rabbitmq.SetupChannel(conn, queues, cfg.RabbitMQPrefetch)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("failed to close connection", slog.Any("err", closeErr))
		}
		return nil, err
	}

	newTransport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(logger, newTransport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		prefetch:      cfg.RabbitMQPrefetch,
		logger:        logger,
	}, nil
}

// Run запускает потребителей очередей и блокируется до отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumeLifecycleEvents(ctx, a.ch, "lifecycle.trial_rolled",
		a.prefetch, a.senderService.SendLifecycleEvent, a.logger)
	if err != nil {
		a.logger.Error("failed to start lifecycle.trial_rolled consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.ConsumeLifecycleEvents(ctx, a.ch, "lifecycle.plan_ended",
		a.prefetch, a.senderService.SendLifecycleEvent, a.logger)
	if err != nil {
		a.logger.Error("failed to start lifecycle.plan_ended consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("notification sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
