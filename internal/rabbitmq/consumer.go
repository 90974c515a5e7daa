package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/wellmind/billing-service/internal/lib/sl"
)

// ConsumeLifecycleEvents подписывается на очередь событий жизненного цикла
// и обрабатывает сообщения в фоне. Параллельная обработка ограничена
// prefetch обработчиками, чтобы не обгонять QoS канала. Успешно
// обработанное сообщение подтверждается, ошибка обработчика возвращает
// сообщение в очередь.
func ConsumeLifecycleEvents(ctx context.Context, ch *amqp.Channel, queueName string,
	prefetch int, handler func([]byte) error, log *slog.Logger) error {
	const op = "rabbitmq.ConsumeLifecycleEvents"
	deliveries, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go dispatchDeliveries(ctx, deliveries, prefetch, handler, log)
	return nil
}

// dispatchDeliveries читает доставки до закрытия канала или отмены контекста.
func dispatchDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery,
	prefetch int, handler func([]byte) error, log *slog.Logger) {
	if prefetch <= 0 {
		prefetch = 1
	}
	sem := make(chan struct{}, prefetch)
	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(delivery amqp.Delivery) {
				defer func() { <-sem }()
				if err := handler(delivery.Body); err != nil {
					log.Error("failed to handle lifecycle event",
						sl.Err(err), "routing_key", delivery.RoutingKey)
					if nackErr := delivery.Nack(false, true); nackErr != nil {
						log.Error("failed to nack message", sl.Err(nackErr))
					}
					return
				}
				if ackErr := delivery.Ack(false); ackErr != nil {
					log.Error("failed to ack message", sl.Err(ackErr))
				}
			}(d)
		case <-ctx.Done():
			return
		}
	}
}
