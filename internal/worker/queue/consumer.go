package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
)

// DocumentParsedHandler reacts to a freshly parsed document.
type DocumentParsedHandler func(ctx context.Context, event models.DocumentParsedEvent) error

// Consumer drains the document parsed queue and hands each event to the
// handler. A handler error leaves the message requeued once; a decode
// error drops the message since redelivery cannot fix it.
type Consumer struct {
	rabbit  repository.RabbitMQRepository
	handler DocumentParsedHandler
	logger  zerolog.Logger
}

func NewConsumer(rabbit repository.RabbitMQRepository, handler DocumentParsedHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{rabbit: rabbit, handler: handler, logger: logger}
}

// Start begins consuming in a background goroutine. The goroutine exits
// when the context is cancelled or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.rabbit.SetupQueue(models.ExchangeName, models.QueueDocumentParsed, models.RoutingKeyDocumentParsed); err != nil {
		return fmt.Errorf("failed to declare document parsed queue: %w", err)
	}

	deliveries, err := c.rabbit.Channel().Consume(
		models.QueueDocumentParsed,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					c.logger.Warn().Msg("Document parsed delivery channel closed")
					return
				}

				var event models.DocumentParsedEvent
				if err := json.Unmarshal(delivery.Body, &event); err != nil {
					c.logger.Error().Err(err).Msg("Failed to decode document parsed event")
					_ = delivery.Nack(false, false)
					continue
				}

				if err := c.handler(ctx, event); err != nil {
					c.logger.Error().Err(err).
						Str("document_id", event.DocumentID).
						Msg("Failed to handle document parsed event")
					_ = delivery.Nack(false, !delivery.Redelivered)
					continue
				}

				_ = delivery.Ack(false)
			}
		}
	}()

	c.logger.Info().Str("queue", models.QueueDocumentParsed).Msg("Consuming document parsed events")
	return nil
}
