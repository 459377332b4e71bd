// Package queue moves document lifecycle events through RabbitMQ. The
// ingestion pipeline publishes an event for every parsed document and
// the embedding worker consumes them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/swdgrade/similarity-service/internal/models"
	"github.com/swdgrade/similarity-service/internal/repository"
)

// Publisher emits document lifecycle events.
type Publisher interface {
	PublishDocumentParsed(ctx context.Context, event models.DocumentParsedEvent) error
}

type RabbitMQPublisher struct {
	rabbit repository.RabbitMQRepository
	logger zerolog.Logger
}

func NewRabbitMQPublisher(rabbit repository.RabbitMQRepository, logger zerolog.Logger) (*RabbitMQPublisher, error) {
	if err := rabbit.SetupQueue(models.ExchangeName, models.QueueDocumentParsed, models.RoutingKeyDocumentParsed); err != nil {
		return nil, fmt.Errorf("failed to declare document parsed queue: %w", err)
	}

	return &RabbitMQPublisher{rabbit: rabbit, logger: logger}, nil
}

func (p *RabbitMQPublisher) PublishDocumentParsed(ctx context.Context, event models.DocumentParsedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal document parsed event: %w", err)
	}

	err = p.rabbit.Channel().PublishWithContext(ctx,
		models.ExchangeName,
		models.RoutingKeyDocumentParsed,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish document parsed event: %w", err)
	}

	p.logger.Debug().
		Str("document_id", event.DocumentID).
		Str("exam_id", event.ExamID).
		Msg("Published document parsed event")

	return nil
}
