package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fabula-server/internal/models"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	// ExchangeUsageEvents - имя exchange для событий списания кредитов.
	ExchangeUsageEvents = "usage_events"
)

// UsageEvent - событие фактического потребления по одной генерации.
// Публикуется после успешного списания; подписчики (аналитика, алерты по
// перерасходу) получают его через fanout.
type UsageEvent struct {
	EventID          string                  `json:"event_id"`
	UserID           string                  `json:"user_id"`
	Operation        models.OperationType    `json:"operation"`
	Model            string                  `json:"model"`
	PromptTokens     int                     `json:"prompt_tokens"`
	CompletionTokens int                     `json:"completion_tokens"`
	CostUSD          float64                 `json:"cost_usd"`
	Credits          int64                   `json:"credits"`
	NewBalance       int64                   `json:"new_balance"`
	Tier             models.SubscriptionTier `json:"tier"`
	FromCache        bool                    `json:"from_cache"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

// UsagePublisher публикует события потребления.
type UsagePublisher interface {
	PublishUsageEvent(ctx context.Context, event UsageEvent) error
	Close() error
}

// Compile-time check to ensure RabbitMQUsagePublisher implements UsagePublisher
var _ UsagePublisher = (*RabbitMQUsagePublisher)(nil)

// RabbitMQUsagePublisher реализует UsagePublisher поверх RabbitMQ.
type RabbitMQUsagePublisher struct {
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewRabbitMQUsagePublisher создает издателя событий потребления.
// Предполагается, что соединение уже установлено и переподключениями
// управляет внешний код.
func NewRabbitMQUsagePublisher(conn *amqp091.Connection) (*RabbitMQUsagePublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open a channel")
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	// Durable fanout exchange: переживает перезапуск брокера, повторное
	// объявление безвредно.
	err = ch.ExchangeDeclare(
		ExchangeUsageEvents, // name
		"fanout",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		_ = ch.Close()
		log.Error().Err(err).Str("exchange", ExchangeUsageEvents).Msg("Failed to declare exchange")
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", ExchangeUsageEvents, err)
	}

	log.Info().Str("exchange", ExchangeUsageEvents).Msg("Usage events exchange declared successfully")

	return &RabbitMQUsagePublisher{conn: conn, ch: ch}, nil
}

// PublishUsageEvent публикует событие потребления в RabbitMQ.
func (p *RabbitMQUsagePublisher) PublishUsageEvent(ctx context.Context, event UsageEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Interface("event", event).Msg("Failed to marshal usage event")
		return fmt.Errorf("failed to marshal usage event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		ExchangeUsageEvents, // exchange
		"",                  // routing key (не используется для fanout)
		false,               // mandatory
		false,               // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   time.Now(),
			MessageId:   event.EventID,
		},
	)
	if err != nil {
		log.Error().Err(err).Str("eventID", event.EventID).Msg("Failed to publish usage event")
		return fmt.Errorf("failed to publish usage event: %w", err)
	}

	log.Debug().Str("eventID", event.EventID).Str("userID", event.UserID).Msg("Usage event published")
	return nil
}

// Close закрывает канал RabbitMQ.
func (p *RabbitMQUsagePublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}
