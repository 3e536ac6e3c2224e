package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/Weave/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeExecutionRequested MessageType = "execution.requested"
	MessageTypeNodeStatus         MessageType = "node.status"
	MessageTypeExecutionCompleted MessageType = "execution.completed"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с новым ID.
func NewMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// ExecutionRequestedPayload — запрос на выполнение сохранённого execution.
// Граф и scope worker читает из БД.
type ExecutionRequestedPayload struct {
	ExecutionID uuid.UUID `json:"execution_id"`
}

// NodeStatusPayload — переход статуса узла.
type NodeStatusPayload struct {
	ExecutionID uuid.UUID         `json:"execution_id"`
	NodeID      string            `json:"node_id"`
	Status      domain.NodeStatus `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ExecutionCompletedPayload — итог execution.
type ExecutionCompletedPayload struct {
	ExecutionID uuid.UUID        `json:"execution_id"`
	WorkflowID  uuid.UUID        `json:"workflow_id"`
	Status      domain.RunStatus `json:"status"`
	DurationMs  int64            `json:"duration_ms"`
	Error       string           `json:"error,omitempty"`
}

// EventPublisher — минимальный интерфейс публикации.
// Реализуется *Publisher; в тестах подменяется фейком.
type EventPublisher interface {
	Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// События статусов не переживают рестарт брокера
	mode := amqp.Persistent
	if exchange == ExchangeEvents {
		mode = amqp.Transient
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: mode,
				MessageId:    msg.ID,
				Type:         string(msg.Type),
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishExecutionRequested ставит execution в очередь worker'а.
func (p *Publisher) PublishExecutionRequested(ctx context.Context, executionID uuid.UUID) error {
	return PublishExecutionRequested(ctx, p, executionID)
}

// PublishExecutionRequested публикует запрос на выполнение через pub.
func PublishExecutionRequested(ctx context.Context, pub EventPublisher, executionID uuid.UUID) error {
	msg := NewMessage(MessageTypeExecutionRequested, ExecutionRequestedPayload{ExecutionID: executionID})
	return pub.Publish(ctx, ExchangeExecutions, RoutingKeyRequested, msg)
}

// PublishExecutionCompleted публикует итог execution.
func PublishExecutionCompleted(ctx context.Context, pub EventPublisher, exec *domain.Execution) error {
	msg := NewMessage(MessageTypeExecutionCompleted, ExecutionCompletedPayload{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		Status:      exec.Status,
		DurationMs:  exec.DurationMs,
		Error:       exec.ErrorMessage,
	})
	return pub.Publish(ctx, ExchangeEvents, RoutingKeyExecutionCompleted, msg)
}
