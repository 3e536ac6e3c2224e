package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeExecutions — запросы на выполнение (direct).
	ExchangeExecutions Exchange = "weave.executions"

	// ExchangeEvents — события выполнения для UI и наблюдателей (topic).
	ExchangeEvents Exchange = "weave.events"

	// ExchangeDLQ — dead letter exchange.
	ExchangeDLQ Exchange = "weave.dlq"
)

// Queues — имена очередей.
const (
	QueueExecutionsRequested Queue = "executions.requested"
	QueueDLQExecutions       Queue = "dlq.executions"
)

// Routing keys.
const (
	RoutingKeyRequested          RoutingKey = "requested"
	RoutingKeyNodeStatus         RoutingKey = "node.status"
	RoutingKeyExecutionCompleted RoutingKey = "execution.completed"
	RoutingKeyDLQExecutions      RoutingKey = "executions"

	// RoutingKeyAllEvents — шаблон подписки на все события.
	RoutingKeyAllEvents RoutingKey = "#"
)

// SetupTopology объявляет exchanges, очереди и привязки.
// Идемпотентна: вызывается при старте api и worker.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		return bindQueues(ch)
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeExecutions, amqp.ExchangeDirect},
		{ExchangeEvents, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// executions.requested — отклонённые запросы уходят в DLQ
		{QueueExecutionsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQExecutions),
		}},
		{QueueDLQExecutions, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueExecutionsRequested, RoutingKeyRequested, ExchangeExecutions},
		{QueueDLQExecutions, RoutingKeyDLQExecutions, ExchangeDLQ},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// DeclareEventQueue создаёт временную эксклюзивную очередь, подписанную
// на события с ключом pattern. Очередь удаляется при закрытии соединения.
func DeclareEventQueue(ctx context.Context, conn *Connection, pattern RoutingKey) (string, error) {
	var name string
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		q, err := ch.QueueDeclare(
			"",    // имя сгенерирует брокер
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare event queue: %w", err)
		}
		if err := ch.QueueBind(q.Name, string(pattern), string(ExchangeEvents), false, nil); err != nil {
			return fmt.Errorf("bind event queue: %w", err)
		}
		name = q.Name
		return nil
	})
	return name, err
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Weave RabbitMQ Topology:

    weave.executions (direct)
    └── executions.requested [routing: requested]
            Consumer: weave-worker
            DLQ: dlq.executions

    weave.events (topic)
    ├── node.status          — переходы статусов узлов
    └── execution.completed  — итог execution
            Consumers: weave watch (временные очереди)

    weave.dlq (direct)
    └── dlq.executions [routing: executions]
            Manual processing
  `
}
