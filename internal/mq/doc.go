// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go       — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go         — объявление exchanges, queues, bindings
//   - publisher.go        — конверт сообщения и публикация
//   - consumer.go         — потребление с ack/nack и DLQ
//   - status_publisher.go — неблокирующая публикация статусов узлов
//
// Типы сообщений:
//   - execution.requested — execution ожидает выполнения worker'ом
//   - node.status         — переход статуса узла
//   - execution.completed — execution завершён
//
// Exchanges:
//   - weave.executions — запросы на выполнение
//   - weave.events     — события для наблюдателей
//   - weave.dlq        — dead letter queue
package mq
