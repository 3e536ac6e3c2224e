package mq

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
)

const (
	defaultStatusBuffer  = 256
	statusPublishTimeout = 5 * time.Second
)

// StatusPublisher публикует переходы статусов узлов одного execution
// в weave.events.
//
// OnNodeStatus не блокируется: события складываются в буфер и
// отправляются отдельной горутиной. При переполненном буфере событие
// отбрасывается и учитывается в Dropped.
type StatusPublisher struct {
	pub         EventPublisher
	executionID uuid.UUID
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
	events chan NodeStatusPayload
	done   chan struct{}

	dropped atomic.Int64
}

// NewStatusPublisher создаёт StatusPublisher и запускает горутину отправки.
// buffer <= 0 означает размер по умолчанию.
func NewStatusPublisher(pub EventPublisher, executionID uuid.UUID, buffer int, logger *slog.Logger) *StatusPublisher {
	if buffer <= 0 {
		buffer = defaultStatusBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &StatusPublisher{
		pub:         pub,
		executionID: executionID,
		logger:      logger.With("execution_id", executionID.String()),
		events:      make(chan NodeStatusPayload, buffer),
		done:        make(chan struct{}),
	}
	go s.loop()
	return s
}

// OnNodeStatus ставит событие в очередь на отправку.
func (s *StatusPublisher) OnNodeStatus(nodeID string, status domain.NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	ev := NodeStatusPayload{
		ExecutionID: s.executionID,
		NodeID:      nodeID,
		Status:      status,
		Timestamp:   time.Now(),
	}

	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
	}
}

// Close дожидается отправки буферизованных событий.
// Повторный вызов безопасен.
func (s *StatusPublisher) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	<-s.done

	if n := s.dropped.Load(); n > 0 {
		s.logger.Warn("status events dropped", "count", n)
	}
}

// Dropped возвращает число отброшенных событий.
func (s *StatusPublisher) Dropped() int64 {
	return s.dropped.Load()
}

// loop отправляет события, пока канал не закрыт.
func (s *StatusPublisher) loop() {
	defer close(s.done)

	for ev := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), statusPublishTimeout)
		err := s.pub.Publish(ctx, ExchangeEvents, RoutingKeyNodeStatus, NewMessage(MessageTypeNodeStatus, ev))
		cancel()

		if err != nil {
			s.logger.Warn("failed to publish node status",
				"node_id", ev.NodeID,
				"status", ev.Status,
				"error", err,
			)
		}
	}
}
