package mq

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Weave/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange   Exchange
	routingKey RoutingKey
	msg        *Message
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	block chan struct{}
}

func (f *fakePublisher) Publish(_ context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, published{exchange, routingKey, msg})
	return f.err
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.msgs...)
}

func TestStatusPublisher_PublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	execID := uuid.New()

	sp := NewStatusPublisher(pub, execID, 0, nil)
	sp.OnNodeStatus("a", domain.NodeStatusPending)
	sp.OnNodeStatus("a", domain.NodeStatusRunning)
	sp.OnNodeStatus("a", domain.NodeStatusSuccess)
	sp.Close()

	msgs := pub.all()
	require.Len(t, msgs, 3)

	want := []domain.NodeStatus{domain.NodeStatusPending, domain.NodeStatusRunning, domain.NodeStatusSuccess}
	for i, m := range msgs {
		assert.Equal(t, ExchangeEvents, m.exchange)
		assert.Equal(t, RoutingKeyNodeStatus, m.routingKey)
		assert.Equal(t, MessageTypeNodeStatus, m.msg.Type)

		payload, ok := m.msg.Payload.(NodeStatusPayload)
		require.True(t, ok)
		assert.Equal(t, execID, payload.ExecutionID)
		assert.Equal(t, "a", payload.NodeID)
		assert.Equal(t, want[i], payload.Status)
	}
	assert.Zero(t, sp.Dropped())
}

func TestStatusPublisher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	pub := &fakePublisher{block: block}

	sp := NewStatusPublisher(pub, uuid.New(), 1, nil)

	// Горутина отправки забирает первое событие и блокируется,
	// второе занимает буфер, остальные отбрасываются.
	for range 10 {
		sp.OnNodeStatus("a", domain.NodeStatusRunning)
	}
	close(block)
	sp.Close()

	got := int64(len(pub.all()))
	assert.Equal(t, int64(10), got+sp.Dropped())
	assert.Positive(t, sp.Dropped())
}

func TestStatusPublisher_AfterCloseIgnored(t *testing.T) {
	pub := &fakePublisher{}
	sp := NewStatusPublisher(pub, uuid.New(), 4, nil)
	sp.Close()
	sp.Close()

	sp.OnNodeStatus("a", domain.NodeStatusRunning)
	assert.Empty(t, pub.all())
}

func TestStatusPublisher_PublishErrorDoesNotStop(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	sp := NewStatusPublisher(pub, uuid.New(), 4, nil)
	sp.OnNodeStatus("a", domain.NodeStatusRunning)
	sp.OnNodeStatus("b", domain.NodeStatusRunning)
	sp.Close()

	assert.Len(t, pub.all(), 2)
}

func TestPublishExecutionCompleted(t *testing.T) {
	pub := &fakePublisher{}
	exec := domain.NewExecution(uuid.New(), domain.ScopeFull, nil)
	exec.Start()
	exec.MarkFailed("cyclic dependency")

	require.NoError(t, PublishExecutionCompleted(context.Background(), pub, exec))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoutingKeyExecutionCompleted, msgs[0].routingKey)

	payload := msgs[0].msg.Payload.(ExecutionCompletedPayload)
	assert.Equal(t, exec.ID, payload.ExecutionID)
	assert.Equal(t, domain.RunStatusFailed, payload.Status)
	assert.Equal(t, "cyclic dependency", payload.Error)
}

func TestParsePayload_RoundTripsThroughEnvelope(t *testing.T) {
	id := uuid.New()
	msg := Message{
		Type:    MessageTypeExecutionRequested,
		Payload: map[string]any{"execution_id": id.String()},
	}

	payload, err := ParsePayload[ExecutionRequestedPayload](&msg)
	require.NoError(t, err)
	assert.Equal(t, id, payload.ExecutionID)
}
