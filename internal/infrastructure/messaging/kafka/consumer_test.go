package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKafkaReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (m *mockKafkaReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.queue) > 0 {
		msg := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockKafkaReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.committed = append(m.committed, msg.Offset)
	}
	return nil
}

func (m *mockKafkaReader) Close() error { return nil }

func TestValidateConsumerConfig(t *testing.T) {
	assert.Error(t, ValidateConsumerConfig(ConsumerConfig{}))
	assert.Error(t, ValidateConsumerConfig(ConsumerConfig{Brokers: []string{"b"}}))
	assert.Error(t, ValidateConsumerConfig(ConsumerConfig{Brokers: []string{"b"}, GroupID: "g"}))
	assert.NoError(t, ValidateConsumerConfig(ConsumerConfig{Brokers: []string{"b"}, GroupID: "g", Topic: "t"}))
}

func TestConsumer_Run(t *testing.T) {
	r := &mockKafkaReader{queue: []kafka.Message{
		{Topic: "t", Offset: 1, Value: []byte("a"), Headers: []kafka.Header{{Key: "event_type", Value: []byte("x")}}},
		{Topic: "t", Offset: 2, Value: []byte("b")},
	}}
	c := NewConsumerWithReader(r, ConsumerConfig{Topic: "t", GroupID: "g"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var seen []string
	err := c.Run(ctx, func(_ context.Context, msg *Message) error {
		seen = append(seen, string(msg.Value))
		if msg.Offset == 1 {
			assert.Equal(t, "x", msg.Headers["event_type"])
			return nil
		}
		cancel()
		return errors.New("handler failed")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, int64(1), c.Processed())
	assert.Equal(t, int64(1), c.Failed())
	assert.Equal(t, []int64{1}, r.committed[:1])
}
