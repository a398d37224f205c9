package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEnvelope_RoundTrip(t *testing.T) {
	payload := &DatasetProcessedPayload{
		BuildID:   "b-1",
		Dataset:   "molecule3d",
		SplitMode: "random",
		Splits:    map[string]int{"train": 3, "valid": 1, "test": 1},
	}
	env, err := NewEventEnvelope(EventDatasetProcessed, "molx", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "v1", env.SchemaVersion)

	msg, err := env.ToMessage(TopicDatasetProcessed, "molecule3d/random")
	require.NoError(t, err)
	assert.Equal(t, EventDatasetProcessed, msg.Headers["event_type"])

	back, err := MessageToEventEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, back.EventID)

	var got DatasetProcessedPayload
	require.NoError(t, back.DecodePayload(&got))
	assert.Equal(t, payload.Splits, got.Splits)
	assert.Equal(t, "b-1", got.BuildID)
}

func TestMessageToEventEnvelope_Invalid(t *testing.T) {
	_, err := MessageToEventEnvelope(&Message{})
	assert.Error(t, err)
	_, err = MessageToEventEnvelope(&Message{Value: []byte("{")})
	assert.Error(t, err)
}

func TestEventPublisher_PublishDatasetProcessed(t *testing.T) {
	w := &mockKafkaWriter{}
	p := NewProducerWithWriter(w, ProducerConfig{Brokers: []string{"b"}}, nil)
	pub := NewEventPublisher(p, "", "molx-test")

	err := pub.PublishDatasetProcessed(context.Background(), &DatasetProcessedPayload{
		BuildID:     "b-2",
		Dataset:     "molecule3d",
		SplitMode:   "scaffold",
		ProcessedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, w.written, 1)
	assert.Equal(t, TopicDatasetProcessed, w.written[0].Topic)
	assert.Equal(t, "molecule3d/scaffold", string(w.written[0].Key))
	require.NoError(t, pub.Close())
}
