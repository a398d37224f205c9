package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molx/internal/infrastructure/messaging/kafka"
)

func processedMessage(t *testing.T, buildID string) *kafka.Message {
	t.Helper()
	env, err := kafka.NewEventEnvelope(kafka.EventDatasetProcessed, eventSource, &kafka.DatasetProcessedPayload{
		BuildID:     buildID,
		Dataset:     "Molecule3D",
		SplitMode:   "random",
		Splits:      map[string]int{"train": 2500, "val": 10, "test": 3},
		Duration:    1500 * time.Millisecond,
		ProcessedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	msg, err := env.ToMessage(kafka.TopicDatasetProcessed, buildID)
	require.NoError(t, err)
	return msg
}

func TestEventPrinter_Text(t *testing.T) {
	var out bytes.Buffer
	h := newEventPrinter(&out, "text", 0, nil)
	require.NoError(t, h(context.Background(), processedMessage(t, "b1")))

	line := out.String()
	assert.True(t, strings.HasPrefix(line, "2024-05-01T12:00:00Z  Molecule3D/random  build=b1"))
	assert.Contains(t, line, "test=3 train=2,500 val=10")
	assert.Contains(t, line, "took 1.5s")
}

func TestEventPrinter_JSONAndLimit(t *testing.T) {
	var out bytes.Buffer
	done := 0
	h := newEventPrinter(&out, "json", 2, func() { done++ })

	for _, id := range []string{"b1", "b2"} {
		require.NoError(t, h(context.Background(), processedMessage(t, id)))
	}
	assert.Equal(t, 1, done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var p kafka.DatasetProcessedPayload
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &p))
	assert.Equal(t, "b2", p.BuildID)
	assert.Equal(t, 2500, p.Splits["train"])
}

func TestEventPrinter_SkipsOtherEvents(t *testing.T) {
	var out bytes.Buffer
	h := newEventPrinter(&out, "text", 1, func() { t.Fatal("unexpected done") })

	env, err := kafka.NewEventEnvelope("dataset.deleted", eventSource, map[string]string{"build_id": "b1"})
	require.NoError(t, err)
	msg, err := env.ToMessage(kafka.TopicDatasetProcessed, "b1")
	require.NoError(t, err)

	require.NoError(t, h(context.Background(), msg))
	assert.Empty(t, out.String())
}

func TestEventPrinter_Malformed(t *testing.T) {
	h := newEventPrinter(&bytes.Buffer{}, "text", 0, nil)
	assert.Error(t, h(context.Background(), &kafka.Message{Value: []byte("{")}))
	assert.Error(t, h(context.Background(), &kafka.Message{}))
}
