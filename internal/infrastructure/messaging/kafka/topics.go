package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/molx/pkg/errors"
)

// Topic Constants
const (
	TopicDatasetProcessed = "molx.dataset.processed"
)

// Event types
const (
	EventDatasetProcessed = "dataset.processed"
)

// EventEnvelope standardizes event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// DatasetProcessedPayload announces a finished split build.
type DatasetProcessedPayload struct {
	BuildID     string            `json:"build_id"`
	Dataset     string            `json:"dataset"`
	SplitMode   string            `json:"split_mode"`
	Splits      map[string]int    `json:"splits"`
	Locations   map[string]string `json:"locations"`
	Targets     []string          `json:"targets,omitempty"`
	Duration    time.Duration     `json:"duration_ns"`
	ProcessedAt time.Time         `json:"processed_at"`
}

func NewEventEnvelope(eventType string, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode payload")
	}
	return nil
}

// ToMessage wraps the envelope for topic; the key groups events of one
// dataset on one partition.
func (e *EventEnvelope) ToMessage(topic, key string) (*Message, error) {
	val, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}
	return &Message{
		Topic: topic,
		Key:   []byte(key),
		Value: val,
		Headers: map[string]string{
			"event_type":     e.EventType,
			"source_service": e.Source,
			"schema_version": e.SchemaVersion,
		},
		Timestamp: e.Timestamp,
	}, nil
}

func MessageToEventEnvelope(msg *Message) (*EventEnvelope, error) {
	if len(msg.Value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

// EventPublisher emits dataset events through a Producer.
type EventPublisher struct {
	producer *Producer
	topic    string
	source   string
}

func NewEventPublisher(p *Producer, topic, source string) *EventPublisher {
	if topic == "" {
		topic = TopicDatasetProcessed
	}
	return &EventPublisher{producer: p, topic: topic, source: source}
}

// PublishDatasetProcessed sends one dataset.processed event keyed by dataset
// name and split mode.
func (p *EventPublisher) PublishDatasetProcessed(ctx context.Context, payload *DatasetProcessedPayload) error {
	env, err := NewEventEnvelope(EventDatasetProcessed, p.source, payload)
	if err != nil {
		return err
	}
	env.Metadata = map[string]string{"build_id": payload.BuildID}
	msg, err := env.ToMessage(p.topic, payload.Dataset+"/"+payload.SplitMode)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, msg)
}

// Close closes the underlying producer.
func (p *EventPublisher) Close() error { return p.producer.Close() }
