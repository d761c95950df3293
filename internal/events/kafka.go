package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaNotifier publishes every event to a single Kafka topic keyed by aggregate id.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

// NewKafkaNotifier connects a producer to brokers.
func NewKafkaNotifier(brokers []string, topic string, opts ...kgo.Opt) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("events: kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: topic}, nil
}

// Record builds the Kafka record for ev.
func (k *KafkaNotifier) Record(ev Event) (*kgo.Record, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: k.topic,
		Key:   []byte(ev.AggregateID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-topic", Value: []byte(ev.Topic)},
			{Key: "event-id", Value: []byte(ev.ID.String())},
		},
		Timestamp: ev.OccurredAt,
	}, nil
}

// Notify produces the event synchronously.
func (k *KafkaNotifier) Notify(ctx context.Context, ev Event) error {
	rec, err := k.Record(ev)
	if err != nil {
		return err
	}
	return k.client.ProduceSync(ctx, rec).FirstErr()
}

// Close flushes and closes the producer.
func (k *KafkaNotifier) Close() {
	if k != nil && k.client != nil {
		k.client.Close()
	}
}
