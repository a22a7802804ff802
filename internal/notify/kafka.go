package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// ProducerConfig configures the Kafka producer.
type ProducerConfig struct {
	Brokers      []string
	RetryMax     int
	RequiredAcks int
}

// NewProducer connects a synchronous Kafka producer.
func NewProducer(cfg ProducerConfig) (sarama.SyncProducer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	saramaCfg.Producer.Retry.Max = cfg.RetryMax
	saramaCfg.Producer.Return.Successes = true

	prod, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return prod, nil
}

// KafkaNotifier publishes notifications to a topic keyed by event id so all
// messages of one event land on the same partition.
type KafkaNotifier struct {
	prod  sarama.SyncProducer
	topic string
	now   func() time.Time
}

// NewKafkaNotifier wraps prod.
func NewKafkaNotifier(prod sarama.SyncProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{prod: prod, topic: topic, now: time.Now}
}

// Notify publishes msg.
func (k *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = k.now().UTC()
	}

	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, _, err = k.prod.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(msg.EventID),
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(msg.Type)},
			{Key: []byte("timestamp"), Value: []byte(msg.Timestamp.Format(time.RFC3339))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

// Close releases the producer.
func (k *KafkaNotifier) Close() error {
	return k.prod.Close()
}
