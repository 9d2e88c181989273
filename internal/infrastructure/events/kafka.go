package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/IBM/sarama"
	"github.com/feedsync/backend/internal/domain"
)

// KafkaPublisher sends one message per product outcome, keyed by family key so
// all outcomes of a family land on the same partition
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	debug    bool
}

// NewKafkaPublisher connects a sync producer to the brokers
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to start kafka producer: %w", err)
	}
	log.Printf("[EVENTS] Publishing product outcomes to %s via %v", topic, brokers)
	return NewKafkaPublisherWithProducer(producer, topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// SetDebug enables or disables per-message logging
func (p *KafkaPublisher) SetDebug(debug bool) {
	p.debug = debug
}

// Publish sends the outcome as JSON
func (p *KafkaPublisher) Publish(ctx context.Context, outcome *domain.ProductOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(outcome.FamilyKey),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(outcome.Action)},
			{Key: []byte("run_id"), Value: []byte(outcome.RunID)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	if p.debug {
		log.Printf("[EVENTS] %s %q sent to partition %d at offset %d", outcome.Action, outcome.FamilyKey, partition, offset)
	}
	return nil
}

// Close flushes and closes the producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes outcomes to the log when no brokers are configured
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, outcome *domain.ProductOutcome) error {
	if outcome.Action == domain.ActionFailed {
		log.Printf("[EVENTS] %s %q: %s", outcome.Action, outcome.FamilyKey, outcome.Error)
	}
	return nil
}

func (LogPublisher) Close() error {
	return nil
}
