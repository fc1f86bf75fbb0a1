package forwarding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic keyed by brand, so a brand's
// events stay ordered within a partition
type KafkaSink struct {
	writer MessageWriter
}

// NewKafkaWriter builds the producer used by KafkaSink
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// NewKafkaSink creates a Kafka backed sink
func NewKafkaSink(writer MessageWriter) *KafkaSink {
	return &KafkaSink{writer: writer}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Forward writes one message per event
func (s *KafkaSink) Forward(ctx context.Context, event ConversionEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error encoding conversion event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.BrandID.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
		},
		Time: time.Now().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("error publishing conversion %s: %w", event.ConversionID, err)
	}
	return nil
}

// Close flushes and closes the producer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
