package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// NewWriter returns a topic-agnostic writer; the message carries its topic.
// Hash balancing on the key keeps one order's events on one partition.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher is the write interface the outbox dispatcher needs; satisfied by
// *kafka.Writer and by test doubles.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}
