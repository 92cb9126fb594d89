// Package kafka delivers outbox messages to the event broker.
package kafka

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"

	"khmerpos/internal/infrastructure/storage/postgres"
)

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes outbox messages to a Kafka topic, keyed by aggregate id
// so events for one sale or session stay ordered within a partition.
type Publisher struct {
	writer    messageWriter
	delivered prometheus.Counter
	failed    prometheus.Counter
}

// Compile-time check that Publisher implements postgres.OutboxHandler.
var _ postgres.OutboxHandler = (*Publisher)(nil)

// NewPublisher creates a Kafka publisher. bootstrap can be comma-separated
// brokers.
func NewPublisher(bootstrap, topic string, reg prometheus.Registerer) *Publisher {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		if a = strings.TrimSpace(a); a != "" {
			brokers = append(brokers, a)
		}
	}

	delivered := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_events_delivered_total"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_events_failed_total"})
	if reg != nil {
		reg.MustRegister(delivered, failed)
	}

	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
		delivered: delivered,
		failed:    failed,
	}
}

// NewPublisherWith is only for tests to inject a fake writer.
func NewPublisherWith(w messageWriter) *Publisher {
	return &Publisher{
		writer:    w,
		delivered: prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_events_delivered_total"}),
		failed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_events_failed_total"}),
	}
}

// Handle delivers one outbox message.
func (p *Publisher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.AggregateID.String()),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "aggregate_type", Value: []byte(msg.AggregateType)},
		},
	})
	if err != nil {
		p.failed.Inc()
		return err
	}
	p.delivered.Inc()
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
