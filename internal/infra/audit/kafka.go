// Package audit publishes designated transfer events to Kafka for the
// downstream audit-logging collaborator. The publisher sits behind a
// circuit breaker: the ledger transaction has already committed by the
// time an event is emitted, so a broker outage degrades to counted,
// logged drops instead of failing transfers.
package audit

import (
	"context"
	"encoding/json"

	"github.com/taxtrail/compliance-ledger-go/internal/domain"
	"github.com/taxtrail/compliance-ledger-go/internal/port"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// KafkaPublisher writes audit events to one Kafka topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		cb:     cb,
		logger: logger,
	}
}

// Publish sends one audit event, keyed by org so per-org ordering holds
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = p.cb.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.OrgID),
			Value: data,
		})
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return &domain.ErrCircuitOpen{Service: "audit-kafka"}
	}
	return err
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ port.AuditPublisher = (*KafkaPublisher)(nil)
