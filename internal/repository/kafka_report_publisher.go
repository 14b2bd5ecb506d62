package repository

import (
	"context"

	"BlockTrader/internal/domain/models"
	domrepo "BlockTrader/internal/domain/repository"
	pkgkafka "BlockTrader/pkg/kafka"
	"BlockTrader/pkg/logger"
)

// KafkaReportPublisher streams decision reports keyed by symbol. It also
// publishes aggregated log alerts for the logger's collector.
type KafkaReportPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaReportPublisher(producer *pkgkafka.Producer, topic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, topic: topic}
}

func (p *KafkaReportPublisher) Report(ctx context.Context, r models.DecisionReport) error {
	return p.producer.Publish(ctx, p.topic, []byte(r.Symbol), r)
}

func (p *KafkaReportPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.PublishMessage(ctx, topic, payload)
}

func (p *KafkaReportPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ domrepo.ReportSink = (*KafkaReportPublisher)(nil)
	_ logger.Publisher   = (*KafkaReportPublisher)(nil)
)
