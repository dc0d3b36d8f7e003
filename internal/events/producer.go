package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
	logger *zap.Logger
	now    func() time.Time
}

// NewKafkaProducer takes a comma separated broker list.
func NewKafkaProducer(brokers, topic string, logger *zap.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaProducer(writer, logger)
}

func newKafkaProducer(writer messageWriter, logger *zap.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: writer,
		logger: logger,
		now:    time.Now,
	}
}

func (p *KafkaProducer) PublishItemsRemoved(ctx context.Context, sessionID string, items []domain.LineItem) error {
	event := newItemsRemovedEvent(sessionID, items, p.now())
	return p.publish(ctx, sessionID, event.EventID, event.Type, event)
}

func (p *KafkaProducer) PublishCheckoutSubmitted(ctx context.Context, sub *domain.CheckoutSubmission, result *domain.CheckoutResult) error {
	event := newCheckoutSubmittedEvent(sub, result, p.now())
	return p.publish(ctx, sub.SessionID, event.EventID, event.Type, event)
}

// publish keys messages by session so one cart's events stay ordered.
func (p *KafkaProducer) publish(ctx context.Context, key, eventID, eventType string, event interface{}) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal event", zap.Error(err))
		return err
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return err
	}

	p.logger.Info("Event published successfully",
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
		zap.String("session_id", key))

	return nil
}

func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// NopPublisher drops events; used when Kafka is disabled.
type NopPublisher struct {
	logger *zap.Logger
}

func NewNopPublisher(logger *zap.Logger) *NopPublisher {
	return &NopPublisher{logger: logger}
}

func (p *NopPublisher) PublishItemsRemoved(_ context.Context, sessionID string, items []domain.LineItem) error {
	p.logger.Debug("Kafka disabled, dropping event",
		zap.String("event_type", TypeItemsRemoved),
		zap.String("session_id", sessionID),
		zap.Int("items", len(items)))
	return nil
}

func (p *NopPublisher) PublishCheckoutSubmitted(_ context.Context, sub *domain.CheckoutSubmission, _ *domain.CheckoutResult) error {
	p.logger.Debug("Kafka disabled, dropping event",
		zap.String("event_type", TypeCheckoutSubmitted),
		zap.String("session_id", sub.SessionID))
	return nil
}

func (p *NopPublisher) Close() error { return nil }
