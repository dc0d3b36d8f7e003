package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProductChangeHandler reacts to a product whose stock moved.
type ProductChangeHandler interface {
	ProductChanged(ctx context.Context, productID string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StockConsumer listens to the product service's stock events so carts
// holding a product are revalidated without waiting for the next sweep.
type StockConsumer struct {
	reader  messageReader
	handler ProductChangeHandler
	logger  *zap.Logger
}

func NewStockConsumer(brokers, groupID, topic string, handler ProductChangeHandler, logger *zap.Logger) *StockConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(brokers, ","),
		GroupID:        groupID,
		Topic:          topic,
		StartOffset:    kafka.LastOffset,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
	})
	return newStockConsumer(reader, handler, logger)
}

func newStockConsumer(reader messageReader, handler ProductChangeHandler, logger *zap.Logger) *StockConsumer {
	return &StockConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger,
	}
}

// Run consumes until ctx is cancelled. A message is committed once handled,
// or when it cannot be decoded and would never succeed.
func (c *StockConsumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka consumer started")
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("Kafka consumer stopped")
				return nil
			}
			c.logger.Error("Error reading message", zap.Error(err))
			return err
		}

		if err := c.processMessage(ctx, msg); err != nil {
			c.logger.Error("Error processing message",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset))
			if !errors.Is(err, errUndecodable) {
				continue
			}
		}

		// 메시지 처리 성공 시 커밋
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", zap.Error(err))
		}
	}
}

var errUndecodable = errors.New("undecodable event")

func (c *StockConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event StockDeductedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	if event.ProductID == "" {
		return fmt.Errorf("%w: missing product_id", errUndecodable)
	}

	c.logger.Info("Processing stock event",
		zap.String("event_id", event.EventID),
		zap.String("product_id", event.ProductID),
		zap.Int("new_stock", event.NewStock))

	return c.handler.ProductChanged(ctx, event.ProductID)
}
