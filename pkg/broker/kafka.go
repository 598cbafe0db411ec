package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kartmitra/kartmitra-backend/pkg/config"
	"github.com/kartmitra/kartmitra-backend/pkg/logger"
)

var (
	errBrokersRequired = errors.New("kafka brokers are required")
	errTopicRequired   = errors.New("kafka topic is required")
	errGroupRequired   = errors.New("kafka consumer group is required")
	errLoggerRequired  = errors.New("kafka logger is required")
)

// Message is a domain event ready for the wire. Headers carry the event and
// aggregate types so consumers can route without decoding the payload.
type Message struct {
	Topic   string
	Key     string
	Headers map[string]string
	Value   []byte
}

// Publisher is the producer surface the outbox publisher depends on.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Producer writes domain events to Kafka with full acks.
type Producer struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if len(cfg.Brokers) == 0 {
		return nil, errBrokersRequired
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	return &Producer{writer: writer, logger: logg}, nil
}

func (p *Producer) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return errTopicRequired
	}

	kmsg := kafka.Message{
		Topic:   msg.Topic,
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: toKafkaHeaders(msg.Headers),
		Time:    time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, kmsg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}

	p.logger.Info(p.logger.WithFields(ctx, map[string]any{
		"topic": msg.Topic,
		"key":   msg.Key,
	}), "event published")
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler processes one consumed message. Returning an error leaves the
// message uncommitted so the group redelivers it.
type Handler func(ctx context.Context, msg Message) error

// Consumer reads domain events from a consumer group and commits after each
// successful handle.
type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, logg *logger.Logger) (*Consumer, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	if len(cfg.Brokers) == 0 {
		return nil, errBrokersRequired
	}
	if cfg.DomainTopic == "" {
		return nil, errTopicRequired
	}
	if cfg.ConsumerGroup == "" {
		return nil, errGroupRequired
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.DomainTopic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits only
		StartOffset:    kafka.FirstOffset,
	})

	return &Consumer{reader: reader, logger: logg}, nil
}

// Run consumes until the context is cancelled. Handler failures are logged
// and the message is skipped after commit to avoid wedging the partition;
// handlers own their retry semantics via the idempotency layer.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		kmsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			c.logger.Error(ctx, "kafka fetch failed", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		msg := Message{
			Topic:   kmsg.Topic,
			Key:     string(kmsg.Key),
			Headers: fromKafkaHeaders(kmsg.Headers),
			Value:   kmsg.Value,
		}

		if err := handler(ctx, msg); err != nil {
			c.logger.Error(c.logger.WithFields(ctx, map[string]any{
				"topic": msg.Topic,
				"key":   msg.Key,
			}), "event handler failed", err)
		}

		if err := c.reader.CommitMessages(ctx, kmsg); err != nil {
			c.logger.Error(ctx, "kafka commit failed", err)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	if len(headers) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func fromKafkaHeaders(headers []kafka.Header) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		out[h.Key] = string(h.Value)
	}
	return out
}
