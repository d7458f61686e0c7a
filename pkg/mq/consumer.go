package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mailsense/pkg/logger"
	"mailsense/pkg/metrics"
	"mailsense/pkg/otel"
	"mailsense/pkg/trace"
	"mailsense/pkg/util"
)

const retryHeader = "x-retry-count"

// MessageHandler 处理一条消息；返回的错误决定重试还是进死信
type MessageHandler func(ctx context.Context, routingKey string, body []byte) error

type Consumer struct {
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	queue       string
	routingKeys []string
	publisher   *Publisher
	handler     MessageHandler
	maxRetries  int64
	logger      *zap.Logger
}

// NewConsumer declares queue, binds it to every routing key and opens a
// dead letter queue next to it. publisher is used for retries and DLQ
// forwarding.
func NewConsumer(url, exchange, queue string, prefetch int, routingKeys []string, publisher *Publisher, logger *zap.Logger) (*Consumer, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(err error) (*Consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := DeclareExchange(ch, exchange); err != nil {
		return fail(fmt.Errorf("failed to declare exchange: %w", err))
	}
	if err := DeclareDLQ(ch, exchange, queue); err != nil {
		return fail(err)
	}

	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}
	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fail(fmt.Errorf("failed to bind queue to %s: %w", key, err))
		}
	}

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fail(fmt.Errorf("failed to set prefetch: %w", err))
		}
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", queue),
		zap.String("exchange", exchange),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q.Name,
		routingKeys: routingKeys,
		publisher:   publisher,
		maxRetries:  3,
		logger:      logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

func (c *Consumer) SetMaxRetries(n int64) {
	c.maxRetries = n
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is done or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.ConsumeWithContext(ctx,
		c.queue,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

// handle 保证每条消息都会被 ack 或 nack
func (c *Consumer) handle(ctx context.Context, msg amqp091.Delivery) {
	ctx = otel.ExtractMQHeaders(ctx, msg.Headers)
	if id, ok := msg.Headers[trace.HeaderName].(string); ok && id != "" {
		ctx = trace.WithContext(ctx, id)
	}
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue)
	defer span.End()

	log := logger.WithTrace(ctx, c.logger).With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue),
	)

	if !msg.Timestamp.IsZero() {
		metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue, time.Since(msg.Timestamp))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			c.deadLetter(ctx, log, msg, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := c.handler(ctx, msg.RoutingKey, msg.Body)
	if err == nil {
		if err := msg.Ack(false); err != nil {
			log.Error("Failed to ack message", zap.Error(err))
		}
		return
	}

	span.RecordError(err)
	retryable, errType := util.IsRetryableError(err)
	retries := retryCount(msg.Headers) + 1

	log.Error("Handler error",
		zap.Error(err),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Int64("retry", retries),
	)

	if !util.ShouldRetry(retries, c.maxRetries, retryable) {
		c.deadLetter(ctx, log, msg, err.Error())
		return
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = retries
	if err := c.publisher.republish(ctx, msg.RoutingKey, msg.Body, headers); err != nil {
		log.Error("Failed to republish for retry, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func (c *Consumer) deadLetter(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, reason string) {
	if err := c.publisher.PublishToDLQ(ctx, msg.RoutingKey, msg.Body, reason); err != nil {
		log.Error("Failed to publish to DLQ, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	_ = msg.Ack(false)
}

func retryCount(headers amqp091.Table) int64 {
	switch v := headers[retryHeader].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}
