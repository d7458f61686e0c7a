package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mailsense/pkg/metrics"
	"mailsense/pkg/trace"
)

// Publisher is the part of the MQ publisher the dispatcher needs.
type Publisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte) error
}

// Dispatcher 轮询 outbox 并把事件发布到 MQ
type Dispatcher struct {
	repo       *Repository
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(repo *Repository, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(n int) *Dispatcher {
	d.maxRetries = n
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	d.interval = interval
	return d
}

func (d *Dispatcher) WithBatchSize(n int) *Dispatcher {
	d.batchSize = n
	return d
}

// Start blocks until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.repo.ClaimPending(ctx, d.batchSize, func(tx pgx.Tx, events []*Event) error {
				return d.dispatch(ctx, tx, events)
			}); err != nil {
				d.logger.Error("Outbox dispatch round failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, tx pgx.Tx, events []*Event) error {
	for _, event := range events {
		pubCtx := withPayloadTrace(ctx, event.Payload)

		if err := d.publisher.PublishRaw(pubCtx, event.RoutingKey, event.Payload); err != nil {
			metrics.IncOutboxPublished(event.RoutingKey, "failed")
			d.logger.Error("Failed to publish outbox event",
				zap.Int64("event_id", event.ID),
				zap.String("aggregate_id", event.AggregateID),
				zap.String("routing_key", event.RoutingKey),
				zap.Int("retry_count", event.RetryCount),
				zap.Error(err),
			)
			if err := d.repo.MarkAsFailed(ctx, tx, event, d.maxRetries); err != nil {
				return err
			}
			continue
		}

		metrics.IncOutboxPublished(event.RoutingKey, "sent")
		if err := d.repo.MarkAsSent(ctx, tx, event.ID); err != nil {
			return err
		}
	}
	return nil
}

// withPayloadTrace 如果 payload 里带了 trace_id，继续沿用
func withPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var p struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &p); err == nil && p.TraceID != "" {
		return trace.WithContext(ctx, p.TraceID)
	}
	return ctx
}
