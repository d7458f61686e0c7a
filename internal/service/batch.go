package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mailsense/internal/provider"
	"mailsense/pkg/logger"
	"mailsense/pkg/otel"
)

// ProcessRecent processes every message received after since, oldest first,
// in chunks of ChunkSize with a pause between chunks. Per-message failures
// are logged and skipped; an authentication failure or cancellation stops
// the run and returns the count so far with the error.
func (s *Session) ProcessRecent(ctx context.Context, since time.Time) (int, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.ProcessRecent")
	defer span.End()

	log := logger.WithTrace(ctx, s.logger)

	ids, err := s.mailbox.ListMessages(ctx, fmt.Sprintf("after:%d", since.Unix()))
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list messages: %w", err)
	}
	span.SetAttributes(attribute.Int("batch.size", len(ids)))

	// provider 返回新到旧，按到达顺序处理
	ids = slices.Clone(ids)
	slices.Reverse(ids)

	chunks := lo.Chunk(ids, s.opts.ChunkSize)
	log.Info("Batch started",
		zap.Int("messages", len(ids)),
		zap.Int("chunks", len(chunks)),
		zap.Time("since", since),
	)

	var processed atomic.Int64
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return int(processed.Load()), err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)
		for _, id := range chunk {
			g.Go(func() error {
				m, err := s.ProcessMessage(gctx, id)
				if err != nil {
					if isBatchFatal(err) {
						return err
					}
					log.Warn("Message skipped", zap.String("message_id", id), zap.Error(err))
					return nil
				}
				if m != nil {
					processed.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			span.RecordError(err)
			return int(processed.Load()), err
		}

		if i < len(chunks)-1 && s.opts.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return int(processed.Load()), ctx.Err()
			case <-time.After(s.opts.ChunkPause):
			}
		}
	}

	n := int(processed.Load())
	span.SetAttributes(attribute.Int("batch.processed", n))
	log.Info("Batch finished", zap.Int("processed", n))
	return n, nil
}

func isBatchFatal(err error) bool {
	return errors.Is(err, provider.ErrAuth) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
