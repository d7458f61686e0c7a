// Package thread applies categorization results to the per-thread rollup.
package thread

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailsense/internal/model"
)

// Store 是 Reconciler 唯一需要的存储能力。UpsertThread 必须是单条原子语句：
// 不存在则插入（带 delivered_to），存在则覆盖 summary / generated_category，
// 并把 user_category 清空，delivered_to 保持首封邮件的值。
type Store interface {
	UpsertThread(ctx context.Context, t model.Thread) error
}

type Reconciler struct {
	store  Store
	logger *zap.Logger
}

func NewReconciler(store Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, logger: logger}
}

// Reconcile writes result into the thread's state. Any existing user
// category override is cleared. Re-applying the same result leaves the
// stored thread unchanged.
func (r *Reconciler) Reconcile(ctx context.Context, threadID string, result model.CategorizationResult, deliveredTo *string) error {
	if threadID == "" {
		return fmt.Errorf("reconcile: empty thread id")
	}

	t := model.Thread{
		ThreadID:          threadID,
		Summary:           result.Summary,
		GeneratedCategory: result.Category,
		UserCategory:      "",
	}
	if deliveredTo != nil && strings.TrimSpace(*deliveredTo) != "" {
		dt := *deliveredTo
		t.DeliveredTo = &dt
	}

	if err := r.store.UpsertThread(ctx, t); err != nil {
		return fmt.Errorf("upsert thread %s: %w", threadID, err)
	}

	r.logger.Debug("Thread reconciled",
		zap.String("thread_id", threadID),
		zap.String("category", result.Category),
	)
	return nil
}
