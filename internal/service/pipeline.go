// Package service runs the categorization pipeline: fetch, categorize,
// reconcile the thread and store the message.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"mailsense/internal/categorize"
	"mailsense/internal/message"
	"mailsense/internal/model"
	"mailsense/internal/prompt"
	"mailsense/internal/provider"
	"mailsense/internal/repository"
	"mailsense/internal/textutil"
	"mailsense/internal/thread"
	"mailsense/pkg/logger"
	"mailsense/pkg/metrics"
	"mailsense/pkg/otel"
)

const dedupScope = "message"

// Outcomes recorded per message.
const (
	OutcomeAI          = "ai"
	OutcomeDraft       = "draft"
	OutcomeEmpty       = "empty"
	OutcomeTokenLimit  = "token_limit"
	OutcomeAIError     = "ai_error"
	OutcomeSkipped     = "skipped"
	OutcomeFetchFailed = "fetch_failed"
)

// Options tunes the pipeline. Zero values fall back to defaults.
type Options struct {
	TokenLimit     int
	BodyTokenLimit int
	ChunkSize      int
	ChunkPause     time.Duration
	Workers        int
}

func DefaultOptions() Options {
	return Options{
		TokenLimit:     30000,
		BodyTokenLimit: 5000,
		ChunkSize:      10,
		ChunkPause:     time.Second,
		Workers:        1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TokenLimit <= 0 {
		o.TokenLimit = d.TokenLimit
	}
	if o.BodyTokenLimit <= 0 {
		o.BodyTokenLimit = d.BodyTokenLimit
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.ChunkPause < 0 {
		o.ChunkPause = 0
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	return o
}

// Pipeline holds the collaborators shared by every account.
type Pipeline struct {
	completer  Completer
	store      Store
	reconciler *thread.Reconciler
	budgeter   TokenCounter
	locker     ThreadLocker
	claimer    Claimer
	opts       Options
	logger     *zap.Logger
}

func NewPipeline(completer Completer, store Store, budgeter TokenCounter, locker ThreadLocker, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		completer:  completer,
		store:      store,
		reconciler: thread.NewReconciler(store, logger),
		budgeter:   budgeter,
		locker:     locker,
		opts:       opts.withDefaults(),
		logger:     logger,
	}
}

// WithClaimer enables cross-worker dedup before the AI call.
func (p *Pipeline) WithClaimer(c Claimer) *Pipeline {
	p.claimer = c
	return p
}

// Session binds the pipeline to one mailbox and its category config for one
// run.
type Session struct {
	*Pipeline
	mailbox    Mailbox
	categories categorize.Config
}

func (p *Pipeline) Session(mailbox Mailbox, categories categorize.Config) *Session {
	return &Session{Pipeline: p, mailbox: mailbox, categories: categories}
}

// ProcessMessage runs one message through the pipeline. It returns nil
// without error when the message was already stored. A fetch failure is
// returned as an error and nothing is written.
func (s *Session) ProcessMessage(ctx context.Context, messageID string) (*model.Message, error) {
	ctx, span := otel.StartSpan(ctx, "pipeline.ProcessMessage")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))

	log := logger.WithTrace(ctx, s.logger).With(zap.String("message_id", messageID))

	// 1. 幂等入口：已存储直接跳过
	exists, err := s.store.MessageExists(ctx, messageID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check message %s: %w", messageID, err)
	}
	if exists {
		log.Debug("Message already processed, skipping")
		metrics.IncMessageProcessed(OutcomeSkipped)
		return nil, nil
	}

	if s.claimer != nil {
		if !s.claimer.Claim(ctx, dedupScope, messageID) {
			metrics.IncMessageProcessed(OutcomeSkipped)
			return nil, nil
		}
	}
	stored := false
	defer func() {
		if !stored && s.claimer != nil {
			s.claimer.Release(context.WithoutCancel(ctx), dedupScope, messageID)
		}
	}()

	// 2. 拉取邮件
	src, err := s.mailbox.GetMessage(ctx, messageID)
	if err != nil {
		log.Error("Failed to fetch message", zap.Error(err))
		metrics.IncMessageProcessed(OutcomeFetchFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, fmt.Errorf("fetch message %s: %w", messageID, err)
	}
	span.SetAttributes(attribute.String("thread.id", src.ThreadID))
	s.fetchAttachments(ctx, src, log)

	// 3. 同一线程串行
	unlock, err := s.locker.Lock(ctx, lockKey(src))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("lock thread %s: %w", src.ThreadID, err)
	}
	defer unlock()

	// 4. 分类
	result, outcome := s.categorize(ctx, src, log)

	// 5. 更新线程
	deliveredTo := message.OptionalHeader(src.Header, "Delivered-To")
	if err := s.reconciler.Reconcile(ctx, src.ThreadID, result, deliveredTo); err != nil {
		span.RecordError(err)
		return nil, err
	}

	// 6. 组装并入库
	m := message.Assemble(src, result, s.lookupDraftID(ctx, src, log))
	if err := s.store.InsertMessage(ctx, m); err != nil {
		if errors.Is(err, repository.ErrDuplicateMessage) {
			// 并发下另一个 worker 已经写入
			stored = true
			log.Info("Message stored concurrently, skipping")
			metrics.IncMessageProcessed(OutcomeSkipped)
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("insert message %s: %w", messageID, err)
	}
	stored = true
	metrics.IncMessageProcessed(outcome)

	log.Info("Message processed",
		zap.String("thread_id", m.ThreadID),
		zap.String("category", m.GeneratedCategory),
		zap.String("outcome", outcome),
	)
	return m, nil
}

// categorize never fails: every path yields a result to persist.
func (s *Session) categorize(ctx context.Context, src *provider.Message, log *zap.Logger) (model.CategorizationResult, string) {
	if lo.Contains(src.LabelIDs, model.LabelDraft) {
		return categorize.DraftResult(), OutcomeDraft
	}
	if strings.TrimSpace(src.Body.Text) == "" {
		return categorize.EmptyBodyResult(), OutcomeEmpty
	}

	prior, err := s.store.FindThread(ctx, src.ThreadID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Warn("Thread lookup failed, using new-thread prompt", zap.Error(err))
		}
		prior = nil
	}

	text := s.budgeter.Truncate(textutil.CleanBody(src.Body.Text), s.opts.BodyTokenLimit)
	p := prompt.Build(prompt.Input{
		Sender:      message.HeaderText(src.Header, "From", prompt.DefaultSender),
		Subject:     message.HeaderText(src.Header, "Subject", prompt.DefaultSubject),
		Text:        text,
		Categories:  s.categories.PromptDescription(),
		PriorThread: prior,
	})

	tokens := s.budgeter.Estimate(p)
	metrics.RecordPromptTokens(tokens)
	if tokens > s.opts.TokenLimit {
		log.Warn("Prompt over token limit, AI not called",
			zap.Int("tokens", tokens),
			zap.Int("limit", s.opts.TokenLimit),
		)
		return categorize.TokenLimitResult(), OutcomeTokenLimit
	}

	raw, err := s.completer.Complete(ctx, p)
	if err != nil {
		log.Error("AI call failed", zap.Error(err))
		return categorize.AIErrorResult(err), OutcomeAIError
	}

	result, err := categorize.InterpretWithError(raw, s.categories.Vocabulary())
	if err != nil {
		log.Warn("AI reply not valid JSON, stored as Other", zap.Error(err))
	}
	return result, OutcomeAI
}

// fetchAttachments loads referenced attachment bodies. A failed download
// keeps the descriptor without data.
func (s *Session) fetchAttachments(ctx context.Context, src *provider.Message, log *zap.Logger) {
	for i := range src.Body.Attachments {
		att := &src.Body.Attachments[i]
		if att.Data != nil || att.AttachmentID == "" {
			continue
		}
		data, err := s.mailbox.GetAttachment(ctx, src.ID, att.AttachmentID)
		if err != nil {
			log.Warn("Failed to fetch attachment",
				zap.String("filename", att.Filename),
				zap.Error(err),
			)
			continue
		}
		att.Data = data
	}
}

func (s *Session) lookupDraftID(ctx context.Context, src *provider.Message, log *zap.Logger) string {
	if !lo.Contains(src.LabelIDs, model.LabelDraft) {
		return ""
	}
	drafts, err := s.mailbox.ListDrafts(ctx)
	if err != nil {
		log.Warn("Failed to list drafts", zap.Error(err))
		return ""
	}
	d, ok := lo.Find(drafts, func(d provider.Draft) bool { return d.MessageID == src.ID })
	if !ok {
		return ""
	}
	return d.ID
}

func lockKey(src *provider.Message) string {
	if src.ThreadID != "" {
		return src.ThreadID
	}
	return src.ID
}
