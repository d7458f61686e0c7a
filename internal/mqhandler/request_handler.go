package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	contractmq "mailsense/contracts/mq"
	"mailsense/internal/model"
	"mailsense/internal/provider"
	"mailsense/internal/service"
	"mailsense/pkg/logger"
	"mailsense/pkg/trace"
)

// MailProcessor is the part of service.MailService the worker drives.
type MailProcessor interface {
	TransformEmail(ctx context.Context, userEmail, messageID string) (*model.Message, error)
	BatchRecent(ctx context.Context, userEmail string, days int) (service.BatchResult, error)
}

// RequestHandler 消费 transform / batch 请求
type RequestHandler struct {
	svc    MailProcessor
	logger *zap.Logger
}

func NewRequestHandler(svc MailProcessor, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

// RoutingKeys lists the keys Handle understands.
func (h *RequestHandler) RoutingKeys() []string {
	return []string{contractmq.RoutingKeyTransformRequested, contractmq.RoutingKeyBatchRequested}
}

// Handle dispatches by routing key. Returned errors carry a retry verdict
// for the consumer.
func (h *RequestHandler) Handle(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case contractmq.RoutingKeyTransformRequested:
		return h.handleTransform(ctx, body)
	case contractmq.RoutingKeyBatchRequested:
		return h.handleBatch(ctx, body)
	default:
		return permanent("unknown_routing_key", fmt.Errorf("unsupported routing key %q", routingKey))
	}
}

func (h *RequestHandler) handleTransform(ctx context.Context, body []byte) error {
	var p contractmq.TransformRequestedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return permanent("invalid_payload", fmt.Errorf("decode transform request: %w", err))
	}
	if strings.TrimSpace(p.UserEmail) == "" || strings.TrimSpace(p.MessageID) == "" {
		return permanent("invalid_payload", errors.New("transform request needs user_email and message_id"))
	}
	ctx = withPayloadTrace(ctx, p.TraceID)

	log := logger.WithTrace(ctx, h.logger).With(
		zap.String("user", p.UserEmail),
		zap.String("message_id", p.MessageID),
	)
	log.Info("Transform requested")

	m, err := h.svc.TransformEmail(ctx, p.UserEmail, p.MessageID)
	if err != nil {
		return classify(err)
	}
	if m == nil {
		log.Info("Message already processed")
		return nil
	}
	log.Info("Message transformed", zap.String("category", m.GeneratedCategory))
	return nil
}

func (h *RequestHandler) handleBatch(ctx context.Context, body []byte) error {
	var p contractmq.BatchRequestedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return permanent("invalid_payload", fmt.Errorf("decode batch request: %w", err))
	}
	if strings.TrimSpace(p.UserEmail) == "" {
		return permanent("invalid_payload", errors.New("batch request needs user_email"))
	}
	ctx = withPayloadTrace(ctx, p.TraceID)

	log := logger.WithTrace(ctx, h.logger).With(zap.String("user", p.UserEmail))
	log.Info("Batch requested", zap.Int("days", p.Days))

	res, err := h.svc.BatchRecent(ctx, p.UserEmail, p.Days)
	log.Info("Batch result",
		zap.String("status", res.Status),
		zap.Int("email_processed", res.EmailProcessed),
	)
	if err != nil {
		return classify(err)
	}
	return nil
}

func withPayloadTrace(ctx context.Context, id string) context.Context {
	if trace.FromContext(ctx) != "" {
		return ctx
	}
	if id != "" {
		return trace.WithContext(ctx, id)
	}
	ctx, _ = trace.Ensure(ctx)
	return ctx
}

// handlerError implements util.Classifier.
type handlerError struct {
	err       error
	retryable bool
	kind      string
}

func (e *handlerError) Error() string     { return e.err.Error() }
func (e *handlerError) Unwrap() error     { return e.err }
func (e *handlerError) Retryable() bool   { return e.retryable }
func (e *handlerError) ErrorType() string { return e.kind }

func permanent(kind string, err error) error {
	return &handlerError{err: err, kind: kind}
}

// classify 账户与凭证问题、消息不存在都不重试；限流可重试；取消交给消费者处理；其余视为暂时性错误
func classify(err error) error {
	var nf *provider.NotFoundError
	switch {
	case errors.Is(err, service.ErrAccountNotFound):
		return permanent("account_not_found", err)
	case errors.Is(err, service.ErrAuthFailed), errors.Is(err, provider.ErrAuth):
		return permanent("auth_failed", err)
	case errors.As(err, &nf):
		return permanent("message_not_found", err)
	case errors.Is(err, provider.ErrRateLimited):
		return &handlerError{err: err, retryable: true, kind: "rate_limited"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return &handlerError{err: err, retryable: true, kind: "transient"}
}
