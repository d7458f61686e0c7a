package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	contractmq "mailsense/contracts/mq"
	"mailsense/internal/model"
	"mailsense/internal/provider"
	"mailsense/internal/repository"
	"mailsense/internal/service"
	"mailsense/pkg/logger"
	"mailsense/pkg/trace"
)

// MailService is what the handlers call on service.MailService.
type MailService interface {
	TransformEmail(ctx context.Context, userEmail, messageID string) (*model.Message, error)
	BatchRecent(ctx context.Context, userEmail string, days int) (service.BatchResult, error)
	GetMessage(ctx context.Context, messageID string) (*model.Message, error)
	SetThreadCategory(ctx context.Context, threadID, category string) error
	SaveAccount(ctx context.Context, acc *model.Account) error
}

// Publisher queues requests for the worker. Nil disables async mode.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type MailHandler struct {
	svc       MailService
	publisher Publisher
	logger    *zap.Logger
}

func NewMailHandler(svc MailService, publisher Publisher, logger *zap.Logger) *MailHandler {
	return &MailHandler{svc: svc, publisher: publisher, logger: logger}
}

type transformRequest struct {
	MessageID string `json:"message_id" binding:"required"`
	Async     bool   `json:"async"`
}

// Transform handles POST /transform
func (h *MailHandler) Transform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}
	ctx := c.Request.Context()
	user := userEmail(c)

	if req.Async {
		h.enqueue(c, contractmq.RoutingKeyTransformRequested, contractmq.TransformRequestedPayload{
			UserEmail: user,
			MessageID: req.MessageID,
			TraceID:   trace.FromContext(ctx),
		})
		return
	}

	m, err := h.svc.TransformEmail(ctx, user, req.MessageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if m == nil {
		c.JSON(http.StatusOK, gin.H{"status": "skipped", "message": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": m})
}

type batchRequest struct {
	Days  int  `json:"days"`
	Async bool `json:"async"`
}

// Batch handles POST /batch. The body is always a BatchResult.
func (h *MailHandler) Batch(c *gin.Context) {
	var req batchRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, service.BatchResult{Status: service.BatchFailed, Error: "invalid request"})
			return
		}
	}
	if req.Days < 0 {
		c.JSON(http.StatusBadRequest, service.BatchResult{Status: service.BatchFailed, Error: "days must be positive"})
		return
	}
	ctx := c.Request.Context()
	user := userEmail(c)

	if req.Async {
		h.enqueue(c, contractmq.RoutingKeyBatchRequested, contractmq.BatchRequestedPayload{
			UserEmail: user,
			Days:      req.Days,
			TraceID:   trace.FromContext(ctx),
		})
		return
	}

	res, err := h.svc.BatchRecent(ctx, user, req.Days)
	if err != nil {
		logger.WithTrace(ctx, h.logger).Warn("Batch finished with error",
			zap.String("user", user),
			zap.String("status", res.Status),
			zap.Error(err),
		)
	}
	c.JSON(statusFor(err, http.StatusOK), res)
}

// GetMessage handles GET /messages/:id
func (h *MailHandler) GetMessage(c *gin.Context) {
	m, err := h.svc.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// SetThreadCategory handles PUT /threads/:id/category
func (h *MailHandler) SetThreadCategory(c *gin.Context) {
	var req struct {
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.svc.SetThreadCategory(c.Request.Context(), c.Param("id"), req.Category); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type accountRequest struct {
	AccessToken  string                  `json:"access_token"`
	RefreshToken string                  `json:"refresh_token"`
	TokenExpiry  time.Time               `json:"token_expiry"`
	Categories   []model.CategorySetting `json:"categories"`
}

// SaveAccount handles PUT /accounts for the authenticated mailbox.
func (h *MailHandler) SaveAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if strings.TrimSpace(req.AccessToken) == "" && strings.TrimSpace(req.RefreshToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access_token or refresh_token is required"})
		return
	}
	acc := &model.Account{
		Email:        userEmail(c),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenExpiry:  req.TokenExpiry,
		Categories:   req.Categories,
	}
	if err := h.svc.SaveAccount(c.Request.Context(), acc); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved", "email": acc.Email})
}

func (h *MailHandler) enqueue(c *gin.Context, routingKey string, payload any) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async processing is not configured"})
		return
	}
	if err := h.publisher.Publish(c.Request.Context(), routingKey, payload); err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to enqueue request",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue request"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "trace_id": trace.FromContext(c.Request.Context())})
}

func (h *MailHandler) fail(c *gin.Context, err error) {
	status := statusFor(err, http.StatusInternalServerError)
	if status >= http.StatusInternalServerError {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Request failed", zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error, ok int) int {
	var nf *provider.NotFoundError
	switch {
	case err == nil:
		return ok
	case errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, repository.ErrNotFound),
		errors.As(err, &nf):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
