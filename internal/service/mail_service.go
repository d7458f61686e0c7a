package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailsense/internal/categorize"
	"mailsense/internal/model"
	"mailsense/internal/provider"
	"mailsense/internal/repository"
	"mailsense/pkg/logger"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAuthFailed      = errors.New("mailbox authentication failed")
)

const DefaultBatchDays = 15

// Batch statuses.
const (
	BatchSuccess  = "success"
	BatchPartial  = "partial"
	BatchCanceled = "canceled"
	BatchFailed   = "failed"
)

// BatchResult is returned by batch entry points even on failure.
type BatchResult struct {
	Status         string `json:"status"`
	EmailProcessed int    `json:"email_processed"`
	Error          string `json:"error,omitempty"`
}

// Repository adds the admin operations exposed by the API on top of Store.
type Repository interface {
	Store
	SetUserCategory(ctx context.Context, threadID, category string) error
	SaveAccount(ctx context.Context, acc *model.Account) error
}

// MailboxFactory opens an account's mailbox.
type MailboxFactory func(ctx context.Context, acc *model.Account) (Mailbox, error)

// GmailFactory opens Gmail with the account's stored OAuth tokens; the
// token source refreshes the access token when expired.
func GmailFactory(cfg *oauth2.Config, log *zap.Logger) MailboxFactory {
	return func(ctx context.Context, acc *model.Account) (Mailbox, error) {
		token := &oauth2.Token{
			AccessToken:  acc.AccessToken,
			RefreshToken: acc.RefreshToken,
			Expiry:       acc.TokenExpiry,
			TokenType:    "Bearer",
		}
		return provider.NewGmail(ctx, cfg, token, "me", log)
	}
}

type MailService struct {
	repo       Repository
	pipeline   *Pipeline
	newMailbox MailboxFactory
	batchDays  int
	logger     *zap.Logger
}

func NewMailService(repo Repository, pipeline *Pipeline, newMailbox MailboxFactory, batchDays int, logger *zap.Logger) *MailService {
	if batchDays <= 0 {
		batchDays = DefaultBatchDays
	}
	return &MailService{
		repo:       repo,
		pipeline:   pipeline,
		newMailbox: newMailbox,
		batchDays:  batchDays,
		logger:     logger,
	}
}

func (s *MailService) session(ctx context.Context, userEmail string) (*Session, error) {
	acc, err := s.repo.FindAccount(ctx, userEmail)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userEmail)
	}
	if err != nil {
		return nil, err
	}
	if acc.AccessToken == "" && acc.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no stored credentials for %s", ErrAuthFailed, userEmail)
	}

	mb, err := s.newMailbox(ctx, acc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return s.pipeline.Session(mb, categorize.FromAccount(acc)), nil
}

// TransformEmail processes one message for the account. It returns nil
// when the message had already been stored.
func (s *MailService) TransformEmail(ctx context.Context, userEmail, messageID string) (*model.Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, errors.New("message id is required")
	}
	sess, err := s.session(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	m, err := sess.ProcessMessage(ctx, messageID)
	return m, authFailed(err)
}

// BatchRecent processes the last days of mail for the account. days <= 0
// uses the configured default window.
func (s *MailService) BatchRecent(ctx context.Context, userEmail string, days int) (BatchResult, error) {
	log := logger.WithTrace(ctx, s.logger).With(zap.String("user", userEmail))
	if days <= 0 {
		days = s.batchDays
	}

	sess, err := s.session(ctx, userEmail)
	if err != nil {
		log.Error("Batch aborted", zap.Error(err))
		return BatchResult{Status: BatchFailed, Error: err.Error()}, err
	}

	since := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := sess.ProcessRecent(ctx, since)
	err = authFailed(err)
	switch {
	case err == nil:
		return BatchResult{Status: BatchSuccess, EmailProcessed: n}, nil
	case errors.Is(err, context.Canceled):
		return BatchResult{Status: BatchCanceled, EmailProcessed: n, Error: err.Error()}, err
	case n > 0:
		return BatchResult{Status: BatchPartial, EmailProcessed: n, Error: err.Error()}, err
	default:
		return BatchResult{Status: BatchFailed, Error: err.Error()}, err
	}
}

func (s *MailService) GetMessage(ctx context.Context, messageID string) (*model.Message, error) {
	return s.repo.FindMessage(ctx, messageID)
}

func (s *MailService) SetThreadCategory(ctx context.Context, threadID, category string) error {
	return s.repo.SetUserCategory(ctx, threadID, strings.TrimSpace(category))
}

func (s *MailService) SaveAccount(ctx context.Context, acc *model.Account) error {
	if strings.TrimSpace(acc.Email) == "" {
		return errors.New("account email is required")
	}
	return s.repo.SaveAccount(ctx, acc)
}

func authFailed(err error) error {
	if err != nil && errors.Is(err, provider.ErrAuth) && !errors.Is(err, ErrAuthFailed) {
		return fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	return err
}
