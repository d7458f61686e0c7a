package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Gmail implements the mailbox operations for one user.
type Gmail struct {
	svc    *gmail.Service
	user   string
	logger *zap.Logger
}

// OAuthConfig builds the client config used to refresh stored tokens.
func OAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}
}

// NewGmail builds a client whose HTTP transport refreshes token as needed.
func NewGmail(ctx context.Context, cfg *oauth2.Config, token *oauth2.Token, user string, logger *zap.Logger) (*Gmail, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return NewGmailFromService(svc, user, logger), nil
}

func NewGmailFromService(svc *gmail.Service, user string, logger *zap.Logger) *Gmail {
	if user == "" {
		user = "me"
	}
	return &Gmail{svc: svc, user: user, logger: logger}
}

func (g *Gmail) GetMessage(ctx context.Context, id string) (*Message, error) {
	msg, err := g.svc.Users.Messages.Get(g.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, g.wrapError(err, id)
	}

	out := &Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		LabelIDs: msg.LabelIds,
	}
	if msg.Payload != nil {
		out.Header = decodeHeader(msg.Payload.Headers)
		out.Body = decodeBody(msg.Payload)
	}
	return out, nil
}

// ListMessages returns every message id matching query, newest first as the
// provider orders them.
func (g *Gmail) ListMessages(ctx context.Context, query string) ([]string, error) {
	var ids []string
	err := g.svc.Users.Messages.List(g.user).Q(query).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, g.wrapError(err, "")
	}
	return ids, nil
}

func (g *Gmail) GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := g.svc.Users.Messages.Attachments.Get(g.user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, g.wrapError(err, messageID)
	}
	data, err := decodeBase64URL(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

func (g *Gmail) ListDrafts(ctx context.Context) ([]Draft, error) {
	var drafts []Draft
	err := g.svc.Users.Drafts.List(g.user).Pages(ctx, func(resp *gmail.ListDraftsResponse) error {
		for _, d := range resp.Drafts {
			draft := Draft{ID: d.Id}
			if d.Message != nil {
				draft.MessageID = d.Message.Id
			}
			drafts = append(drafts, draft)
		}
		return nil
	})
	if err != nil {
		return nil, g.wrapError(err, "")
	}
	return drafts, nil
}

func (g *Gmail) wrapError(err error, id string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || isQuotaError(gerr) {
			g.logger.Warn("Gmail throttled request", zap.String("user", g.user), zap.Int("status", gerr.Code))
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		switch gerr.Code {
		case http.StatusNotFound:
			return &NotFoundError{ID: id}
		case http.StatusUnauthorized, http.StatusForbidden:
			g.logger.Warn("Gmail rejected credentials", zap.String("user", g.user), zap.Int("status", gerr.Code))
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return fmt.Errorf("gmail request failed: %w", err)
}

// quotaReasons 是 Gmail 用 403 返回的配额类错误，不是凭证问题
var quotaReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
}

func isQuotaError(gerr *googleapi.Error) bool {
	if gerr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return false
}
