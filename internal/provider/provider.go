// Package provider adapts the mailbox provider (Gmail) to the shapes the
// pipeline consumes.
package provider

import (
	"errors"
	"fmt"

	"github.com/emersion/go-message/mail"

	"mailsense/internal/model"
)

// ErrAuth is returned when the provider rejects the account's credentials.
var ErrAuth = errors.New("mailbox authentication failed")

// ErrRateLimited is returned when the provider throttles the account. It is
// transient: the request can be retried later.
var ErrRateLimited = errors.New("mailbox rate limited")

// NotFoundError reports an unknown message id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("message %s not found", e.ID)
}

// Message is one fetched provider message with its body already decoded.
// Attachments referenced by id carry no Data until fetched.
type Message struct {
	ID       string
	ThreadID string
	Snippet  string
	LabelIDs []string
	Header   mail.Header
	Body     Body
}

type Body struct {
	Text        string
	HTML        string
	Attachments []model.Attachment
}

// Draft links a draft id to the message it wraps.
type Draft struct {
	ID        string
	MessageID string
}
