package service

import (
	"context"

	"mailsense/internal/model"
	"mailsense/internal/provider"
)

// Mailbox is one account's view of the mail provider.
type Mailbox interface {
	GetMessage(ctx context.Context, id string) (*provider.Message, error)
	ListMessages(ctx context.Context, query string) ([]string, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error)
	ListDrafts(ctx context.Context) ([]provider.Draft, error)
}

// Completer sends a prompt to the AI service and returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Store is the persistence the pipeline needs. InsertMessage must enforce
// uniqueness of the message id and UpsertThread must be atomic.
type Store interface {
	MessageExists(ctx context.Context, messageID string) (bool, error)
	FindMessage(ctx context.Context, messageID string) (*model.Message, error)
	InsertMessage(ctx context.Context, m *model.Message) error
	FindThread(ctx context.Context, threadID string) (*model.Thread, error)
	UpsertThread(ctx context.Context, t model.Thread) error
	FindAccount(ctx context.Context, email string) (*model.Account, error)
}

// TokenCounter estimates prompt size and trims text to a token budget.
type TokenCounter interface {
	Estimate(text string) int
	Truncate(text string, maxTokens int) string
}

// ThreadLocker serializes read-modify-write on one thread.
type ThreadLocker interface {
	Lock(ctx context.Context, threadID string) (unlock func(), err error)
}

// Claimer suppresses concurrent work on the same message id.
type Claimer interface {
	Claim(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}
