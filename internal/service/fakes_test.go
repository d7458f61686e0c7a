package service

import (
	"context"
	"strings"
	"sync"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/mock"

	"mailsense/internal/model"
	"mailsense/internal/provider"
	"mailsense/internal/repository"
)

// memRepo follows the same contract as the SQL stores.
type memRepo struct {
	mu        sync.Mutex
	messages  map[string]*model.Message
	threads   map[string]model.Thread
	accounts  map[string]*model.Account
	insertErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		messages: map[string]*model.Message{},
		threads:  map[string]model.Thread{},
		accounts: map[string]*model.Account{},
	}
}

func (r *memRepo) MessageExists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.messages[id]
	return ok, nil
}

func (r *memRepo) FindMessage(_ context.Context, id string) (*model.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return m, nil
}

func (r *memRepo) InsertMessage(_ context.Context, m *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.messages[m.MessageID]; ok {
		return repository.ErrDuplicateMessage
	}
	r.messages[m.MessageID] = m
	return nil
}

func (r *memRepo) FindThread(_ context.Context, id string) (*model.Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *memRepo) UpsertThread(_ context.Context, t model.Thread) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.threads[t.ThreadID]
	if !ok {
		r.threads[t.ThreadID] = t
		return nil
	}
	existing.Summary = t.Summary
	existing.GeneratedCategory = t.GeneratedCategory
	existing.UserCategory = ""
	r.threads[t.ThreadID] = existing
	return nil
}

func (r *memRepo) FindAccount(_ context.Context, email string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return acc, nil
}

func (r *memRepo) SetUserCategory(_ context.Context, threadID, category string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.threads[threadID]
	if !ok {
		return repository.ErrNotFound
	}
	t.UserCategory = category
	r.threads[threadID] = t
	return nil
}

func (r *memRepo) SaveAccount(_ context.Context, acc *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acc.Email] = acc
	return nil
}

// fakeMailbox serves messages from memory; ids lists newest first like Gmail.
type fakeMailbox struct {
	mu          sync.Mutex
	messages    map[string]*provider.Message
	ids         []string
	listErr     error
	getErr      map[string]error
	attachments map[string][]byte
	drafts      []provider.Draft
	fetched     []string
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages:    map[string]*provider.Message{},
		getErr:      map[string]error{},
		attachments: map[string][]byte{},
	}
}

func (f *fakeMailbox) add(m *provider.Message) {
	f.messages[m.ID] = m
	f.ids = append([]string{m.ID}, f.ids...)
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*provider.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, id)
	if err := f.getErr[id]; err != nil {
		return nil, err
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, &provider.NotFoundError{ID: id}
	}
	cp := *m
	cp.Body.Attachments = append([]model.Attachment(nil), m.Body.Attachments...)
	return &cp, nil
}

func (f *fakeMailbox) ListMessages(_ context.Context, _ string) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.ids, nil
}

func (f *fakeMailbox) GetAttachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	data, ok := f.attachments[attachmentID]
	if !ok {
		return nil, &provider.NotFoundError{ID: attachmentID}
	}
	return data, nil
}

func (f *fakeMailbox) ListDrafts(_ context.Context) ([]provider.Draft, error) {
	return f.drafts, nil
}

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// wordCounter treats every whitespace separated word as one token.
type wordCounter struct{}

func (wordCounter) Estimate(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Truncate(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) <= maxTokens {
		return text
	}
	return strings.Join(words[:maxTokens], " ")
}

func testMessage(id, threadID, body string, labels ...string) *provider.Message {
	var h mail.Header
	h.Set("From", "Alice <alice@example.com>")
	h.Set("To", "me@example.com")
	h.Set("Subject", "Hello "+id)
	h.Set("Date", "Wed, 24 Jul 2024 14:23:38 +0200")
	h.Set("Delivered-To", "me@example.com")
	if labels == nil {
		labels = []string{model.LabelInbox}
	}
	return &provider.Message{
		ID:       id,
		ThreadID: threadID,
		Snippet:  "snippet " + id,
		LabelIDs: labels,
		Header:   h,
		Body:     provider.Body{Text: body},
	}
}
