package repository

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailsense/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func TestMigrationsAreRerunnable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	s1, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestInsertAndFindMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2024, 7, 24, 12, 23, 38, 0, time.UTC)

	m := &model.Message{
		MessageID:         "m1",
		ThreadID:          "t1",
		Subject:           "Dinner",
		From:              "alice@example.com",
		To:                "me@example.com",
		Date:              &date,
		LabelIDs:          []string{"INBOX"},
		BodyText:          "See you at 8",
		Attachments:       []model.Attachment{{Filename: "menu.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}},
		GeneratedCategory: "Personal",
		Summary:           "Dinner at 8.",
		AIOutputText:      `{"category":"Personal"}`,
		DeliveredTo:       strPtr("me@example.com"),
	}
	require.NoError(t, s.InsertMessage(ctx, m))

	exists, err := s.MessageExists(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := s.FindMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Dinner", got.Subject)
	assert.Equal(t, []string{"INBOX"}, got.LabelIDs)
	require.NotNil(t, got.Date)
	assert.True(t, date.Equal(*got.Date))
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, []byte("%PDF"), got.Attachments[0].Data)
	require.NotNil(t, got.DeliveredTo)
	assert.Equal(t, "me@example.com", *got.DeliveredTo)
	assert.Nil(t, got.Cc)
	assert.Equal(t, `{"category":"Personal"}`, got.AIOutputText)
}

func TestInsertMessageDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertMessage(ctx, &model.Message{MessageID: "m1", ThreadID: "t1", Summary: "first"}))
	err := s.InsertMessage(ctx, &model.Message{MessageID: "m1", ThreadID: "t1", Summary: "second"})
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	got, err := s.FindMessage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Summary)
}

func TestFindMissing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exists, err := s.MessageExists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.FindMessage(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindThread(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindAccount(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetUserCategory(ctx, "nope", "Work"), ErrNotFound)
}

func TestUpsertThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertThread(ctx, model.Thread{
		ThreadID:          "t1",
		Summary:           "Flight booked.",
		GeneratedCategory: "Travel",
		DeliveredTo:       strPtr("me@example.com"),
	}))
	require.NoError(t, s.SetUserCategory(ctx, "t1", "Work"))

	th, err := s.FindThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Work", th.UserCategory)
	assert.Equal(t, "Work", th.EffectiveCategory())

	// 更新覆盖 summary / generated_category，清空 user_category，保留 delivered_to
	require.NoError(t, s.UpsertThread(ctx, model.Thread{
		ThreadID:          "t1",
		Summary:           "Flight changed.",
		GeneratedCategory: "Travel",
		DeliveredTo:       strPtr("other@example.com"),
	}))
	th, err = s.FindThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Flight changed.", th.Summary)
	assert.Equal(t, "", th.UserCategory)
	require.NotNil(t, th.DeliveredTo)
	assert.Equal(t, "me@example.com", *th.DeliveredTo)
}

func TestUpsertThreadIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	th := model.Thread{ThreadID: "t1", Summary: "Invoice due.", GeneratedCategory: "Transactional"}

	require.NoError(t, s.UpsertThread(ctx, th))
	once, err := s.FindThread(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, s.UpsertThread(ctx, th))
	twice, err := s.FindThread(ctx, "t1")
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestConcurrentInsertSameMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.InsertMessage(ctx, &model.Message{MessageID: "race", ThreadID: "t"}); err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestSaveAndFindAccount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	acc := &model.Account{
		Email:        "me@example.com",
		AccessToken:  "at",
		RefreshToken: "rt",
		TokenExpiry:  expiry,
		Categories: []model.CategorySetting{
			{Name: "Clients", Description: "Paying clients"},
			{Name: "Spam", Disabled: true},
		},
	}
	require.NoError(t, s.SaveAccount(ctx, acc))

	got, err := s.FindAccount(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "rt", got.RefreshToken)
	assert.True(t, expiry.Equal(got.TokenExpiry))
	assert.Equal(t, acc.Categories, got.Categories)

	acc.AccessToken = "at2"
	require.NoError(t, s.SaveAccount(ctx, acc))
	got, err = s.FindAccount(ctx, "me@example.com")
	require.NoError(t, err)
	assert.Equal(t, "at2", got.AccessToken)
}
