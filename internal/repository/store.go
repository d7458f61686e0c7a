package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	contractmq "mailsense/contracts/mq"
	"mailsense/internal/model"
)

var (
	// ErrNotFound is returned by Find* when no row matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateMessage 表示 message_id 已存在（唯一约束）
	ErrDuplicateMessage = errors.New("message already stored")
)

const aggregateMessage = "message"

func processedEvent(m *model.Message, traceID string) contractmq.EmailProcessedPayload {
	return contractmq.EmailProcessedPayload{
		MessageID: m.MessageID,
		ThreadID:  m.ThreadID,
		Category:  m.GeneratedCategory,
		Summary:   m.Summary,
		IsDraft:   m.HasLabel(model.LabelDraft),
		StoredAt:  m.CreatedAt,
		TraceID:   traceID,
	}
}

func stampMessage(m *model.Message) {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.LabelIDs == nil {
		m.LabelIDs = []string{}
	}
	if m.Attachments == nil {
		m.Attachments = []model.Attachment{}
	}
}

func marshalJSON(field string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", field, err)
	}
	return data, nil
}

func unmarshalJSON(field string, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling %s: %w", field, err)
	}
	return nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func nonNilCategories(c []model.CategorySetting) []model.CategorySetting {
	if c == nil {
		return []model.CategorySetting{}
	}
	return c
}
