package model

import (
	"time"

	"github.com/samber/lo"
)

// Gmail system labels the pipeline cares about.
const (
	LabelDraft = "DRAFT"
	LabelInbox = "INBOX"
)

// Attachment 邮件附件描述
type Attachment struct {
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	AttachmentID string `json:"attachmentId,omitempty"`
	Data         []byte `json:"data,omitempty"`
}

// Message is the persisted record of one provider message. It is written
// once and never updated.
type Message struct {
	MessageID   string       `json:"messageId"`
	ThreadID    string       `json:"threadId"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Date        *time.Time   `json:"date"`
	Snippet     string       `json:"snippet"`
	LabelIDs    []string     `json:"labelIds"`
	BodyText    string       `json:"text"`
	BodyHTML    string       `json:"html"`
	Attachments []Attachment `json:"attachments"`

	GeneratedCategory string `json:"generatedCategory"`
	UserCategory      string `json:"userCategory"`
	Summary           string `json:"summary"`
	AIOutputText      string `json:"mistralOutputText"`

	// 仅当对应 header 存在时才设置
	DeliveredTo *string `json:"deliveredTo,omitempty"`
	Cc          *string `json:"cc,omitempty"`
	Bcc         *string `json:"bcc,omitempty"`
	DraftID     string  `json:"draftId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasLabel reports whether the message carries the given label id.
func (m *Message) HasLabel(label string) bool {
	return lo.Contains(m.LabelIDs, label)
}
