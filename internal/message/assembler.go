// Package message builds the persisted message record from a fetched
// provider message and its categorization.
package message

import (
	"strings"

	"github.com/emersion/go-message/mail"
	"github.com/samber/lo"

	"mailsense/internal/model"
	"mailsense/internal/provider"
)

const (
	DefaultSubject    = "No Subject"
	DefaultSender     = "Unknown Sender"
	DefaultRecipients = "No Recipients"
)

// Assemble merges headers, decoded body and the categorization result.
// UserCategory always starts empty; draftID is only kept for draft messages.
func Assemble(src *provider.Message, result model.CategorizationResult, draftID string) *model.Message {
	h := src.Header

	m := &model.Message{
		MessageID:         src.ID,
		ThreadID:          src.ThreadID,
		Subject:           HeaderText(h, "Subject", DefaultSubject),
		From:              HeaderText(h, "From", DefaultSender),
		To:                HeaderText(h, "To", DefaultRecipients),
		Date:              ParseDate(h.Get("Date")),
		Snippet:           src.Snippet,
		LabelIDs:          lo.Uniq(src.LabelIDs),
		BodyText:          src.Body.Text,
		BodyHTML:          src.Body.HTML,
		Attachments:       src.Body.Attachments,
		GeneratedCategory: result.Category,
		UserCategory:      "",
		Summary:           result.Summary,
		AIOutputText:      result.RawText,
		DeliveredTo:       OptionalHeader(h, "Delivered-To"),
		Cc:                OptionalHeader(h, "Cc"),
		Bcc:               OptionalHeader(h, "Bcc"),
	}
	if m.LabelIDs == nil {
		m.LabelIDs = []string{}
	}
	if draftID != "" && m.HasLabel(model.LabelDraft) {
		m.DraftID = draftID
	}
	return m
}

// HeaderText returns the decoded header value, or def when the header is
// missing or blank.
func HeaderText(h mail.Header, key, def string) string {
	v, err := h.Text(key)
	if err != nil {
		// 编码异常时退回原始值
		v = h.Get(key)
	}
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// OptionalHeader returns nil unless the header exists with a non-blank value.
func OptionalHeader(h mail.Header, key string) *string {
	if !h.Has(key) {
		return nil
	}
	v := HeaderText(h, key, "")
	if v == "" {
		return nil
	}
	return &v
}
