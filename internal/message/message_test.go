package message

import (
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailsense/internal/model"
	"mailsense/internal/provider"
)

func TestToISO8601UTC(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Wed, 24 Jul 2024 14:23:38 +0200", "2024-07-24T12:23:38Z"},
		{"Wed, 24 Jul 2024 12:23:38 +0000", "2024-07-24T12:23:38Z"},
		{"Wed, 24 Jul 2024 12:23:38", "2024-07-24T12:23:38Z"},
		{"Wed, 24 Jul 2024 05:23:38 -0700", "2024-07-24T12:23:38Z"},
		{"Wed, 24 Jul 2024 12:23:38 +0000 (UTC)", "2024-07-24T12:23:38Z"},
	}
	for _, tc := range cases {
		got := ToISO8601UTC(tc.in)
		require.NotNil(t, got, tc.in)
		assert.Equal(t, tc.want, *got, tc.in)
	}

	assert.Nil(t, ToISO8601UTC("Invalid Date"))
	assert.Nil(t, ToISO8601UTC(""))
}

func header(kv ...string) mail.Header {
	var h mail.Header
	for i := 0; i+1 < len(kv); i += 2 {
		h.Add(kv[i], kv[i+1])
	}
	return h
}

func TestAssembleFullMessage(t *testing.T) {
	src := &provider.Message{
		ID:       "m1",
		ThreadID: "t1",
		Snippet:  "See you",
		LabelIDs: []string{"INBOX", "INBOX"},
		Header: header(
			"Subject", "Dinner",
			"From", "alice@example.com",
			"To", "me@example.com",
			"Date", "Wed, 24 Jul 2024 14:23:38 +0200",
			"Delivered-To", "me@example.com",
			"Cc", "bob@example.com",
		),
		Body: provider.Body{Text: "See you at 8", HTML: "<p>See you at 8</p>"},
	}
	res := model.CategorizationResult{Category: "Personal", Summary: "Dinner at 8.", RawText: `{"category":"Personal"}`}

	m := Assemble(src, res, "d-1")

	assert.Equal(t, "m1", m.MessageID)
	assert.Equal(t, "t1", m.ThreadID)
	assert.Equal(t, "Dinner", m.Subject)
	assert.Equal(t, "alice@example.com", m.From)
	assert.Equal(t, "me@example.com", m.To)
	require.NotNil(t, m.Date)
	assert.Equal(t, "2024-07-24T12:23:38Z", m.Date.Format(iso8601UTC))
	assert.Equal(t, []string{"INBOX"}, m.LabelIDs)
	assert.Equal(t, "Personal", m.GeneratedCategory)
	assert.Equal(t, "", m.UserCategory)
	assert.Equal(t, "Dinner at 8.", m.Summary)
	assert.Equal(t, `{"category":"Personal"}`, m.AIOutputText)
	require.NotNil(t, m.DeliveredTo)
	assert.Equal(t, "me@example.com", *m.DeliveredTo)
	require.NotNil(t, m.Cc)
	assert.Equal(t, "bob@example.com", *m.Cc)
	assert.Nil(t, m.Bcc)
	// 非草稿不带 draftId
	assert.Empty(t, m.DraftID)
}

func TestAssembleDefaultsAndDraft(t *testing.T) {
	src := &provider.Message{
		ID:       "m2",
		ThreadID: "t2",
		LabelIDs: []string{model.LabelDraft},
		Header:   header("Date", "not a date"),
	}

	m := Assemble(src, model.CategorizationResult{Category: "Draft"}, "d-7")

	assert.Equal(t, DefaultSubject, m.Subject)
	assert.Equal(t, DefaultSender, m.From)
	assert.Equal(t, DefaultRecipients, m.To)
	assert.Nil(t, m.Date)
	assert.Nil(t, m.DeliveredTo)
	assert.Equal(t, "d-7", m.DraftID)
}
