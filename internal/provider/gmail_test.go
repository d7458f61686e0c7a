package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func newTestGmail(t *testing.T, mux *http.ServeMux) *Gmail {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return NewGmailFromService(svc, "me", zap.NewNop())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetMessageDecodesParts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/m1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":       "m1",
			"threadId": "t1",
			"snippet":  "Hello there",
			"labelIds": []string{"INBOX", "UNREAD"},
			"payload": map[string]any{
				"mimeType": "multipart/mixed",
				"headers": []map[string]string{
					{"name": "Subject", "value": "=?UTF-8?Q?Caf=C3=A9_plans?="},
					{"name": "From", "value": "alice@example.com"},
					{"name": "delivered-to", "value": "me@example.com"},
				},
				"parts": []map[string]any{
					{
						"mimeType": "multipart/alternative",
						"parts": []map[string]any{
							{"mimeType": "text/plain", "body": map[string]any{"data": b64("Hello there")}},
							{"mimeType": "text/html", "body": map[string]any{"data": b64("<p>Hello there</p>")}},
						},
					},
					{"mimeType": "application/pdf", "filename": "menu.pdf", "body": map[string]any{"attachmentId": "att-1", "size": 10}},
					{"mimeType": "image/png", "filename": "dot.png", "body": map[string]any{"data": b64("PNG"), "attachmentId": "att-2"}},
				},
			},
		})
	})
	g := newTestGmail(t, mux)

	msg, err := g.GetMessage(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "t1", msg.ThreadID)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, msg.LabelIDs)
	assert.Equal(t, "Hello there", msg.Body.Text)
	assert.Equal(t, "<p>Hello there</p>", msg.Body.HTML)

	subject, err := msg.Header.Text("Subject")
	require.NoError(t, err)
	assert.Equal(t, "Café plans", subject)
	assert.True(t, msg.Header.Has("Delivered-To"))

	require.Len(t, msg.Body.Attachments, 2)
	assert.Equal(t, "menu.pdf", msg.Body.Attachments[0].Filename)
	assert.Equal(t, "att-1", msg.Body.Attachments[0].AttachmentID)
	assert.Nil(t, msg.Body.Attachments[0].Data)
	assert.Equal(t, []byte("PNG"), msg.Body.Attachments[1].Data)
}

func TestGetMessageSinglePart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/m2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":       "m2",
			"threadId": "t2",
			"payload": map[string]any{
				"mimeType": "text/plain",
				"body":     map[string]any{"data": b64("plain body")},
			},
		})
	})
	g := newTestGmail(t, mux)

	msg, err := g.GetMessage(context.Background(), "m2")
	require.NoError(t, err)
	assert.Equal(t, "plain body", msg.Body.Text)
	assert.Empty(t, msg.Body.HTML)
}

func TestGetMessageErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 404, "message": "Not Found"}})
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/denied", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 401, "message": "Invalid Credentials"}})
	})
	g := newTestGmail(t, mux)

	_, err := g.GetMessage(context.Background(), "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)

	_, err = g.GetMessage(context.Background(), "denied")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestGetMessageForbiddenReasons(t *testing.T) {
	forbidden := func(reason string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			writeJSON(w, map[string]any{"error": map[string]any{
				"code":    403,
				"message": reason,
				"errors":  []map[string]string{{"reason": reason, "domain": "usageLimits", "message": reason}},
			}})
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/user-quota", forbidden("userRateLimitExceeded"))
	mux.HandleFunc("/gmail/v1/users/me/messages/project-quota", forbidden("rateLimitExceeded"))
	mux.HandleFunc("/gmail/v1/users/me/messages/scope", forbidden("insufficientPermissions"))
	mux.HandleFunc("/gmail/v1/users/me/messages/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 429, "message": "Too Many Requests"}})
	})
	g := newTestGmail(t, mux)

	for _, id := range []string{"user-quota", "project-quota", "busy"} {
		_, err := g.GetMessage(context.Background(), id)
		assert.ErrorIs(t, err, ErrRateLimited, id)
		assert.NotErrorIs(t, err, ErrAuth, id)
	}

	_, err := g.GetMessage(context.Background(), "scope")
	assert.ErrorIs(t, err, ErrAuth)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestListMessagesPaginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "after:1700000000", r.URL.Query().Get("q"))
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "a"}, {"id": "b"}},
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, map[string]any{"messages": []map[string]string{{"id": "c"}}})
	})
	g := newTestGmail(t, mux)

	ids, err := g.ListMessages(context.Background(), "after:1700000000")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestGetAttachmentAndDrafts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/gmail/v1/users/me/messages/m1/attachments/att-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": b64("%PDF-1.4"), "size": 8})
	})
	mux.HandleFunc("/gmail/v1/users/me/drafts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"drafts": []map[string]any{
				{"id": "d1", "message": map[string]string{"id": "m9"}},
				{"id": "d2"},
			},
		})
	})
	g := newTestGmail(t, mux)

	data, err := g.GetAttachment(context.Background(), "m1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), data)

	drafts, err := g.ListDrafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Draft{{ID: "d1", MessageID: "m9"}, {ID: "d2"}}, drafts)
}

func TestDecodeBase64URLPadding(t *testing.T) {
	for _, s := range []string{"a", "ab", "abc", "abcd", "subjects?>"} {
		got, err := decodeBase64URL(base64.RawURLEncoding.EncodeToString([]byte(s)))
		require.NoError(t, err)
		assert.Equal(t, s, string(got))
	}
}

func rawB64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func textPart(mimeType, contentType string, data []byte) *gmail.MessagePart {
	return &gmail.MessagePart{
		MimeType: mimeType,
		Headers:  []*gmail.MessagePartHeader{{Name: "Content-Type", Value: contentType}},
		Body:     &gmail.MessagePartBody{Data: rawB64(data)},
	}
}

func TestDecodeBodyCharsets(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		data        []byte
		want        string
	}{
		{"latin1", `text/plain; charset="ISO-8859-1"`, []byte("Caf\xe9 \xe0 midi"), "Café à midi"},
		{"windows-1252", "text/plain; charset=windows-1252", []byte("Prix: 5\x80"), "Prix: 5€"},
		{"utf-8", "text/plain; charset=UTF-8", []byte("Déjà vu"), "Déjà vu"},
		{"no charset", "text/plain", []byte("plain"), "plain"},
		{"invalid utf-8 dropped", "text/plain; charset=utf-8", []byte("ok\xff\xfe!"), "ok!"},
		{"unknown charset", "text/plain; charset=x-made-up", []byte("abc\xe9"), "abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Parts:    []*gmail.MessagePart{textPart("text/plain", tc.contentType, tc.data)},
			}
			body := decodeBody(payload)
			assert.Equal(t, tc.want, body.Text)
			assert.True(t, utf8.ValidString(body.Text))
		})
	}
}

func TestDecodeBodySinglePartCharset(t *testing.T) {
	part := textPart("text/html", "text/html; charset=iso-8859-1", []byte("<p>Gar\xe7on</p>"))
	body := decodeBody(part)
	assert.Equal(t, "<p>Garçon</p>", body.HTML)
}
