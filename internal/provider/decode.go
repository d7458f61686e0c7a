package provider

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"google.golang.org/api/gmail/v1"

	"mailsense/internal/model"
)

// decodeBase64URL 兼容 Gmail 缺失 padding 的 URL-safe base64
func decodeBase64URL(data string) ([]byte, error) {
	if rem := len(data) % 4; rem != 0 {
		data += strings.Repeat("=", 4-rem)
	}
	return base64.URLEncoding.DecodeString(data)
}

// decodeHeader copies the payload headers into a mail.Header so lookups are
// case-insensitive and RFC 2047 words can be decoded.
func decodeHeader(headers []*gmail.MessagePartHeader) mail.Header {
	var h mail.Header
	for _, ph := range headers {
		if ph == nil || ph.Name == "" {
			continue
		}
		h.Add(ph.Name, ph.Value)
	}
	return h
}

// decodeBody walks the payload and collects text/plain, text/html and
// attachment parts. Parts that fail to decode are skipped.
func decodeBody(payload *gmail.MessagePart) Body {
	var body Body
	if payload == nil {
		return body
	}

	if !strings.HasPrefix(payload.MimeType, "multipart/") {
		if payload.Body != nil && payload.Body.Data != "" {
			if data, err := decodeBase64URL(payload.Body.Data); err == nil {
				switch payload.MimeType {
				case "text/plain":
					body.Text = decodeText(payload, data)
				case "text/html":
					body.HTML = decodeText(payload, data)
				}
			}
		}
		return body
	}

	walkParts(payload.Parts, &body)
	return body
}

func walkParts(parts []*gmail.MessagePart, body *Body) {
	for _, part := range parts {
		if part == nil {
			continue
		}
		if len(part.Parts) > 0 {
			walkParts(part.Parts, body)
			continue
		}

		pb := part.Body
		if pb == nil {
			continue
		}

		switch {
		case pb.Data != "" && strings.HasPrefix(part.MimeType, "text/"):
			data, err := decodeBase64URL(pb.Data)
			if err != nil {
				continue
			}
			switch part.MimeType {
			case "text/plain":
				body.Text += decodeText(part, data)
			case "text/html":
				body.HTML += decodeText(part, data)
			}
		case pb.Data != "" && part.Filename != "":
			data, err := decodeBase64URL(pb.Data)
			if err != nil {
				continue
			}
			body.Attachments = append(body.Attachments, model.Attachment{
				Filename:     part.Filename,
				MimeType:     part.MimeType,
				AttachmentID: pb.AttachmentId,
				Data:         data,
			})
		case part.Filename != "" && pb.AttachmentId != "":
			// 内容需要单独调用 attachments.get 拉取
			body.Attachments = append(body.Attachments, model.Attachment{
				Filename:     part.Filename,
				MimeType:     part.MimeType,
				AttachmentID: pb.AttachmentId,
			})
		}
	}
}

// decodeText converts part data from its declared charset to UTF-8. Bytes
// that still do not decode are dropped.
func decodeText(part *gmail.MessagePart, data []byte) string {
	cs := partCharset(part)
	if cs == "" || strings.EqualFold(cs, "utf-8") || strings.EqualFold(cs, "us-ascii") {
		return strings.ToValidUTF8(string(data), "")
	}

	r, err := charset.Reader(cs, bytes.NewReader(data))
	if err == nil {
		if converted, err := io.ReadAll(r); err == nil && utf8.Valid(converted) {
			return string(converted)
		}
	}
	return strings.ToValidUTF8(string(data), "")
}

func partCharset(part *gmail.MessagePart) string {
	h := decodeHeader(part.Headers)
	if !h.Has("Content-Type") {
		return ""
	}
	_, params, err := h.ContentType()
	if err != nil {
		return ""
	}
	return params["charset"]
}
