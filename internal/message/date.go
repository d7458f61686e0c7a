package message

import (
	"net/mail"
	"strings"
	"time"
)

const iso8601UTC = "2006-01-02T15:04:05Z"

// 没有时区的日期按 UTC 处理
var zonelessLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04",
	"2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04",
}

// ParseDate parses an RFC 2822 style date. Input without a zone is taken
// as UTC. Unparseable input returns nil.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if t, err := mail.ParseDate(s); err == nil {
		u := t.UTC()
		return &u
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

// ToISO8601UTC converts a provider date header to "2006-01-02T15:04:05Z".
func ToISO8601UTC(s string) *string {
	t := ParseDate(s)
	if t == nil {
		return nil
	}
	out := t.Format(iso8601UTC)
	return &out
}
