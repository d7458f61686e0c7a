// Package textutil cleans message bodies before they are sent to the model
// and normalizes category labels for matching.
package textutil

import (
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
)

var (
	urlPattern     = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9+.\-]*://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*\\(\\),]|(?:%[0-9a-fA-F][0-9a-fA-F]))+`)
	spacesPattern  = regexp.MustCompile(` +`)
	htmlTagPattern = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(?:\s[^<>]*)?/?>`)
)

// RE2 的 \b 只认 ASCII，这里按 Unicode 字母、数字和下划线判断词边界
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:$|[^\p{L}\p{N}_])`
)

// asciiPunctuation 与 Python string.punctuation 一致
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// CleanBody strips markup, links and whitespace noise from a message body.
func CleanBody(text string) string {
	if htmlTagPattern.MatchString(text) {
		if plain, err := html2text.FromString(text, html2text.Options{OmitLinks: true, TextOnly: true}); err == nil {
			text = plain
		}
	}

	text = urlPattern.ReplaceAllString(text, "")
	text = strings.NewReplacer("\n", " ", "\r", " ").Replace(text)
	text = spacesPattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// NormalizeLabel lowercases s, removes ASCII punctuation and trims it.
// Only used for comparisons, never for display.
func NormalizeLabel(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(asciiPunctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// FindKnownCategory returns the first vocabulary entry whose normalized form
// appears in text on word boundaries. An entry made of slash-separated
// alternatives ("Notifications/Promotions") also matches on any single
// alternative.
func FindKnownCategory(text string, vocabulary []string) (string, bool) {
	normalized := NormalizeLabel(text)
	if normalized == "" {
		return "", false
	}

	for _, category := range vocabulary {
		for _, form := range labelForms(category) {
			pattern := regexp.MustCompile(`(?i)` + wordStart + regexp.QuoteMeta(form) + wordEnd)
			if pattern.MatchString(normalized) {
				return category, true
			}
		}
	}
	return "", false
}

func labelForms(category string) []string {
	var forms []string
	if full := NormalizeLabel(category); full != "" {
		forms = append(forms, full)
	}
	if !strings.Contains(category, "/") {
		return forms
	}
	for _, part := range strings.Split(category, "/") {
		if p := NormalizeLabel(part); p != "" {
			forms = append(forms, p)
		}
	}
	return forms
}
