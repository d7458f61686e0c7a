package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanBody(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses newlines and spaces", "Hello\r\n\r\nworld   again ", "Hello world again"},
		{"removes links", "Pay here https://pay.example.com/invoice?id=42 before Friday", "Pay here before Friday"},
		{"removes other schemes", "See ftp://files.example.org/a.txt now", "See now"},
		{"keeps plain punctuation", "Total: $12.50 (incl. tax)", "Total: $12.50 (incl. tax)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanBody(tt.in))
		})
	}
}

func TestCleanBodyStripsMarkup(t *testing.T) {
	got := CleanBody("<html><body><p>Hello <b>there</b></p><a href=\"https://x.example\">link</a></body></html>")

	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "https://")
	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "there")
	assert.NotContains(t, got, "\n")
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "notificationspromotions", NormalizeLabel("Notifications/Promotions"))
	assert.Equal(t, "workrelated", NormalizeLabel("  Work-Related! "))
	assert.Equal(t, "legal and administrative", NormalizeLabel("Legal and Administrative"))
	assert.Equal(t, "", NormalizeLabel("?!"))
}

func TestFindKnownCategory(t *testing.T) {
	vocab := []string{"Notifications/Promotions", "Personal"}

	got, ok := FindKnownCategory("I think this is Promotions related", vocab)
	assert.True(t, ok)
	assert.Equal(t, "Notifications/Promotions", got)

	got, ok = FindKnownCategory("Notifications/Promotions", vocab)
	assert.True(t, ok)
	assert.Equal(t, "Notifications/Promotions", got)

	got, ok = FindKnownCategory("personal", vocab)
	assert.True(t, ok)
	assert.Equal(t, "Personal", got)

	_, ok = FindKnownCategory("Other", vocab)
	assert.False(t, ok)

	_, ok = FindKnownCategory("", vocab)
	assert.False(t, ok)
}

func TestFindKnownCategoryRequiresWordBoundary(t *testing.T) {
	vocab := []string{"Health", "Travel"}

	_, ok := FindKnownCategory("Healthcare newsletter", vocab)
	assert.False(t, ok)

	_, ok = FindKnownCategory("Traveling", vocab)
	assert.False(t, ok)

	got, ok := FindKnownCategory("travel booking", vocab)
	assert.True(t, ok)
	assert.Equal(t, "Travel", got)
}

func TestFindKnownCategoryReturnsFirstInVocabularyOrder(t *testing.T) {
	vocab := []string{"Work-Related", "Personal"}

	got, ok := FindKnownCategory("personal and work-related", vocab)
	assert.True(t, ok)
	assert.Equal(t, "Work-Related", got)
}

func TestFindKnownCategoryNonASCII(t *testing.T) {
	vocab := []string{"Études", "Santé", "工作", "Famille"}

	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"Études", "Études", true},
		{"études", "Études", true},
		{"catégorie: Santé.", "Santé", true},
		{"工作", "工作", true},
		{"工作 相关", "工作", true},
		{"Famille", "Famille", true},
		{"Santéx", "", false},
		{"préétudes", "", false},
		{"工作日", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := FindKnownCategory(tc.text, vocab)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
