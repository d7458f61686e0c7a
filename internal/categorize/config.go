// Package categorize holds the category vocabulary for a run and turns raw
// model replies into validated categorization results.
package categorize

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"mailsense/internal/model"
)

// Sentinel categories that are never part of a vocabulary.
const (
	CategoryOther = "Other"
	CategoryDraft = "Draft"
)

// DefaultCategories is used for accounts without a category profile.
var DefaultCategories = []string{
	"Personal",
	"Work-Related",
	"Transactional",
	"Notifications/Promotions",
	"Educational",
	"Legal and Administrative",
	"Health",
	"Travel",
}

// Config is the read-only category setup for one account and one run. It is
// passed by value into every call and never shared as mutable state.
type Config struct {
	Categories []model.CategorySetting
}

// DefaultConfig returns the built-in vocabulary without descriptions.
func DefaultConfig() Config {
	settings := lo.Map(DefaultCategories, func(name string, _ int) model.CategorySetting {
		return model.CategorySetting{Name: name}
	})
	return Config{Categories: settings}
}

// FromAccount builds the config from the account's enabled categories,
// falling back to the default vocabulary when none are enabled.
func FromAccount(acc *model.Account) Config {
	if acc == nil {
		return DefaultConfig()
	}
	enabled := lo.Filter(acc.Categories, func(c model.CategorySetting, _ int) bool {
		return !c.Disabled && strings.TrimSpace(c.Name) != ""
	})
	enabled = lo.UniqBy(enabled, func(c model.CategorySetting) string { return c.Name })
	if len(enabled) == 0 {
		return DefaultConfig()
	}
	return Config{Categories: enabled}
}

// Vocabulary returns the category names in profile order.
func (c Config) Vocabulary() []string {
	return lo.Map(c.Categories, func(s model.CategorySetting, _ int) string { return s.Name })
}

// PromptDescription renders the vocabulary for the prompt: one
// "name: description" line per category when descriptions exist, else a
// comma separated list of names.
func (c Config) PromptDescription() string {
	hasDesc := lo.SomeBy(c.Categories, func(s model.CategorySetting) bool {
		return strings.TrimSpace(s.Description) != ""
	})
	if !hasDesc {
		return strings.Join(c.Vocabulary(), ", ")
	}

	var sb strings.Builder
	for _, s := range c.Categories {
		desc := strings.TrimSpace(s.Description)
		if desc == "" {
			sb.WriteString(fmt.Sprintf("\n%s\n", s.Name))
			continue
		}
		sb.WriteString(fmt.Sprintf("\n%s: %s\n", s.Name, desc))
	}
	return sb.String()
}
