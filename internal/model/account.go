package model

import "time"

// CategorySetting is one entry of an account's category profile.
type CategorySetting struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Disabled    bool   `json:"disable"`
}

// Account 邮箱账户及其 OAuth 凭证
type Account struct {
	Email        string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	Categories   []CategorySetting
}
