package model

// Thread is the per-conversation rollup used as context for later messages.
type Thread struct {
	ThreadID          string  `json:"threadId"`
	Summary           string  `json:"summary"`
	GeneratedCategory string  `json:"generatedCategory"`
	UserCategory      string  `json:"userCategory"`
	DeliveredTo       *string `json:"deliveredTo,omitempty"`
}

// EffectiveCategory returns the user override when set, otherwise the
// generated category.
func (t *Thread) EffectiveCategory() string {
	if t.UserCategory != "" {
		return t.UserCategory
	}
	return t.GeneratedCategory
}

// CategorizationResult is the transient outcome of categorizing one message.
type CategorizationResult struct {
	Category string
	Summary  string
	RawText  string
}
