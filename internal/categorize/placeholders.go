package categorize

import "mailsense/internal/model"

// 不调用模型时使用的占位结果
const (
	SummaryDraft      = "Hey I'm a draft."
	SummaryEmptyBody  = "No summary available."
	SummaryTokenLimit = "Token limit exceeded"
	SummaryAIError    = "Error processing with AI."
)

func DraftResult() model.CategorizationResult {
	return model.CategorizationResult{
		Category: CategoryDraft,
		Summary:  SummaryDraft,
		RawText:  "Draft email - AI not called.",
	}
}

func EmptyBodyResult() model.CategorizationResult {
	return model.CategorizationResult{
		Category: CategoryOther,
		Summary:  SummaryEmptyBody,
		RawText:  "No text email or no content - AI not called.",
	}
}

func TokenLimitResult() model.CategorizationResult {
	return model.CategorizationResult{
		Category: CategoryOther,
		Summary:  SummaryTokenLimit,
		RawText:  "Token limit exceeded.",
	}
}

// AIErrorResult embeds the failure in RawText so the stored record shows
// why no model output exists.
func AIErrorResult(err error) model.CategorizationResult {
	return model.CategorizationResult{
		Category: CategoryOther,
		Summary:  SummaryAIError,
		RawText:  "Error: " + err.Error(),
	}
}
