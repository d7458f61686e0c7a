// Package tokenizer estimates prompt sizes and trims message bodies to a
// token budget before the model is called.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

// 使用内嵌的 BPE 文件，启动和测试都不访问网络
func init() {
	tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
}

// DefaultEncoding matches the gpt-3.5-turbo tokenizer.
const DefaultEncoding = "cl100k_base"

// Budgeter counts and truncates text with a BPE encoding. Safe for
// concurrent use.
type Budgeter struct {
	enc *tiktoken.Tiktoken
}

// NewBudgeter loads the named encoding, cl100k_base when empty.
func NewBudgeter(encoding string) (*Budgeter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &Budgeter{enc: enc}, nil
}

// Estimate returns the number of tokens in text.
func (b *Budgeter) Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Truncate keeps the first maxTokens tokens of text. Text already within
// budget is returned unchanged.
func (b *Budgeter) Truncate(text string, maxTokens int) string {
	if text == "" {
		return text
	}
	tokens := b.enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	if maxTokens <= 0 {
		return ""
	}
	return b.enc.Decode(tokens[:maxTokens])
}
