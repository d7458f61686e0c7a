package categorize

import (
	"encoding/json"
	"fmt"
	"strings"

	"mailsense/internal/model"
	"mailsense/internal/textutil"
)

// ParseError describes a model reply that could not be read as a JSON
// object. Interpret always recovers from it.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type reply struct {
	Category json.RawMessage `json:"category"`
	Summary  json.RawMessage `json:"summary"`
}

// Interpret maps the model's raw reply onto the vocabulary. Malformed
// replies yield category Other with an empty summary. RawText is always the
// input, verbatim.
func Interpret(raw string, vocabulary []string) model.CategorizationResult {
	res, _ := InterpretWithError(raw, vocabulary)
	return res
}

// InterpretWithError is Interpret plus the recovered *ParseError, if any,
// for callers that want to log it.
func InterpretWithError(raw string, vocabulary []string) (model.CategorizationResult, error) {
	res := model.CategorizationResult{Category: CategoryOther, RawText: raw}

	r, err := decodeReply(raw)
	if err != nil {
		return res, &ParseError{Raw: raw, Err: err}
	}

	category := CategoryOther
	if s, ok := stringField(r.Category); ok {
		category = s
	}
	if known, ok := textutil.FindKnownCategory(category, vocabulary); ok {
		res.Category = known
	}
	res.Summary = summaryField(r.Summary)
	return res, nil
}

func decodeReply(raw string) (*reply, error) {
	body := stripCodeFence(raw)

	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, err
	}
	if _, ok := probe.(map[string]any); !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", probe)
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// 模型经常把 JSON 包在 ```json ... ``` 里
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func stringField(v json.RawMessage) (string, bool) {
	if len(v) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}

// summaryField accepts a string or a list of strings (rendered as "- "
// lines); anything else is treated as absent.
func summaryField(v json.RawMessage) string {
	if s, ok := stringField(v); ok {
		return s
	}
	var items []string
	if len(v) > 0 && json.Unmarshal(v, &items) == nil {
		lines := make([]string, 0, len(items))
		for _, it := range items {
			lines = append(lines, "- "+it)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}
