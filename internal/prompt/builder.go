// Package prompt renders the categorization prompts sent to the model.
package prompt

import (
	_ "embed"
	"strings"
	"text/template"

	"mailsense/internal/model"
)

const (
	DefaultSender  = "Unknown Sender"
	DefaultSubject = "No Subject"
)

//go:embed templates/new_thread.tmpl
var newThreadTemplate string

//go:embed templates/continuation.tmpl
var continuationTemplate string

var (
	newThreadTmpl    = template.Must(template.New("new_thread").Parse(newThreadTemplate))
	continuationTmpl = template.Must(template.New("continuation").Parse(continuationTemplate))
)

// Input 是渲染一次 prompt 所需的全部数据
type Input struct {
	Sender  string
	Subject string
	// Text is the cleaned, already truncated body.
	Text string
	// Categories is the vocabulary description shown to the model.
	Categories string
	// PriorThread selects the continuation template when non-nil.
	PriorThread *model.Thread
}

type templateData struct {
	Sender        string
	Subject       string
	Text          string
	Categories    string
	PriorCategory string
	PriorSummary  string
}

// Build renders the new-thread template, or the continuation template when
// the message belongs to a thread that was seen before.
func Build(in Input) string {
	data := templateData{
		Sender:     orDefault(in.Sender, DefaultSender),
		Subject:    orDefault(in.Subject, DefaultSubject),
		Text:       in.Text,
		Categories: strings.TrimSpace(in.Categories),
	}

	tmpl := newThreadTmpl
	if in.PriorThread != nil {
		tmpl = continuationTmpl
		data.PriorCategory = in.PriorThread.EffectiveCategory()
		data.PriorSummary = in.PriorThread.Summary
	}

	var sb strings.Builder
	// strings.Builder 不会写失败，字段也都是 string，Execute 不会返回错误
	_ = tmpl.Execute(&sb, data)
	return sb.String()
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
