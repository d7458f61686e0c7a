package mq

import "time"

// Routing keys
const (
	RoutingKeyTransformRequested = "email.transform.requested"
	RoutingKeyBatchRequested     = "email.batch.requested"
	RoutingKeyEmailProcessed     = "email.processed"
)

// TransformRequestedPayload 请求处理单封邮件
type TransformRequestedPayload struct {
	UserEmail string `json:"user_email"`
	MessageID string `json:"message_id"`
	TraceID   string `json:"trace_id,omitempty"`
}

// BatchRequestedPayload 请求处理最近 Days 天的邮件
type BatchRequestedPayload struct {
	UserEmail string `json:"user_email"`
	Days      int    `json:"days,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// EmailProcessedPayload is published once per stored message.
type EmailProcessedPayload struct {
	MessageID string    `json:"message_id"`
	ThreadID  string    `json:"thread_id"`
	Category  string    `json:"category"`
	Summary   string    `json:"summary"`
	IsDraft   bool      `json:"is_draft"`
	StoredAt  time.Time `json:"stored_at"`
	TraceID   string    `json:"trace_id,omitempty"`
}
