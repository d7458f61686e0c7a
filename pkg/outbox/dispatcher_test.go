package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"mailsense/pkg/trace"
)

func TestWithPayloadTrace(t *testing.T) {
	ctx := withPayloadTrace(context.Background(), json.RawMessage(`{"message_id":"m1","trace_id":"abc"}`))
	assert.Equal(t, "abc", trace.FromContext(ctx))

	ctx = withPayloadTrace(context.Background(), json.RawMessage(`{"message_id":"m1"}`))
	assert.Equal(t, "", trace.FromContext(ctx))

	base := trace.WithContext(context.Background(), "keep")
	ctx = withPayloadTrace(base, json.RawMessage(`not json`))
	assert.Equal(t, "keep", trace.FromContext(ctx))
}
