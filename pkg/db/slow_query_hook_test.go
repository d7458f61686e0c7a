package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "select", operationOf("  SELECT * FROM messages"))
	assert.Equal(t, "insert", operationOf("INSERT INTO threads"))
	assert.Equal(t, "unknown", operationOf("   "))
}
