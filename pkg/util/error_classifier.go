package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
)

// Classifier lets domain errors report how they should be handled without
// this package importing them.
type Classifier interface {
	Retryable() bool
	ErrorType() string
}

// IsRetryableError 判断错误是否可以重试
// 返回: (是否可重试, 错误类型)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.Retryable(), c.ErrorType()
	}

	// JSON 解码错误：数据格式问题，重试无意义
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, ErrLockTimeout) {
		return true, "lock_timeout"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "UNIQUE constraint") {
		return false, "duplicate_key"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return true, "connection_error"
	}

	// 未知错误：保守处理，不重试
	return false, "unknown_error"
}

// ShouldRetry reports whether another attempt is allowed.
func ShouldRetry(retryCount, maxRetries int64, retryable bool) bool {
	return retryable && retryCount <= maxRetries
}
