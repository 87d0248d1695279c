package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"schoolnotify/pkg/circuitbreaker"
)

// ClassifyError maps an error to a coarse kind used as the error_type log
// field and as the fallback error code of failed notification records.
// Nothing in the dispatch path is retried; the kind only explains the loss.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	// Context 超时 / 取消
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "context_canceled"
	}

	if errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) {
		return "circuit_open"
	}

	// JSON decode errors（文档格式错误）
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return "json_decode_error"
	}

	// Database errors
	if errors.Is(err, pgx.ErrNoRows) {
		return "not_found"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return "db_error"
	}
	if pgconn.Timeout(err) {
		return "timeout"
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "network_timeout"
		}
		return "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection") {
		return "db_connection_error"
	}

	return "unknown_error"
}
