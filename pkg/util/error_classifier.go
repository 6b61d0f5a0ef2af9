package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the snapshot store reacts to.
const (
	PgDuplicateColumn = "42701"
	PgUndefinedColumn = "42703"
	PgUndefinedTable  = "42P01"
)

// IsRetryableError determines if an error is retryable
// Returns: (isRetryable, errorType)
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// JSON decode errors - 不可重试（数据格式错误）
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false, "json_decode_error"
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	// Context timeout - 可重试
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	// URL errors wrap the network error of an http.Client call.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "server returned 5") {
		return true, "server_error"
	}

	// 默认：未知错误，保守处理 - 不重试
	return false, "unknown_error"
}

// PgCode extracts the SQLSTATE from a pgx error, or "" if err is not one.
func PgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsDuplicateColumn reports an "add column" migration that already ran.
func IsDuplicateColumn(err error) bool {
	if PgCode(err) == PgDuplicateColumn {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// IsSchemaDrift reports a query that failed because the live schema is older
// than the projection it used.
func IsSchemaDrift(err error) bool {
	switch PgCode(err) {
	case PgUndefinedColumn, PgUndefinedTable:
		return true
	}
	return false
}
