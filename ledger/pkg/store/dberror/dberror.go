// Package dberror classifies store failures so callers can tell an
// unavailable database from a ledger error.
package dberror

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorType classifies database errors for appropriate handling.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeConnectivity indicates the database is unreachable.
	ErrorTypeConnectivity
	ErrorTypeTimeout
	// ErrorTypeConflict is a serialization failure or deadlock; the
	// transaction rolled back and may be run again.
	ErrorTypeConflict
	ErrorTypeAuth
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConnectivity:
		return "connectivity"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConflict:
		return "conflict"
	case ErrorTypeAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// IsTransient returns true if the error is likely transient and worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	// Caller cancellation is not a database condition.
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case ErrorTypeConnectivity, ErrorTypeTimeout, ErrorTypeConflict:
		return true
	default:
		return false
	}
}

// Classify determines the type of database error.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ErrorTypeConnectivity
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeConnectivity
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range connectivityPatterns {
		if strings.Contains(errStr, pattern) {
			return ErrorTypeConnectivity
		}
	}
	return ErrorTypeUnknown
}

var connectivityPatterns = []string{
	"connection refused",
	"connection reset",
	"conn closed",
	"no such host",
	"dial tcp",
	"broken pipe",
	"network is unreachable",
	"no route to host",
	"closed pool",
}

func classifySQLState(code string) ErrorType {
	switch {
	case strings.HasPrefix(code, "08"):
		return ErrorTypeConnectivity
	case code == "57P01", code == "57P02", code == "57P03":
		// admin_shutdown, crash_shutdown, cannot_connect_now
		return ErrorTypeConnectivity
	case code == "57014":
		return ErrorTypeTimeout
	case code == "40001", code == "40P01":
		return ErrorTypeConflict
	case strings.HasPrefix(code, "28"):
		return ErrorTypeAuth
	default:
		return ErrorTypeUnknown
	}
}

// UserMessage returns a caller-facing message for err.
func UserMessage(err error) string {
	switch Classify(err) {
	case ErrorTypeConnectivity:
		return "ledger store temporarily unavailable, please try again in a moment"
	case ErrorTypeTimeout:
		return "request timed out, please try again"
	case ErrorTypeConflict:
		return "concurrent update, please retry"
	default:
		return "internal error"
	}
}
