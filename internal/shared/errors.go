// Package shared provides retry and error classification helpers used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import (
	"context"
	"errors"
	"net"
	"strings"
)

// IsSQLiteConflictError reports SQLITE_BUSY and "database is locked" errors,
// the two SQLite concurrency failures worth retrying.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsNetworkTimeout reports whether err is a network-level timeout that did not
// come from the caller's own context.
func IsNetworkTimeout(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
