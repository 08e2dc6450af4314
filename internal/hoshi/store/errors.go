package store

import "strings"

// IsBusyError reports a SQLITE_BUSY error: another connection holds the lock.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// IsLockedError reports a "database is locked" error.
func IsLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// IsConflictError reports either form of SQLite lock contention. Only these
// errors are retried; everything else fails immediately.
func IsConflictError(err error) bool {
	return IsBusyError(err) || IsLockedError(err)
}
