package session

import "errors"

// History limits protect the process from unbounded thread replay.
const (
	// DefaultHistoryLimit is the default number of messages loaded per thread.
	DefaultHistoryLimit int32 = 100

	// MaxHistoryLimit is the absolute maximum to prevent OOM.
	MaxHistoryLimit int32 = 10000
)

// Sentinel errors for session operations, checked with errors.Is().
var (
	// ErrThreadNotFound indicates the requested thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrEmptyMessage indicates an append with no message content.
	ErrEmptyMessage = errors.New("empty message content")
)

// NormalizeHistoryLimit clamps a history limit to usable bounds.
// Zero or negative values fall back to DefaultHistoryLimit.
func NormalizeHistoryLimit(limit int32) int32 {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
