package voicesession

import "errors"

var (
	// ErrNotConnected is returned for commands issued with no live session.
	ErrNotConnected = errors.New("no live voice session")
	// ErrInsufficientCredits forces the session into Error when the usage
	// collaborator reports a non-positive balance.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrUsageTracking marks a failed balance check. Non-fatal; surfaced so
	// the UI can warn, the session keeps running.
	ErrUsageTracking = errors.New("usage tracking failed")
)
