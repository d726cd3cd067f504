// Package channel defines domain-specific errors
package channel

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Send-side errors. The value being sent is never consumed on failure;
	// it stays with the caller so it can be retried, escalated, or reported.
	ErrChannelFull   = errors.New("channel is full")
	ErrChannelClosed = errors.New("channel is closed")

	// Receive-side errors
	ErrChannelEmpty = errors.New("channel is empty")
)
