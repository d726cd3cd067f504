// Package node defines runtime-level errors
package node

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// ErrNoDownstream is returned by SendMessage on nodes wired without a
	// downstream channel (exporters).
	ErrNoDownstream = errors.New("node has no downstream channel")
)

// ChannelRecvError reports that a node's message channel closed underneath
// it. It is terminal for the node and carries the node identity so the
// embedding supervisor can attribute the failure.
type ChannelRecvError struct {
	NodeID string
	Err    error
}

func (e *ChannelRecvError) Error() string {
	return fmt.Sprintf("node %q: message channel receive failed: %v", e.NodeID, e.Err)
}

// Unwrap exposes the underlying channel error for errors.Is checks.
func (e *ChannelRecvError) Unwrap() error { return e.Err }
