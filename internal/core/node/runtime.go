// Package node provides the Local and Shared runtimes that drive a node
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/otapflow/otapflow/internal/core/channel"
)

import imetrics "github.com/otapflow/otapflow/internal/infrastructure/metrics"

// Runtime drives a node to completion. The two implementations share one
// logical contract and differ only in execution placement:
//
//   - LocalRuntime runs the message loop on the calling goroutine. The node,
//     its channel handles, and its effect handler stay confined to that
//     goroutine. This is the cheap default.
//   - SharedRuntime runs the loop on a dedicated goroutine and is meant for
//     nodes that embed libraries with their own goroutines (e.g. a gRPC or
//     socket server) and need to use the effect handler from them.
//
// The choice is made once, at node registration, not through inheritance.
type Runtime[T any] interface {
	// Run drives the node until shutdown or failure. A Shutdown control
	// message ends the run with a nil error after being dispatched to the
	// node; a closed message channel surfaces as *ChannelRecvError; handler
	// errors are returned tagged with the node identity.
	Run(ctx context.Context) error
}

// LocalRuntime is the single-goroutine, non-shared execution variant.
type LocalRuntime[T any] struct {
	node Node[T]
	mc   *channel.MessageChannel[T]
	eff  EffectHandler[T]
}

// NewLocalRuntime wires a node to its message channel and effect handler.
func NewLocalRuntime[T any](n Node[T], mc *channel.MessageChannel[T], eff EffectHandler[T]) *LocalRuntime[T] {
	return &LocalRuntime[T]{node: n, mc: mc, eff: eff}
}

// Run implements Runtime on the calling goroutine.
func (r *LocalRuntime[T]) Run(ctx context.Context) error {
	return drive(ctx, r.node, r.mc, r.eff)
}

// SharedRuntime is the execution variant for nodes whose I/O libraries
// require goroutine-safe usage. The message loop owns the MessageChannel on
// its own goroutine; the effect handler may be used concurrently from the
// node's auxiliary goroutines.
type SharedRuntime[T any] struct {
	node Node[T]
	mc   *channel.MessageChannel[T]
	eff  EffectHandler[T]
}

// NewSharedRuntime wires a node for shared execution.
func NewSharedRuntime[T any](n Node[T], mc *channel.MessageChannel[T], eff EffectHandler[T]) *SharedRuntime[T] {
	return &SharedRuntime[T]{node: n, mc: mc, eff: eff}
}

// Run implements Runtime. The loop runs on its own goroutine; Run blocks
// until it finishes so both variants expose the same contract.
func (r *SharedRuntime[T]) Run(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		done <- drive(ctx, r.node, r.mc, r.eff)
	}()
	return <-done
}

// drive is the shared message loop: control messages go to HandleControl,
// with Shutdown ending the loop after dispatch; payload goes to HandlePData;
// a closed channel is terminal and node-tagged for the supervisor.
func drive[T any](ctx context.Context, n Node[T], mc *channel.MessageChannel[T], eff EffectHandler[T]) error {
	// Whatever way the loop ends, leave no producer parked on a channel
	// nobody will ever read again.
	defer mc.Close()

	if init, ok := n.(Initializer[T]); ok {
		if err := init.Init(ctx, eff); err != nil {
			imetrics.IncNodeFailures()
			return fmt.Errorf("node %q: init: %w", eff.NodeID(), err)
		}
	}

	imetrics.AddNodesRunning(1)
	defer imetrics.AddNodesRunning(-1)

	for {
		msg, err := mc.Recv(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrChannelClosed) {
				imetrics.IncNodeFailures()
				return &ChannelRecvError{NodeID: eff.NodeID(), Err: err}
			}
			// Context cancellation from the embedding supervisor.
			return fmt.Errorf("node %q: %w", eff.NodeID(), err)
		}

		switch msg.Kind {
		case channel.MessageControl:
			if err := n.HandleControl(ctx, msg.Control, eff); err != nil {
				imetrics.IncNodeFailures()
				return fmt.Errorf("node %q: control handler: %w", eff.NodeID(), err)
			}
			if msg.Control.Kind == channel.ControlShutdown {
				return nil
			}
		case channel.MessagePData:
			if err := n.HandlePData(ctx, msg.PData, eff); err != nil {
				imetrics.IncNodeFailures()
				return fmt.Errorf("node %q: pdata handler: %w", eff.NodeID(), err)
			}
		}
	}
}
