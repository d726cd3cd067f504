// Package node defines the contract pipeline nodes implement and the
// runtimes that drive them
package node

import (
	"context"

	"github.com/otapflow/otapflow/internal/core/channel"
)

// Kind classifies a node's position in a pipeline.
type Kind string

const (
	// KindReceiver ingests data from outside the pipeline.
	KindReceiver Kind = "receiver"
	// KindProcessor transforms payload in flight.
	KindProcessor Kind = "processor"
	// KindExporter delivers payload out of the pipeline.
	KindExporter Kind = "exporter"
)

// Node is the business-logic surface of a pipeline node. A runtime drives it
// by looping on a MessageChannel and dispatching each message; the node never
// touches the channel directly.
//
// HandleControl receives every lifecycle message, including the final
// Shutdown (after which the runtime exits its loop). HandlePData receives
// payload values. An error from either handler terminates the node.
type Node[T any] interface {
	HandleControl(ctx context.Context, msg channel.ControlMsg, eff EffectHandler[T]) error
	HandlePData(ctx context.Context, data T, eff EffectHandler[T]) error
}

// Initializer is implemented by nodes that need setup before the message
// loop starts, e.g. binding a listener through the effect handler.
type Initializer[T any] interface {
	Init(ctx context.Context, eff EffectHandler[T]) error
}

// ControlFunc adapts a function to a control-only node (no payload handling).
type ControlFunc[T any] func(ctx context.Context, msg channel.ControlMsg, eff EffectHandler[T]) error

// HandleControl implements Node.
func (f ControlFunc[T]) HandleControl(ctx context.Context, msg channel.ControlMsg, eff EffectHandler[T]) error {
	return f(ctx, msg, eff)
}

// HandlePData implements Node; control-only nodes ignore payload.
func (f ControlFunc[T]) HandlePData(ctx context.Context, data T, eff EffectHandler[T]) error {
	return nil
}
