// Package node provides the capability object handed to node logic
package node

import (
	"context"
	"net"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/infrastructure/logging"
)

// EffectHandler is the only way node logic touches the world outside its own
// state: sending downstream, identifying itself, emitting diagnostics, and
// acquiring OS resources. Routing resource acquisition through the handler
// lets tests substitute mocks without touching node logic.
type EffectHandler[T any] interface {
	// SendMessage pushes a payload value downstream, suspending on
	// backpressure until the downstream buffer has room.
	SendMessage(ctx context.Context, value T) error

	// NodeID returns the node's stable identity for diagnostics and error
	// tagging.
	NodeID() string

	// Info and Warn emit structured diagnostics tagged with the node id.
	Info(msg string, args ...any)
	Warn(msg string, args ...any)

	// Listen binds a listening socket through the configured provider.
	Listen(network, address string) (net.Listener, error)
}

// ListenerProvider abstracts listener binding so tests can substitute mock
// resources.
type ListenerProvider interface {
	Listen(network, address string) (net.Listener, error)
}

// NetListenerProvider binds real sockets via the net package.
type NetListenerProvider struct{}

// Listen implements ListenerProvider.
func (NetListenerProvider) Listen(network, address string) (net.Listener, error) {
	return net.Listen(network, address)
}

// Effects is the standard EffectHandler implementation. The zero downstream
// (nil sender) configuration is used for exporters.
type Effects[T any] struct {
	nodeID    string
	out       *channel.Sender[T]
	logger    logging.Logger
	listeners ListenerProvider
}

// EffectsOption customizes an Effects instance.
type EffectsOption[T any] func(*Effects[T])

// WithLogger overrides the default logger.
func WithLogger[T any](l logging.Logger) EffectsOption[T] {
	return func(e *Effects[T]) { e.logger = l }
}

// WithListenerProvider overrides the default (real socket) provider.
func WithListenerProvider[T any](p ListenerProvider) EffectsOption[T] {
	return func(e *Effects[T]) { e.listeners = p }
}

// NewEffects creates the effect handler for one node. out may be nil for
// nodes at the end of a pipeline.
func NewEffects[T any](nodeID string, out *channel.Sender[T], opts ...EffectsOption[T]) *Effects[T] {
	e := &Effects[T]{
		nodeID:    nodeID,
		out:       out,
		logger:    logging.Default(),
		listeners: NetListenerProvider{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.With(e.logger, "node", nodeID)
	return e
}

// SendMessage implements EffectHandler. It suspends on downstream
// backpressure exactly like a suspending channel send.
func (e *Effects[T]) SendMessage(ctx context.Context, value T) error {
	if e.out == nil {
		return ErrNoDownstream
	}
	return e.out.Send(ctx, value)
}

// NodeID implements EffectHandler.
func (e *Effects[T]) NodeID() string { return e.nodeID }

// Info implements EffectHandler.
func (e *Effects[T]) Info(msg string, args ...any) { e.logger.Info(msg, args...) }

// Warn implements EffectHandler.
func (e *Effects[T]) Warn(msg string, args ...any) { e.logger.Warn(msg, args...) }

// Listen implements EffectHandler.
func (e *Effects[T]) Listen(network, address string) (net.Listener, error) {
	return e.listeners.Listen(network, address)
}
