// Package channel combines control and payload channels into one receive
// operation with shutdown-drain semantics
package channel

import (
	"context"
	"time"
)

// messageState tracks the shutdown-drain state machine.
type messageState string

const (
	stateRunning  messageState = "running"
	stateDraining messageState = "draining"
	stateClosed   messageState = "closed"
)

// MessageChannel merges one control channel and one payload channel into a
// single receive operation. While running, control traffic wins whenever both
// sides are ready. A Shutdown with a non-zero deadline is not delivered
// immediately: the channel first drains buffered and in-flight payload, then
// hands the shutdown over once the payload side is exhausted or the deadline
// passes, whichever comes first. A zero-deadline Shutdown closes everything
// at once and discards buffered payload.
//
// A MessageChannel is owned by a single consuming goroutine and is not safe
// for concurrent use.
type MessageChannel[T any] struct {
	control *Receiver[ControlMsg]
	pdata   *Receiver[T]

	state    messageState
	deadline time.Time  // absolute drain deadline, valid while draining
	pending  ControlMsg // shutdown held back until the drain completes
}

// NewMessageChannel builds a message channel from a control receiver and a
// payload receiver. Test harnesses construct one directly from a pair of
// bounded channels and script sends against the matching senders.
func NewMessageChannel[T any](control *Receiver[ControlMsg], pdata *Receiver[T]) *MessageChannel[T] {
	return &MessageChannel[T]{control: control, pdata: pdata, state: stateRunning}
}

// Recv returns the next message for the node. Once the channel has closed,
// every call returns ErrChannelClosed without touching the underlying
// channels.
func (mc *MessageChannel[T]) Recv(ctx context.Context) (Message[T], error) {
	var zero Message[T]
	for {
		switch mc.state {
		case stateClosed:
			return zero, ErrChannelClosed
		case stateRunning:
			msg, delivered, err := mc.pollRunning(ctx)
			if err != nil || delivered {
				return msg, err
			}
		case stateDraining:
			msg, delivered, err := mc.pollDraining(ctx)
			if err != nil || delivered {
				return msg, err
			}
		}
	}
}

// pollRunning performs one arbitration round: control first, then payload,
// then suspend on whichever side becomes ready. A false delivered flag with a
// nil error means the caller should re-run the state machine.
func (mc *MessageChannel[T]) pollRunning(ctx context.Context) (Message[T], bool, error) {
	var zero Message[T]

	cm, cerr := mc.control.TryRecv()
	switch cerr {
	case nil:
		if cm.Kind != ControlShutdown {
			return NewControlMessage[T](cm), true, nil
		}
		if cm.Deadline <= 0 {
			// Immediate shutdown: buffered payload is discarded.
			mc.close()
			return NewControlMessage[T](cm), true, nil
		}
		mc.state = stateDraining
		mc.deadline = time.Now().Add(cm.Deadline)
		mc.pending = cm
		return zero, false, nil
	case ErrChannelClosed:
		// The control side vanished without a shutdown; nothing can manage
		// this node anymore, so tear the payload side down as well.
		mc.close()
		return zero, false, ErrChannelClosed
	}

	value, derr := mc.pdata.TryRecv()
	switch derr {
	case nil:
		return NewPDataMessage[T](value), true, nil
	case ErrChannelClosed:
		// Payload side exhausted; keep serving control traffic.
		select {
		case <-mc.control.ready():
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
		return zero, false, nil
	}

	select {
	case <-mc.control.ready():
	case <-mc.pdata.ready():
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
	return zero, false, nil
}

// pollDraining drains payload in order ahead of the deferred shutdown. The
// control channel is not polled while draining; follow-up control traffic is
// never observed by this channel.
func (mc *MessageChannel[T]) pollDraining(ctx context.Context) (Message[T], bool, error) {
	var zero Message[T]

	value, err := mc.pdata.TryRecv()
	switch err {
	case nil:
		return NewPDataMessage[T](value), true, nil
	case ErrChannelClosed:
		return mc.finishDrain(), true, nil
	}

	remaining := time.Until(mc.deadline)
	if remaining <= 0 {
		return mc.finishDrain(), true, nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-mc.pdata.ready():
		return zero, false, nil
	case <-timer.C:
		return mc.finishDrain(), true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Close tears the channel down outside the shutdown protocol: both
// underlying receivers close (waking their producers) and every later Recv
// returns ErrChannelClosed. Runtimes call this when a node fails so upstream
// senders do not hang on a dead consumer. Closing twice is a no-op.
func (mc *MessageChannel[T]) Close() {
	mc.close()
}

// finishDrain delivers the deferred shutdown and closes the channel for good.
func (mc *MessageChannel[T]) finishDrain() Message[T] {
	pending := mc.pending
	mc.close()
	return NewControlMessage[T](pending)
}

func (mc *MessageChannel[T]) close() {
	mc.control.Close()
	mc.pdata.Close()
	mc.state = stateClosed
}
