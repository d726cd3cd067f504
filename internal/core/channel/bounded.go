// Package channel provides the bounded communication primitives every
// pipeline node is built on
package channel

import (
	"context"
	"sync"
)

import imetrics "github.com/otapflow/otapflow/internal/infrastructure/metrics"

// chanState is the shared core jointly owned by the Sender and Receiver
// handles of one bounded channel.
// PRINCIPLES:
// - Bounded: buffer length never exceeds capacity
// - Closed is monotonic: once true it never reverts
// - FIFO fairness: parked producers complete in strict arrival order
type chanState[T any] struct {
	mu          sync.Mutex
	buffer      []T
	capacity    int
	closed      bool
	senderCount int
	hasReceiver bool
	recvReady   chan struct{}    // capacity 1; coalesced "readable or closed" signal
	sendWaiters []*sendWaiter[T] // producers parked on a full buffer, arrival order
}

// sendWaiter parks one producer until its value is handed into the buffer or
// the channel closes.
type sendWaiter[T any] struct {
	value    T
	resolved bool       // guarded by chanState.mu
	done     chan error // buffered(1); nil = delivered, ErrChannelClosed = closed
}

// Sender is a producer handle. Handles may be cloned; the channel closes once
// every handle has been closed or the receiver is gone.
type Sender[T any] struct {
	state  *chanState[T]
	closed bool // this handle was closed; guarded by state.mu
}

// Receiver is the single consumer handle of a bounded channel.
type Receiver[T any] struct {
	state  *chanState[T]
	closed bool // guarded by state.mu
}

// Stats is a point-in-time snapshot of channel occupancy.
type Stats struct {
	Length   int
	Capacity int
	Closed   bool
}

// NewBounded creates a bounded channel and returns its initial producer and
// consumer handles. Capacity must be positive.
func NewBounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	if capacity <= 0 {
		panic("channel: bounded channel capacity must be positive")
	}
	st := &chanState[T]{
		buffer:      make([]T, 0, capacity),
		capacity:    capacity,
		senderCount: 1,
		hasReceiver: true,
		recvReady:   make(chan struct{}, 1),
	}
	return &Sender[T]{state: st}, &Receiver[T]{state: st}
}

// TrySend enqueues value without suspending. It fails with ErrChannelFull
// when the buffer is at capacity and ErrChannelClosed when the channel can no
// longer deliver; in both cases the value remains with the caller.
func (s *Sender[T]) TrySend(value T) error {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.closed {
		return ErrChannelClosed
	}
	return st.trySendLocked(value)
}

// Send enqueues value, suspending the caller while the buffer is full. Parked
// senders complete in strict arrival order: a freed slot is handed directly to
// the longest-waiting sender before any other producer can claim it. The
// channel itself never cancels a suspended send; only ctx can.
func (s *Sender[T]) Send(ctx context.Context, value T) error {
	st := s.state
	st.mu.Lock()
	if s.closed {
		st.mu.Unlock()
		return ErrChannelClosed
	}
	err := st.trySendLocked(value)
	if err != ErrChannelFull {
		st.mu.Unlock()
		return err
	}
	w := &sendWaiter[T]{value: value, done: make(chan error, 1)}
	st.sendWaiters = append(st.sendWaiters, w)
	st.mu.Unlock()

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		st.mu.Lock()
		if w.resolved {
			// The slot was handed over (or the channel closed) before the
			// cancellation was observed; honor that outcome.
			st.mu.Unlock()
			return <-w.done
		}
		st.removeWaiterLocked(w)
		st.mu.Unlock()
		return ctx.Err()
	}
}

// Clone returns a new producer handle backed by the same channel.
func (s *Sender[T]) Clone() *Sender[T] {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	st.senderCount++
	return &Sender[T]{state: st}
}

// Close releases this producer handle. When the last handle is released the
// channel closes and the consumer, once the buffer drains, observes
// ErrChannelClosed. Closing a handle twice is a no-op.
func (s *Sender[T]) Close() {
	st := s.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	st.senderCount--
	if st.senderCount == 0 && !st.closed {
		st.closeLocked()
	}
}

// TryRecv pops the oldest buffered value without suspending. ErrChannelEmpty
// is transient; ErrChannelClosed means no value will ever arrive again.
func (r *Receiver[T]) TryRecv() (T, error) {
	var zero T
	st := r.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if r.closed {
		return zero, ErrChannelClosed
	}
	if len(st.buffer) == 0 {
		if st.closed {
			return zero, ErrChannelClosed
		}
		return zero, ErrChannelEmpty
	}
	value := st.buffer[0]
	st.buffer[0] = zero
	st.buffer = st.buffer[1:]
	// Hand the freed slot to the longest-waiting parked sender, keeping
	// completion in strict arrival order regardless of scheduling.
	if len(st.sendWaiters) > 0 {
		w := st.sendWaiters[0]
		st.sendWaiters = st.sendWaiters[1:]
		st.buffer = append(st.buffer, w.value)
		w.resolved = true
		w.done <- nil
		st.notifyRecvLocked()
	}
	imetrics.ChannelReceived("bounded", 1)
	return value, nil
}

// Recv pops the oldest value, suspending while the buffer is empty. The
// channel itself never cancels a suspended receive; only ctx can.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	for {
		value, err := r.TryRecv()
		if err != ErrChannelEmpty {
			return value, err
		}
		select {
		case <-r.state.recvReady:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close drops the consumer side. The channel closes immediately: buffered
// values are discarded and every parked sender resolves to ErrChannelClosed
// rather than hanging. Closing twice is a no-op.
func (r *Receiver[T]) Close() {
	st := r.state
	st.mu.Lock()
	defer st.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	st.hasReceiver = false
	st.buffer = nil
	if !st.closed {
		st.closeLocked()
	}
}

// Stats reports current occupancy. Intended for diagnostics and tests.
func (r *Receiver[T]) Stats() Stats {
	st := r.state
	st.mu.Lock()
	defer st.mu.Unlock()
	return Stats{Length: len(st.buffer), Capacity: st.capacity, Closed: st.closed}
}

// Cap returns the fixed channel capacity.
func (r *Receiver[T]) Cap() int { return r.state.capacity }

// ready exposes the coalesced readability signal so MessageChannel can race
// the control and data sides. Tokens may be stale; callers must retry TryRecv.
func (r *Receiver[T]) ready() <-chan struct{} { return r.state.recvReady }

func (st *chanState[T]) trySendLocked(value T) error {
	if st.closed || !st.hasReceiver {
		return ErrChannelClosed
	}
	if len(st.buffer) == st.capacity {
		return ErrChannelFull
	}
	st.buffer = append(st.buffer, value)
	st.notifyRecvLocked()
	imetrics.ChannelSent("bounded", 1)
	return nil
}

// closeLocked marks the channel closed and wakes everyone: parked senders
// resolve to ErrChannelClosed, a suspended receiver is nudged so it can
// observe the closure after draining the buffer.
func (st *chanState[T]) closeLocked() {
	st.closed = true
	for _, w := range st.sendWaiters {
		w.resolved = true
		w.done <- ErrChannelClosed
	}
	st.sendWaiters = nil
	st.notifyRecvLocked()
}

func (st *chanState[T]) notifyRecvLocked() {
	select {
	case st.recvReady <- struct{}{}:
	default:
	}
}

func (st *chanState[T]) removeWaiterLocked(w *sendWaiter[T]) {
	for i, q := range st.sendWaiters {
		if q == w {
			st.sendWaiters = append(st.sendWaiters[:i], st.sendWaiters[i+1:]...)
			return
		}
	}
}
