package channel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitParked polls until at least n producers are parked on the channel.
func waitParked[T any](t *testing.T, s *Sender[T], n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.state.mu.Lock()
		parked := len(s.state.sendWaiters)
		s.state.mu.Unlock()
		if parked >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d parked senders", n)
}

func TestBoundedChannelBasics(t *testing.T) {
	t.Run("InvalidCapacityPanics", func(t *testing.T) {
		assert.Panics(t, func() { NewBounded[int](0) })
		assert.Panics(t, func() { NewBounded[int](-1) })
	})

	t.Run("SendReceiveCycle", func(t *testing.T) {
		tx, rx := NewBounded[string](4)
		require.NoError(t, tx.TrySend("a"))
		require.NoError(t, tx.TrySend("b"))

		v, err := rx.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, "a", v)
		v, err = rx.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, "b", v)
	})

	t.Run("EmptyIsTransient", func(t *testing.T) {
		tx, rx := NewBounded[int](1)
		_, err := rx.TryRecv()
		assert.ErrorIs(t, err, ErrChannelEmpty)

		require.NoError(t, tx.TrySend(7))
		v, err := rx.TryRecv()
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("CapacityBound", func(t *testing.T) {
		tx, rx := NewBounded[int](3)
		for i := 0; i < 3; i++ {
			require.NoError(t, tx.TrySend(i))
		}
		assert.ErrorIs(t, tx.TrySend(99), ErrChannelFull)
		assert.Equal(t, 3, rx.Stats().Length)
		assert.Equal(t, 3, rx.Cap())

		// The rejected value never entered the buffer.
		for i := 0; i < 3; i++ {
			v, err := rx.TryRecv()
			require.NoError(t, err)
			assert.Equal(t, i, v)
		}
	})

	t.Run("ReceiverCloseFailsSends", func(t *testing.T) {
		tx, rx := NewBounded[int](2)
		rx.Close()
		assert.ErrorIs(t, tx.TrySend(1), ErrChannelClosed)
		assert.ErrorIs(t, tx.Send(context.Background(), 1), ErrChannelClosed)
	})
}

func TestFIFOFairness(t *testing.T) {
	tx, rx := NewBounded[int](1)
	require.NoError(t, tx.TrySend(1))

	var wg sync.WaitGroup
	sendAsync := func(s *Sender[int], v int) {
		defer wg.Done()
		require.NoError(t, s.Send(context.Background(), v))
	}

	tx2 := tx.Clone()
	wg.Add(2)
	go sendAsync(tx2, 2)
	waitParked(t, tx, 1)
	go sendAsync(tx, 3)
	waitParked(t, tx, 2)

	// Freeing one slot resolves the longest-waiting sender only: after the
	// pop, 2 occupies the buffer and 3 is still parked.
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	tx.state.mu.Lock()
	require.Len(t, tx.state.sendWaiters, 1)
	assert.Equal(t, 3, tx.state.sendWaiters[0].value)
	tx.state.mu.Unlock()

	v, err = rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	wg.Wait()
}

func TestAutoCloseOnSenderExhaustion(t *testing.T) {
	tx, rx := NewBounded[string](2)
	tx2 := tx.Clone()
	require.NoError(t, tx.TrySend("last"))
	tx.Close()
	tx2.Close()

	// Buffered value drains first, then the closure is observed.
	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "last", v)
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestReceiverDropWakesParkedSenders(t *testing.T) {
	tx, rx := NewBounded[int](1)
	require.NoError(t, tx.TrySend(1))

	result := make(chan error, 1)
	go func() {
		result <- tx.Send(context.Background(), 2)
	}()
	waitParked(t, tx, 1)

	rx.Close()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrChannelClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("parked sender was not woken by receiver drop")
	}
}

func TestSendContextCancellation(t *testing.T) {
	tx, rx := NewBounded[int](1)
	require.NoError(t, tx.TrySend(1))

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- tx.Send(ctx, 2)
	}()
	waitParked(t, tx, 1)

	cancel()
	select {
	case err := <-result:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled sender did not return")
	}

	// The cancelled waiter was removed; the buffered value is untouched.
	tx.state.mu.Lock()
	assert.Empty(t, tx.state.sendWaiters)
	tx.state.mu.Unlock()
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestRecvSuspendsUntilSend(t *testing.T) {
	tx, rx := NewBounded[int](1)

	result := make(chan int, 1)
	go func() {
		v, err := rx.Recv(context.Background())
		require.NoError(t, err)
		result <- v
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tx.TrySend(42))
	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("suspended receiver was not woken")
	}
}

func TestCloneKeepsChannelOpen(t *testing.T) {
	tx, rx := NewBounded[int](1)
	tx2 := tx.Clone()
	tx.Close()
	tx.Close() // double close of one handle is a no-op

	require.NoError(t, tx2.TrySend(5))
	v, err := rx.TryRecv()
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	tx2.Close()
	_, err = rx.TryRecv()
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestClosedHandleCannotSend(t *testing.T) {
	tx, _ := NewBounded[int](1)
	tx2 := tx.Clone()
	tx2.Close()
	assert.ErrorIs(t, tx2.TrySend(1), ErrChannelClosed)
	// The surviving handle is unaffected.
	assert.NoError(t, tx.TrySend(1))
}

func TestSingleProducerOrdering(t *testing.T) {
	tx, rx := NewBounded[int](8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			require.NoError(t, tx.Send(context.Background(), i))
		}
		tx.Close()
	}()

	for i := 0; i < 100; i++ {
		v, err := rx.Recv(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
	<-done
}
