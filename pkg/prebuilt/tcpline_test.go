package prebuilt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
	"github.com/otapflow/otapflow/internal/infrastructure/logging"
)

func TestTCPLineReceiver(t *testing.T) {
	recv := NewTCPLineReceiver("127.0.0.1:0")

	downTx, downRx := channel.NewBounded[*pdata.Batch](64)
	eff := node.NewEffects("tcp-recv", downTx, node.WithLogger[*pdata.Batch](logging.Nop()))

	ctlTx, ctlRx := channel.NewControl(8)
	dataTx, dataRx := channel.NewBounded[*pdata.Batch](1)
	dataTx.Close()
	mc := channel.NewMessageChannel(ctlRx, dataRx)

	runDone := make(chan error, 1)
	go func() {
		runDone <- node.NewSharedRuntime[*pdata.Batch](recv, mc, eff).Run(context.Background())
	}()

	// Wait for the listener to come up, then feed it lines.
	var addr net.Addr
	deadline := time.Now().Add(5 * time.Second)
	for addr == nil && time.Now().Before(deadline) {
		addr = recv.Addr()
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, addr, "listener never bound")

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("first line\nsecond line\n\nthird line\n"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// Empty lines are skipped; each remaining line is one batch.
	var bodies []string
	for len(bodies) < 3 {
		b, err := downRx.Recv(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, b.Len())
		assert.Equal(t, pdata.SignalLogs, b.Signal)
		assert.Contains(t, b.Records[0].Attrs, "net.peer")
		bodies = append(bodies, b.Records[0].Body)
	}
	assert.Equal(t, []string{"first line", "second line", "third line"}, bodies)

	require.NoError(t, ctlTx.TrySend(channel.Shutdown(0, "test done")))
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop")
	}
}
