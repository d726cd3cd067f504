package prebuilt

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
)

// TCPLineReceiver ingests newline-delimited log lines from a TCP socket and
// emits one single-record batch per line. The listener is acquired through
// the effect handler so tests can substitute an in-memory provider.
//
// The accept loop pushes downstream from its own goroutines; register this
// node with the Shared runtime variant.
type TCPLineReceiver struct {
	Address string

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewTCPLineReceiver creates a receiver listening on address (host:port).
func NewTCPLineReceiver(address string) *TCPLineReceiver {
	return &TCPLineReceiver{Address: address}
}

// Init binds the listener and starts the accept loop.
func (r *TCPLineReceiver) Init(ctx context.Context, eff node.EffectHandler[*pdata.Batch]) error {
	ln, err := eff.Listen("tcp", r.Address)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.ln = ln
	r.mu.Unlock()
	eff.Info("listening", "address", ln.Addr().String())

	r.wg.Add(1)
	go r.acceptLoop(ctx, ln, eff)
	return nil
}

// Addr returns the bound listener address, or nil before Init.
func (r *TCPLineReceiver) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ln == nil {
		return nil
	}
	return r.ln.Addr()
}

// HandleControl closes the listener on shutdown and waits for connection
// goroutines to settle.
func (r *TCPLineReceiver) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	if msg.Kind != channel.ControlShutdown {
		return nil
	}
	r.mu.Lock()
	ln := r.ln
	r.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	r.wg.Wait()
	eff.Info("listener stopped", "reason", msg.Reason)
	return nil
}

// HandlePData is never called for a receiver.
func (r *TCPLineReceiver) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	return nil
}

func (r *TCPLineReceiver) acceptLoop(ctx context.Context, ln net.Listener, eff node.EffectHandler[*pdata.Batch]) {
	defer r.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}
		r.wg.Add(1)
		go r.serveConn(ctx, conn, eff)
	}
}

func (r *TCPLineReceiver) serveConn(ctx context.Context, conn net.Conn, eff node.EffectHandler[*pdata.Batch]) {
	defer r.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		batch := pdata.NewBatch(pdata.SignalLogs, pdata.NewRecord(line, map[string]interface{}{
			"net.peer": remote,
		}))
		if err := eff.SendMessage(ctx, batch); err != nil {
			if errors.Is(err, channel.ErrChannelClosed) || errors.Is(err, context.Canceled) {
				return
			}
			eff.Warn("dropping line", "error", err)
		}
	}
}
