package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
)

// tickSource emits one value per TimerTick.
type tickSource struct {
	mu   sync.Mutex
	seq  int
	fail bool
}

func (s *tickSource) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[string]) error {
	if msg.Kind != channel.ControlTimerTick {
		return nil
	}
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()
	if err := eff.SendMessage(ctx, fmt.Sprintf("item-%d", n)); err != nil {
		// A closed downstream during teardown is not a source failure.
		if errors.Is(err, channel.ErrChannelClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *tickSource) HandlePData(ctx context.Context, data string, eff node.EffectHandler[string]) error {
	return nil
}

// upper is a passthrough processor that tags everything it forwards.
type upper struct {
	prefix string
	errOn  string
}

func (u *upper) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[string]) error {
	if msg.Kind == channel.ControlConfig {
		p, ok := msg.Config["prefix"].(string)
		if !ok {
			return errors.New("prefix must be a string")
		}
		u.prefix = p
	}
	return nil
}

func (u *upper) HandlePData(ctx context.Context, data string, eff node.EffectHandler[string]) error {
	if u.errOn != "" && data == u.errOn {
		return errors.New("poisoned payload")
	}
	return eff.SendMessage(ctx, u.prefix+data)
}

// sink collects everything that reaches the end of the pipeline.
type sink struct {
	mu    sync.Mutex
	items []string
}

func (s *sink) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[string]) error {
	return nil
}

func (s *sink) HandlePData(ctx context.Context, data string, eff node.EffectHandler[string]) error {
	s.mu.Lock()
	s.items = append(s.items, data)
	s.mu.Unlock()
	return nil
}

func (s *sink) collected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.items...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPipelineEndToEnd(t *testing.T) {
	src := &tickSource{}
	proc := &upper{prefix: "p:"}
	out := &sink{}

	p, err := NewBuilder[string](Config{
		Name:         "e2e",
		TickInterval: 5 * time.Millisecond,
	}).
		Add("source", src).
		Add("proc", proc).
		Add("sink", out).
		Build()
	require.NoError(t, err)
	require.NotEmpty(t, p.RunID())

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background()) }()

	waitFor(t, func() bool { return len(out.collected()) >= 5 }, "pipeline produced no output")

	require.NoError(t, p.Shutdown(context.Background(), "test finished"))
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after shutdown")
	}

	items := out.collected()
	require.NotEmpty(t, items)
	// Single producer: delivery order matches send order end to end.
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("p:item-%d", i+1), item)
	}
}

func TestPipelineConfigUpdate(t *testing.T) {
	src := &tickSource{}
	proc := &upper{}
	out := &sink{}

	p, err := NewBuilder[string](Config{Name: "cfg", TickInterval: 5 * time.Millisecond}).
		Add("source", src).
		Add("proc", proc).
		Add("sink", out).
		Build()
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background()) }()

	require.NoError(t, p.ConfigUpdate(context.Background(), "proc", map[string]interface{}{"prefix": "cfg:"}))
	waitFor(t, func() bool {
		for _, it := range out.collected() {
			if len(it) > 4 && it[:4] == "cfg:" {
				return true
			}
		}
		return false
	}, "config update never took effect")

	require.NoError(t, p.Shutdown(context.Background(), "done"))
	require.NoError(t, <-runDone)
}

func TestPipelineNodeFailurePropagates(t *testing.T) {
	src := &tickSource{}
	proc := &upper{errOn: "item-3"}
	out := &sink{}

	p, err := NewBuilder[string](Config{Name: "fail", TickInterval: 2 * time.Millisecond}).
		Add("source", src).
		Add("proc", proc).
		Add("sink", out).
		Build()
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background()) }()

	// The processor dies on item-3; its channels close, which eventually
	// fails the neighbors' receives. Stop the survivors and inspect.
	waitFor(t, func() bool {
		select {
		case err := <-runDone:
			runDone <- err
			return true
		default:
			return false
		}
	}, "pipeline did not stop after node failure")

	err = <-runDone
	require.Error(t, err)
	assert.Contains(t, err.Error(), `node "proc"`)
	assert.Contains(t, err.Error(), "poisoned payload")
}

func TestPipelineKillDiscardsPayload(t *testing.T) {
	src := &tickSource{}
	out := &sink{}

	p, err := NewBuilder[string](Config{Name: "kill", TickInterval: 2 * time.Millisecond}).
		Add("source", src).
		Add("sink", out).
		Build()
	require.NoError(t, err)

	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(context.Background()) }()

	waitFor(t, func() bool { return len(out.collected()) >= 1 }, "no output before kill")
	require.NoError(t, p.Kill(context.Background(), "hard stop"))
	select {
	case err := <-runDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not stop after kill")
	}
}

func TestBuilderRejectsBadDefinitions(t *testing.T) {
	t.Run("TooFewNodes", func(t *testing.T) {
		_, err := NewBuilder[string](Config{Name: "short"}).
			Add("only", &sink{}).
			Build()
		assert.Error(t, err)
	})

	t.Run("DuplicateIDs", func(t *testing.T) {
		_, err := NewBuilder[string](Config{Name: "dup"}).
			Add("same", &tickSource{}).
			Add("same", &sink{}).
			Build()
		assert.Error(t, err)
	})

	t.Run("InvalidName", func(t *testing.T) {
		_, err := NewBuilder[string](Config{Name: "Bad Name"}).
			Add("a", &tickSource{}).
			Add("b", &sink{}).
			Build()
		assert.Error(t, err)
	})
}
