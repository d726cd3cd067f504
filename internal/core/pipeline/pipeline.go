// Package pipeline assembles nodes into a linear dataflow and manages their
// lifecycle
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/infrastructure/logging"
	"github.com/otapflow/otapflow/pkg/validation"
)

import imetrics "github.com/otapflow/otapflow/internal/infrastructure/metrics"

// Config holds pipeline assembly settings.
type Config struct {
	Name             string        `yaml:"name" validate:"required,node_id"`
	ChannelCapacity  int           `yaml:"channel_capacity" validate:"gte=1,lte=65536"`
	ControlCapacity  int           `yaml:"control_capacity" validate:"gte=1,lte=1024"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	ShutdownDeadline time.Duration `yaml:"shutdown_deadline"`
}

// DefaultConfig returns the settings used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Name:             "pipeline",
		ChannelCapacity:  64,
		ControlCapacity:  16,
		TickInterval:     time.Second,
		ShutdownDeadline: 5 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = def.ChannelCapacity
	}
	if c.ControlCapacity <= 0 {
		c.ControlCapacity = def.ControlCapacity
	}
	if c.ShutdownDeadline <= 0 {
		c.ShutdownDeadline = def.ShutdownDeadline
	}
}

// nodeSpec is one registered node awaiting wiring.
type nodeSpec[T any] struct {
	id     string
	n      node.Node[T]
	shared bool
	opts   []node.EffectsOption[T]
}

// Builder wires registered nodes into a linear pipeline: the first node is
// the receiver, the last the exporter, everything between a processor.
type Builder[T any] struct {
	cfg   Config
	specs []nodeSpec[T]
}

// NewBuilder starts a pipeline definition.
func NewBuilder[T any](cfg Config) *Builder[T] {
	cfg.applyDefaults()
	return &Builder[T]{cfg: cfg}
}

// Add registers a node for Local (single-goroutine) execution. Nodes run in
// registration order along the dataflow.
func (b *Builder[T]) Add(id string, n node.Node[T], opts ...node.EffectsOption[T]) *Builder[T] {
	b.specs = append(b.specs, nodeSpec[T]{id: id, n: n, opts: opts})
	return b
}

// AddShared registers a node for Shared execution, for nodes that use their
// effect handler from auxiliary goroutines (socket servers and the like).
func (b *Builder[T]) AddShared(id string, n node.Node[T], opts ...node.EffectsOption[T]) *Builder[T] {
	b.specs = append(b.specs, nodeSpec[T]{id: id, n: n, shared: true, opts: opts})
	return b
}

// Build validates the configuration and wires channels between nodes.
func (b *Builder[T]) Build() (*Pipeline[T], error) {
	if err := validation.Struct(b.cfg); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if len(b.specs) < 2 {
		return nil, errors.New("pipeline needs at least a receiver and an exporter")
	}
	seen := make(map[string]bool, len(b.specs))
	for _, spec := range b.specs {
		if spec.id == "" {
			return nil, errors.New("pipeline node id must not be empty")
		}
		if seen[spec.id] {
			return nil, fmt.Errorf("duplicate pipeline node id %q", spec.id)
		}
		seen[spec.id] = true
	}

	p := &Pipeline[T]{
		cfg:    b.cfg,
		runID:  uuid.NewString(),
		logger: logging.With(logging.Default(), "pipeline", b.cfg.Name),
	}

	// Wire back to front so each node can hold the sender feeding its
	// downstream neighbor.
	var downstream *channel.Sender[T]
	members := make([]*member[T], len(b.specs))
	for i := len(b.specs) - 1; i >= 0; i-- {
		spec := b.specs[i]

		var inTx *channel.Sender[T]
		var inRx *channel.Receiver[T]
		if i == 0 {
			// The receiver has no upstream; its payload side starts closed
			// so the message channel serves control traffic only.
			inTx, inRx = channel.NewBounded[T](1)
			inTx.Close()
		} else {
			inTx, inRx = channel.NewBounded[T](b.cfg.ChannelCapacity)
		}

		ctlTx, ctlRx := channel.NewControl(b.cfg.ControlCapacity)
		mc := channel.NewMessageChannel(ctlRx, inRx)

		opts := append([]node.EffectsOption[T]{}, spec.opts...)
		eff := node.NewEffects(spec.id, downstream, opts...)

		var rt node.Runtime[T]
		if spec.shared {
			rt = node.NewSharedRuntime(spec.n, mc, eff)
		} else {
			rt = node.NewLocalRuntime(spec.n, mc, eff)
		}

		members[i] = &member[T]{
			id:      spec.id,
			runtime: rt,
			ctl:     ctlTx,
			out:     downstream,
			kind:    kindFor(i, len(b.specs)),
		}
		downstream = inTx
	}
	p.members = members
	return p, nil
}

func kindFor(i, n int) node.Kind {
	switch {
	case i == 0:
		return node.KindReceiver
	case i == n-1:
		return node.KindExporter
	default:
		return node.KindProcessor
	}
}

// member is one wired node under pipeline management.
type member[T any] struct {
	id      string
	kind    node.Kind
	runtime node.Runtime[T]
	ctl     *channel.Sender[channel.ControlMsg]
	out     *channel.Sender[T] // feeds the downstream neighbor; nil for the exporter
}

// Pipeline is a wired, runnable dataflow.
type Pipeline[T any] struct {
	cfg     Config
	runID   string
	members []*member[T]
	logger  logging.Logger

	stopTick chan struct{}
	stopOnce sync.Once
}

// RunID returns the unique identifier of this pipeline instance.
func (p *Pipeline[T]) RunID() string { return p.runID }

// Run starts every node and blocks until all of them have finished. It
// returns the combined failures, or nil when every node exited through the
// shutdown protocol.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	imetrics.IncPipelineRuns()
	p.logger.Info("pipeline starting", "run_id", p.runID, "nodes", len(p.members))

	p.stopTick = make(chan struct{})
	if p.cfg.TickInterval > 0 {
		go p.tickLoop()
	}

	// On the first node failure, stop the survivors through the regular
	// shutdown protocol so Run terminates instead of leaving neighbors
	// blocked on a dead peer.
	var failOnce sync.Once
	onFailure := func() {
		failOnce.Do(func() {
			go func() {
				sctx, cancel := context.WithTimeout(context.Background(), p.cfg.ShutdownDeadline+time.Second)
				defer cancel()
				_ = p.Shutdown(sctx, "peer node failure")
			}()
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(p.members))
	for i, m := range p.members {
		wg.Add(1)
		go func(i int, m *member[T]) {
			defer wg.Done()
			err := m.runtime.Run(ctx)
			if err != nil {
				p.logger.Warn("node exited with error", "node", m.id, "error", err)
				onFailure()
			}
			// Closing the outbound sender lets the downstream drain to
			// completion instead of waiting for its deadline.
			if m.out != nil {
				m.out.Close()
			}
			m.ctl.Close()
			errs[i] = err
		}(i, m)
	}
	wg.Wait()
	p.stopTicks()

	p.logger.Info("pipeline stopped", "run_id", p.runID)
	return errors.Join(errs...)
}

// Shutdown requests a graceful stop: every node receives a Shutdown carrying
// the configured drain deadline, upstream first so payload settles
// downstream before the exporters stop.
func (p *Pipeline[T]) Shutdown(ctx context.Context, reason string) error {
	msg := channel.Shutdown(p.cfg.ShutdownDeadline, reason)
	var errs []error
	for _, m := range p.members {
		if err := m.ctl.Send(ctx, msg); err != nil && err != channel.ErrChannelClosed {
			errs = append(errs, fmt.Errorf("shutdown %q: %w", m.id, err))
		}
	}
	return errors.Join(errs...)
}

// Kill stops the pipeline immediately: zero-deadline shutdown, buffered
// payload is discarded.
func (p *Pipeline[T]) Kill(ctx context.Context, reason string) error {
	msg := channel.Shutdown(0, reason)
	var errs []error
	for _, m := range p.members {
		if err := m.ctl.Send(ctx, msg); err != nil && err != channel.ErrChannelClosed {
			errs = append(errs, fmt.Errorf("kill %q: %w", m.id, err))
		}
	}
	return errors.Join(errs...)
}

// ConfigUpdate delivers a configuration payload to one node.
func (p *Pipeline[T]) ConfigUpdate(ctx context.Context, nodeID string, cfg map[string]interface{}) error {
	m := p.memberByID(nodeID)
	if m == nil {
		return fmt.Errorf("no pipeline node %q", nodeID)
	}
	return m.ctl.Send(ctx, channel.ConfigUpdate(cfg))
}

// Ack delivers an acknowledgement to one node.
func (p *Pipeline[T]) Ack(ctx context.Context, nodeID string, id uint64) error {
	m := p.memberByID(nodeID)
	if m == nil {
		return fmt.Errorf("no pipeline node %q", nodeID)
	}
	return m.ctl.Send(ctx, channel.Ack(id))
}

// Nack delivers a negative acknowledgement to one node.
func (p *Pipeline[T]) Nack(ctx context.Context, nodeID string, id uint64, reason string) error {
	m := p.memberByID(nodeID)
	if m == nil {
		return fmt.Errorf("no pipeline node %q", nodeID)
	}
	return m.ctl.Send(ctx, channel.Nack(id, reason))
}

func (p *Pipeline[T]) memberByID(id string) *member[T] {
	for _, m := range p.members {
		if m.id == id {
			return m
		}
	}
	return nil
}

// tickLoop fans TimerTicks out to every node. A node too busy to take a tick
// misses it and catches the next one; ticks are never queued behind a full
// control channel.
func (p *Pipeline[T]) tickLoop() {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopTick:
			return
		case <-ticker.C:
			imetrics.IncTicksEmitted()
			for _, m := range p.members {
				if err := m.ctl.TrySend(channel.TimerTick()); err != nil {
					if err == channel.ErrChannelFull {
						imetrics.ChannelDropped("control", 1)
					}
				}
			}
		}
	}
}

func (p *Pipeline[T]) stopTicks() {
	p.stopOnce.Do(func() { close(p.stopTick) })
}
