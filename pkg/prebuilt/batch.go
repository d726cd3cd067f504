package prebuilt

import (
	"context"
	"fmt"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
	"github.com/otapflow/otapflow/pkg/validation"
)

import imetrics "github.com/otapflow/otapflow/internal/infrastructure/metrics"

// BatchConfig controls the batching processor. It is also the shape of the
// Config control payload the node accepts at runtime.
type BatchConfig struct {
	// MaxRecords flushes the pending batch once it holds this many records.
	MaxRecords int `yaml:"max_records" validate:"gte=1,lte=100000"`
}

// Batcher coalesces small incoming batches and flushes either on size or on
// every timer tick, whichever happens first. The final flush happens on
// shutdown so a graceful drain loses nothing.
type Batcher struct {
	cfg     BatchConfig
	pending *pdata.Batch
}

// NewBatcher creates a batching processor; maxRecords defaults to 100.
func NewBatcher(maxRecords int) *Batcher {
	if maxRecords <= 0 {
		maxRecords = 100
	}
	return &Batcher{cfg: BatchConfig{MaxRecords: maxRecords}}
}

// HandleControl flushes on ticks, applies validated config updates, and
// performs the final flush on shutdown.
func (b *Batcher) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	switch msg.Kind {
	case channel.ControlTimerTick:
		return b.flush(ctx, eff)
	case channel.ControlConfig:
		next := b.cfg
		if v, ok := msg.Config["max_records"]; ok {
			n, ok := toInt(v)
			if !ok {
				return fmt.Errorf("max_records must be an integer, got %v", v)
			}
			next.MaxRecords = n
		}
		if err := validation.Struct(next); err != nil {
			return fmt.Errorf("batch config rejected: %w", err)
		}
		b.cfg = next
	case channel.ControlShutdown:
		return b.flush(ctx, eff)
	}
	return nil
}

// HandlePData accumulates records and flushes on the size threshold.
func (b *Batcher) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	if data.Len() == 0 {
		return nil
	}
	// A pending batch only ever holds one signal; a signal change flushes
	// it rather than relabeling its records.
	if b.pending != nil && b.pending.Signal != data.Signal {
		if err := b.flush(ctx, eff); err != nil {
			return err
		}
	}
	if b.pending == nil {
		b.pending = pdata.NewBatch(data.Signal)
	}
	b.pending.Append(data.Records...)
	if b.pending.Len() >= b.cfg.MaxRecords {
		return b.flush(ctx, eff)
	}
	return nil
}

func (b *Batcher) flush(ctx context.Context, eff node.EffectHandler[*pdata.Batch]) error {
	if b.pending.Len() == 0 {
		return nil
	}
	out := b.pending
	b.pending = nil
	imetrics.IncBatchesFlushed()
	return eff.SendMessage(ctx, out)
}
