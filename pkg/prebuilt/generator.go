package prebuilt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
)

// LoadGenerator is a receiver that emits synthetic batches on every timer
// tick. It is used for smoke tests and load experiments.
type LoadGenerator struct {
	Signal       pdata.Signal
	BatchSize    int
	emittedTicks int
}

// NewLoadGenerator creates a load generator; batchSize defaults to 10.
func NewLoadGenerator(signal pdata.Signal, batchSize int) *LoadGenerator {
	if batchSize <= 0 {
		batchSize = 10
	}
	if signal == "" {
		signal = pdata.SignalLogs
	}
	return &LoadGenerator{Signal: signal, BatchSize: batchSize}
}

// HandleControl emits one batch per tick and accepts batch_size updates.
func (g *LoadGenerator) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	switch msg.Kind {
	case channel.ControlTimerTick:
		g.emittedTicks++
		batch := pdata.NewBatch(g.Signal)
		for i := 0; i < g.BatchSize; i++ {
			batch.Append(pdata.NewRecord(
				fmt.Sprintf("synthetic %s record %d/%d", g.Signal, i, g.emittedTicks),
				map[string]interface{}{"gen.id": uuid.NewString(), "gen.tick": g.emittedTicks},
			))
		}
		if err := eff.SendMessage(ctx, batch); err != nil {
			if errors.Is(err, channel.ErrChannelClosed) {
				// Downstream is tearing down; the shutdown for this node is
				// on its way.
				return nil
			}
			return err
		}
	case channel.ControlConfig:
		size, ok := msg.Config["batch_size"]
		if !ok {
			return nil
		}
		n, ok := toInt(size)
		if !ok || n <= 0 {
			return fmt.Errorf("batch_size must be a positive integer, got %v", size)
		}
		g.BatchSize = n
	case channel.ControlShutdown:
		eff.Info("load generator stopping", "ticks", g.emittedTicks, "reason", msg.Reason)
	}
	return nil
}

// HandlePData is never called for a receiver; its payload side starts closed.
func (g *LoadGenerator) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	return nil
}

// toInt normalizes the numeric types a decoded config payload may carry.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
