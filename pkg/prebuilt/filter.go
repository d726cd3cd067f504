package prebuilt

import (
	"context"
	"fmt"
	"reflect"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
)

// AttributeFilter drops records carrying a configured attribute value and
// forwards the rest. An empty key disables filtering.
type AttributeFilter struct {
	Key     string
	Value   interface{}
	dropped int
}

// NewAttributeFilter creates a filter dropping records where attrs[key] == value.
func NewAttributeFilter(key string, value interface{}) *AttributeFilter {
	return &AttributeFilter{Key: key, Value: value}
}

// HandleControl accepts filter reconfiguration ({"key": ..., "value": ...}).
func (f *AttributeFilter) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	switch msg.Kind {
	case channel.ControlConfig:
		key, ok := msg.Config["key"]
		if !ok {
			return nil
		}
		ks, ok := key.(string)
		if !ok {
			return fmt.Errorf("filter key must be a string, got %v", key)
		}
		f.Key = ks
		f.Value = msg.Config["value"]
	case channel.ControlShutdown:
		eff.Info("attribute filter stopping", "dropped", f.dropped, "reason", msg.Reason)
	}
	return nil
}

// HandlePData forwards the batch minus matching records. Batches filtered to
// nothing are swallowed.
func (f *AttributeFilter) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	if f.Key == "" {
		return eff.SendMessage(ctx, data)
	}
	kept := make([]pdata.Record, 0, len(data.Records))
	for _, rec := range data.Records {
		// DeepEqual rather than ==: configured values decoded from YAML can
		// be maps or slices, where interface comparison panics.
		if rec.Attrs != nil && reflect.DeepEqual(rec.Attrs[f.Key], f.Value) {
			f.dropped++
			continue
		}
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		return nil
	}
	return eff.SendMessage(ctx, &pdata.Batch{Signal: data.Signal, Records: kept})
}
