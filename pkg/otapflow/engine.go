package otapflow

import (
	"context"
	"fmt"

	"github.com/otapflow/otapflow/internal/config"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
	"github.com/otapflow/otapflow/internal/core/pipeline"
	"github.com/otapflow/otapflow/pkg/prebuilt"
	"github.com/otapflow/otapflow/pkg/serialization"
)

// Re-export payload types for convenience
type Batch = pdata.Batch
type Record = pdata.Record
type Signal = pdata.Signal

const (
	SignalLogs    = pdata.SignalLogs
	SignalMetrics = pdata.SignalMetrics
	SignalTraces  = pdata.SignalTraces
)

// Engine wraps a configured pipeline together with the node instances built
// for it, so callers can reach exporters after the run for their totals.
type Engine struct {
	pipeline *pipeline.Pipeline[*pdata.Batch]
	nodes    map[string]node.Node[*pdata.Batch]
}

// New builds an Engine from a validated configuration. Node order in the
// config is dataflow order: first node is the receiver, last the exporter.
func New(cfg *config.Config) (*Engine, error) {
	b := pipeline.NewBuilder[*pdata.Batch](cfg.Pipeline.ToPipeline())
	nodes := make(map[string]node.Node[*pdata.Batch], len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		n, shared, err := buildNode(nc)
		if err != nil {
			return nil, err
		}
		nodes[nc.ID] = n
		if shared || nc.Shared {
			b.AddShared(nc.ID, n)
		} else {
			b.Add(nc.ID, n)
		}
	}
	p, err := b.Build()
	if err != nil {
		return nil, err
	}
	return &Engine{pipeline: p, nodes: nodes}, nil
}

// Load reads a configuration file and builds an Engine from it.
func Load(path string) (*Engine, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// Run executes the pipeline until all nodes terminate. It returns the joined
// node errors, or nil when every node exits through the shutdown protocol.
func (e *Engine) Run(ctx context.Context) error {
	return e.pipeline.Run(ctx)
}

// Shutdown broadcasts a graceful shutdown with the pipeline's drain deadline.
func (e *Engine) Shutdown(ctx context.Context, reason string) error {
	return e.pipeline.Shutdown(ctx, reason)
}

// Kill broadcasts an immediate shutdown that discards buffered payload.
func (e *Engine) Kill(ctx context.Context, reason string) error {
	return e.pipeline.Kill(ctx, reason)
}

// ConfigUpdate delivers a runtime reconfiguration to one node.
func (e *Engine) ConfigUpdate(ctx context.Context, nodeID string, params map[string]interface{}) error {
	return e.pipeline.ConfigUpdate(ctx, nodeID, params)
}

// RunID identifies this pipeline instance in logs and diagnostics.
func (e *Engine) RunID() string { return e.pipeline.RunID() }

// Node returns the node instance registered under id, or nil.
func (e *Engine) Node(id string) node.Node[*pdata.Batch] { return e.nodes[id] }

func buildNode(nc config.NodeConfig) (node.Node[*pdata.Batch], bool, error) {
	switch nc.Type {
	case "load_generator":
		signal, err := nc.StringParam("signal", string(pdata.SignalLogs))
		if err != nil {
			return nil, false, err
		}
		size, err := nc.IntParam("batch_size", 10)
		if err != nil {
			return nil, false, err
		}
		return prebuilt.NewLoadGenerator(pdata.Signal(signal), size), false, nil

	case "tcp_lines":
		addr, err := nc.StringParam("address", "")
		if err != nil {
			return nil, false, err
		}
		if addr == "" {
			return nil, false, fmt.Errorf("node %q: tcp_lines requires an address param", nc.ID)
		}
		// The accept loop calls back into the effect handler from its own
		// goroutines, so this node always runs shared.
		return prebuilt.NewTCPLineReceiver(addr), true, nil

	case "batcher":
		max, err := nc.IntParam("max_records", 100)
		if err != nil {
			return nil, false, err
		}
		return prebuilt.NewBatcher(max), false, nil

	case "attribute_filter":
		key, err := nc.StringParam("key", "")
		if err != nil {
			return nil, false, err
		}
		if key == "" {
			return nil, false, fmt.Errorf("node %q: attribute_filter requires a key param", nc.ID)
		}
		return prebuilt.NewAttributeFilter(key, nc.Params["value"]), false, nil

	case "counting_exporter":
		return prebuilt.NewCountingExporter(), false, nil

	case "file_exporter":
		path, err := nc.StringParam("path", "")
		if err != nil {
			return nil, false, err
		}
		if path == "" {
			return nil, false, fmt.Errorf("node %q: file_exporter requires a path param", nc.ID)
		}
		s, err := serializerFromParams(nc)
		if err != nil {
			return nil, false, err
		}
		return prebuilt.NewFileExporter(path, s), false, nil

	case "postgres_exporter":
		dsn, err := nc.StringParam("dsn", "")
		if err != nil {
			return nil, false, err
		}
		if dsn == "" {
			return nil, false, fmt.Errorf("node %q: postgres_exporter requires a dsn param", nc.ID)
		}
		table, err := nc.StringParam("table", "")
		if err != nil {
			return nil, false, err
		}
		s, err := serializerFromParams(nc)
		if err != nil {
			return nil, false, err
		}
		pool, err := prebuilt.DialPostgres(context.Background(), dsn)
		if err != nil {
			return nil, false, fmt.Errorf("node %q: %w", nc.ID, err)
		}
		return prebuilt.NewPostgresExporter(pool, s, table), false, nil
	}
	return nil, false, fmt.Errorf("node %q: unknown type %q", nc.ID, nc.Type)
}

// serializerFromParams builds the snapshot serializer exporter nodes share,
// from optional codec and compression params.
func serializerFromParams(nc config.NodeConfig) (*serialization.Serializer, error) {
	codecName, err := nc.StringParam("codec", "msgpack")
	if err != nil {
		return nil, err
	}
	codec, err := serialization.CodecByName(codecName)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", nc.ID, err)
	}
	compression, err := nc.StringParam("compression", "none")
	if err != nil {
		return nil, err
	}
	return serialization.NewSerializer(serialization.Config{
		Codec:       codec,
		Compression: serialization.CompressionType(compression),
	}), nil
}
