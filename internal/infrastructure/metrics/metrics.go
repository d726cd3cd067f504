package metrics

import (
	"expvar"
)

// Channel metrics (counters) using expvar maps keyed by channel kind.
var (
	channelSent     = expvar.NewMap("otapflow_channel_sent_total")
	channelReceived = expvar.NewMap("otapflow_channel_received_total")
	channelDropped  = expvar.NewMap("otapflow_channel_dropped_total")
)

// Node / pipeline metrics.
var (
	nodeFailures   = new(expvar.Int)
	nodesRunning   = new(expvar.Int)
	pipelineRuns   = new(expvar.Int)
	ticksEmitted   = new(expvar.Int)
	batchesFlushed = new(expvar.Int)
)

func init() {
	expvar.Publish("otapflow_node_failures_total", nodeFailures)
	expvar.Publish("otapflow_nodes_running", nodesRunning)
	expvar.Publish("otapflow_pipeline_runs_total", pipelineRuns)
	expvar.Publish("otapflow_ticks_emitted_total", ticksEmitted)
	expvar.Publish("otapflow_batches_flushed_total", batchesFlushed)
}

// Channel helpers
func ChannelSent(kind string, n int64)     { channelSent.Add(kind, n) }
func ChannelReceived(kind string, n int64) { channelReceived.Add(kind, n) }
func ChannelDropped(kind string, n int64)  { channelDropped.Add(kind, n) }

// Node / pipeline helpers
func IncNodeFailures()        { nodeFailures.Add(1) }
func AddNodesRunning(n int64) { nodesRunning.Add(n) }
func IncPipelineRuns()        { pipelineRuns.Add(1) }
func IncTicksEmitted()        { ticksEmitted.Add(1) }
func IncBatchesFlushed()      { batchesFlushed.Add(1) }
