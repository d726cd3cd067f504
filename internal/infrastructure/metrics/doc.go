// Package metrics exposes expvar-published counters and gauges used by the
// otapflow engine (channels, nodes, and pipelines). It intentionally avoids
// external dependencies and is consumed through /debug/vars.
package metrics
