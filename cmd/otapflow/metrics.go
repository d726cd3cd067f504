package main

import (
	"expvar"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// promMetricsHandler renders expvar-published metrics in Prometheus text
// exposition format. Known otapflow metrics get proper TYPE/HELP metadata;
// other numeric expvar vars fall back to untyped gauges.
func promMetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	type meta struct {
		typ, help string
		isMap     bool
		label     string
	}
	metas := map[string]meta{
		"otapflow_channel_sent_total":     {typ: "counter", help: "Channel messages sent", isMap: true, label: "kind"},
		"otapflow_channel_received_total": {typ: "counter", help: "Channel messages received", isMap: true, label: "kind"},
		"otapflow_channel_dropped_total":  {typ: "counter", help: "Channel messages dropped", isMap: true, label: "kind"},
		"otapflow_node_failures_total":    {typ: "counter", help: "Node handler failures", isMap: false},
		"otapflow_nodes_running":          {typ: "gauge", help: "Nodes currently running", isMap: false},
		"otapflow_pipeline_runs_total":    {typ: "counter", help: "Pipeline runs started", isMap: false},
		"otapflow_ticks_emitted_total":    {typ: "counter", help: "Timer ticks delivered to receivers", isMap: false},
		"otapflow_batches_flushed_total":  {typ: "counter", help: "Batches flushed by batch nodes", isMap: false},
	}

	varNames := make([]string, 0, 64)
	expvar.Do(func(kv expvar.KeyValue) {
		varNames = append(varNames, kv.Key)
	})
	sort.Strings(varNames)

	for _, name := range varNames {
		v := expvar.Get(name)
		m, known := metas[name]
		if !known {
			if iv, ok := v.(*expvar.Int); ok {
				_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
				_, _ = fmt.Fprintf(w, "%s %s\n", name, iv.String())
			}
			continue
		}
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, sanitizeHelp(m.help))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, m.typ)
		if m.isMap {
			mp, ok := v.(*expvar.Map)
			if !ok {
				continue
			}
			sub := make([]expvar.KeyValue, 0, 8)
			mp.Do(func(kv expvar.KeyValue) { sub = append(sub, kv) })
			sort.Slice(sub, func(i, j int) bool { return sub[i].Key < sub[j].Key })
			for _, kv := range sub {
				_, _ = fmt.Fprintf(w, "%s{%s=\"%s\"} %s\n", name, m.label, escapeLabel(kv.Key), kv.Value.String())
			}
		} else {
			_, _ = fmt.Fprintf(w, "%s %s\n", name, v.String())
		}
	}
}

func sanitizeHelp(s string) string {
	return strings.ReplaceAll(s, "\n", " ")
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
