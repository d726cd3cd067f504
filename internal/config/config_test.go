package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
pipeline:
  name: demo
  channel_capacity: 32
  control_capacity: 8
  tick_interval_ms: 50
  shutdown_deadline_ms: 2000
nodes:
  - id: gen
    type: load_generator
    params:
      signal: logs
      batch_size: 4
  - id: batch
    type: batcher
    params:
      max_records: 16
  - id: out
    type: counting_exporter
`

func TestParse(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		cfg, err := Parse([]byte(sampleConfig))
		require.NoError(t, err)
		assert.Equal(t, "demo", cfg.Pipeline.Name)
		require.Len(t, cfg.Nodes, 3)
		assert.Equal(t, "load_generator", cfg.Nodes[0].Type)

		pc := cfg.Pipeline.ToPipeline()
		assert.Equal(t, 32, pc.ChannelCapacity)
		assert.Equal(t, 8, pc.ControlCapacity)
		assert.Equal(t, 50*time.Millisecond, pc.TickInterval)
		assert.Equal(t, 2*time.Second, pc.ShutdownDeadline)
	})

	t.Run("DefaultsApply", func(t *testing.T) {
		cfg, err := Parse([]byte(`
nodes:
  - id: gen
    type: load_generator
  - id: out
    type: counting_exporter
`))
		require.NoError(t, err)
		pc := cfg.Pipeline.ToPipeline()
		assert.Equal(t, "pipeline", pc.Name)
		assert.Greater(t, pc.ChannelCapacity, 0)
		assert.Greater(t, pc.ShutdownDeadline, time.Duration(0))
	})

	t.Run("RejectsUnknownNodeType", func(t *testing.T) {
		_, err := Parse([]byte(`
nodes:
  - id: gen
    type: teleporter
  - id: out
    type: counting_exporter
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "type")
	})

	t.Run("RejectsBadNodeID", func(t *testing.T) {
		_, err := Parse([]byte(`
nodes:
  - id: "Bad ID"
    type: load_generator
  - id: out
    type: counting_exporter
`))
		require.Error(t, err)
	})

	t.Run("RejectsSingleNode", func(t *testing.T) {
		_, err := Parse([]byte(`
nodes:
  - id: only
    type: counting_exporter
`))
		require.Error(t, err)
	})

	t.Run("RejectsMalformedYAML", func(t *testing.T) {
		_, err := Parse([]byte("nodes: [unclosed"))
		require.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Pipeline.Name)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestNodeParams(t *testing.T) {
	n := NodeConfig{
		ID:   "x",
		Type: "batcher",
		Params: map[string]interface{}{
			"max_records": 10,
			"label":       "hot",
			"rate":        2.0,
		},
	}

	v, err := n.IntParam("max_records", 1)
	require.NoError(t, err)
	assert.Equal(t, 10, v)

	v, err = n.IntParam("rate", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	v, err = n.IntParam("absent", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = n.IntParam("label", 1)
	require.Error(t, err)

	s, err := n.StringParam("label", "")
	require.NoError(t, err)
	assert.Equal(t, "hot", s)

	_, err = n.StringParam("max_records", "")
	require.Error(t, err)
}
