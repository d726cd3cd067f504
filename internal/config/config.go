// Package config loads and validates pipeline configuration files
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/otapflow/otapflow/internal/core/pipeline"
	"github.com/otapflow/otapflow/pkg/validation"
)

// Config is the root of a pipeline configuration file.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Nodes    []NodeConfig   `yaml:"nodes" validate:"min=2,dive"`
}

// PipelineConfig mirrors pipeline.Config with file-friendly millisecond
// durations. Zero values fall back to engine defaults.
type PipelineConfig struct {
	Name               string `yaml:"name" validate:"omitempty,node_id"`
	ChannelCapacity    int    `yaml:"channel_capacity" validate:"gte=0,lte=65536"`
	ControlCapacity    int    `yaml:"control_capacity" validate:"gte=0,lte=1024"`
	TickIntervalMS     int    `yaml:"tick_interval_ms" validate:"gte=0"`
	ShutdownDeadlineMS int    `yaml:"shutdown_deadline_ms" validate:"gte=0"`
}

// NodeConfig declares one pipeline node. Nodes run in file order along the
// dataflow: the first is the receiver, the last the exporter.
type NodeConfig struct {
	ID     string                 `yaml:"id" validate:"required,node_id"`
	Type   string                 `yaml:"type" validate:"required,oneof=load_generator tcp_lines batcher attribute_filter counting_exporter file_exporter postgres_exporter"`
	Shared bool                   `yaml:"shared"`
	Params map[string]interface{} `yaml:"params"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validation.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ToPipeline converts file settings to engine settings.
func (c PipelineConfig) ToPipeline() pipeline.Config {
	out := pipeline.DefaultConfig()
	if c.Name != "" {
		out.Name = c.Name
	}
	if c.ChannelCapacity > 0 {
		out.ChannelCapacity = c.ChannelCapacity
	}
	if c.ControlCapacity > 0 {
		out.ControlCapacity = c.ControlCapacity
	}
	out.TickInterval = time.Duration(c.TickIntervalMS) * time.Millisecond
	if c.ShutdownDeadlineMS > 0 {
		out.ShutdownDeadline = time.Duration(c.ShutdownDeadlineMS) * time.Millisecond
	}
	return out
}

// StringParam reads an optional string parameter from a node's params map.
func (n NodeConfig) StringParam(key, fallback string) (string, error) {
	v, ok := n.Params[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("node %q: param %q must be a string, got %v", n.ID, key, v)
	}
	return s, nil
}

// IntParam reads an optional integer parameter from a node's params map.
func (n NodeConfig) IntParam(key string, fallback int) (int, error) {
	v, ok := n.Params[key]
	if !ok {
		return fallback, nil
	}
	switch i := v.(type) {
	case int:
		return i, nil
	case int64:
		return int(i), nil
	case float64:
		return int(i), nil
	}
	return 0, fmt.Errorf("node %q: param %q must be an integer, got %v", n.ID, key, v)
}
