package prebuilt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
	"github.com/otapflow/otapflow/pkg/serialization"
)

// CountingExporter terminates a pipeline and counts what reached it. Useful
// as a sink in tests and load runs.
type CountingExporter struct {
	mu      sync.Mutex
	batches int
	records int
}

// NewCountingExporter creates an empty counting sink.
func NewCountingExporter() *CountingExporter {
	return &CountingExporter{}
}

// HandleControl reports totals on shutdown.
func (e *CountingExporter) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	if msg.Kind == channel.ControlShutdown {
		batches, records := e.Totals()
		eff.Info("exporter totals", "batches", batches, "records", records, "reason", msg.Reason)
	}
	return nil
}

// HandlePData counts the batch.
func (e *CountingExporter) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	e.mu.Lock()
	e.batches++
	e.records += data.Len()
	e.mu.Unlock()
	return nil
}

// Totals returns the batches and records seen so far.
func (e *CountingExporter) Totals() (batches, records int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.batches, e.records
}

// FileExporter appends codec-framed batch snapshots to a file. Each batch
// becomes one length-prefixed frame produced by the configured serializer.
type FileExporter struct {
	Path       string
	serializer *serialization.Serializer
	file       *os.File
	written    int
}

// NewFileExporter creates a file exporter. A nil serializer defaults to
// plain msgpack.
func NewFileExporter(path string, s *serialization.Serializer) *FileExporter {
	if s == nil {
		s = serialization.NewSerializer(serialization.Config{})
	}
	return &FileExporter{Path: path, serializer: s}
}

// Init opens the target file for appending.
func (e *FileExporter) Init(ctx context.Context, eff node.EffectHandler[*pdata.Batch]) error {
	f, err := os.OpenFile(e.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	e.file = f
	return nil
}

// HandleControl syncs and closes the file on shutdown.
func (e *FileExporter) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	if msg.Kind != channel.ControlShutdown {
		return nil
	}
	if e.file == nil {
		return nil
	}
	eff.Info("closing snapshot file", "path", e.Path, "frames", e.written)
	if err := e.file.Sync(); err != nil {
		e.file.Close()
		return err
	}
	return e.file.Close()
}

// HandlePData writes the batch as one frame.
func (e *FileExporter) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	payload, err := e.serializer.Serialize(data)
	if err != nil {
		return fmt.Errorf("serialize batch: %w", err)
	}
	if err := serialization.WriteFrame(e.file, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	e.written++
	return nil
}

// ReadSnapshots reads every framed batch back from a snapshot file, using a
// serializer configured like the one that wrote it.
func ReadSnapshots(path string, s *serialization.Serializer) ([]*pdata.Batch, error) {
	if s == nil {
		s = serialization.NewSerializer(serialization.Config{})
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var batches []*pdata.Batch
	for {
		payload, err := serialization.ReadFrame(f)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return batches, err
		}
		var b pdata.Batch
		if err := s.Deserialize(payload, &b); err != nil {
			return batches, err
		}
		batches = append(batches, &b)
	}
	return batches, nil
}
