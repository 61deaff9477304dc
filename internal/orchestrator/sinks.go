package orchestrator

import (
	"context"
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/swapflow/api/schemas"
	"github.com/xkilldash9x/swapflow/internal/fsutil"
)

// ResultSink receives every finished result.
type ResultSink interface {
	Publish(ctx context.Context, res schemas.AutomationResult) error
}

// SinkFunc adapts a plain function, e.g. history.Store.Record, to ResultSink.
type SinkFunc func(ctx context.Context, res schemas.AutomationResult) error

func (f SinkFunc) Publish(ctx context.Context, res schemas.AutomationResult) error {
	return f(ctx, res)
}

// WriterSink encodes results as indented JSON onto w.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Publish(_ context.Context, res schemas.AutomationResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}

// FileSink writes the latest result to a file, replacing it atomically. This is
// the OUTPUT record of a job process.
type FileSink struct {
	Path string
}

func (s FileSink) Publish(_ context.Context, res schemas.AutomationResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result file %s: %w", s.Path, err)
	}
	return nil
}
