package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vyrodovalexey/avpdp/internal/observability"
)

// Sink persists audit records.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write persists a single record.
	Write(ctx context.Context, record *Record) error

	// Close releases sink resources.
	Close() error
}

// WriterSink writes audit records as JSON lines to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
	closer io.Closer
	logger observability.Logger
}

// NewWriterSink creates a sink writing to the given writer.
func NewWriterSink(writer io.Writer, logger observability.Logger) *WriterSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &WriterSink{
		writer: writer,
		logger: logger.Named("audit.writer"),
	}
}

// NewFileSink creates a sink appending to the given output. The output
// "stdout" and "stderr" map to the process streams; anything else is
// treated as a file path.
func NewFileSink(output string, logger observability.Logger) (*WriterSink, error) {
	switch output {
	case "", "stdout":
		return NewWriterSink(os.Stdout, logger), nil
	case "stderr":
		return NewWriterSink(os.Stderr, logger), nil
	default:
		// Path comes from trusted configuration.
		//nolint:gosec // G304
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		sink := NewWriterSink(file, logger)
		sink.closer = file
		return sink, nil
	}
}

// Name identifies the sink.
func (s *WriterSink) Name() string { return "writer" }

// Write writes the record as a JSON line.
func (s *WriterSink) Write(_ context.Context, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (s *WriterSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// Ensure implementations satisfy the interface.
var _ Sink = (*WriterSink)(nil)
