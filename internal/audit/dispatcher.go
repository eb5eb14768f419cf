package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/vyrodovalexey/avpdp/internal/observability"
)

// Emitter accepts audit records for asynchronous persistence.
type Emitter interface {
	// Emit hands a record to the emitter. It never blocks: when the
	// internal queue is full the record is counted as dropped.
	Emit(record *Record)
}

// Default dispatcher configuration.
const (
	// DefaultQueueSize is the default dispatcher queue capacity.
	DefaultQueueSize = 1024

	// sinkWriteTimeout bounds a single sink write.
	sinkWriteTimeout = 5 * time.Second
)

// Dispatcher fans audit records out to the configured sinks from a
// single background goroutine. Records are accepted through a bounded
// queue so that emission is fire-and-forget relative to the decision
// path. Failed writes are routed to the fallback writer.
type Dispatcher struct {
	sinks    []Sink
	queue    chan *Record
	fallback *WriterSink
	logger   observability.Logger
	metrics  *Metrics

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// DispatcherOption is a functional option for the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger observability.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger.Named("audit")
	}
}

// WithDispatcherMetrics sets the metrics.
func WithDispatcherMetrics(metrics *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithQueueSize sets the queue capacity.
func WithQueueSize(size int) DispatcherOption {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan *Record, size)
		}
	}
}

// WithFallback sets the fallback sink used when a primary sink fails.
func WithFallback(fallback *WriterSink) DispatcherOption {
	return func(d *Dispatcher) {
		d.fallback = fallback
	}
}

// NewDispatcher creates a dispatcher fanning out to the given sinks and
// starts its background worker.
func NewDispatcher(sinks []Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		sinks:  sinks,
		queue:  make(chan *Record, DefaultQueueSize),
		logger: observability.NopLogger(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.metrics == nil {
		d.metrics = NewMetrics("pdp")
	}
	if d.fallback == nil {
		d.fallback = NewWriterSink(os.Stderr, d.logger)
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Emit hands a record to the dispatcher without blocking. Records are
// dropped (and counted) when the queue is full.
func (d *Dispatcher) Emit(record *Record) {
	if record == nil {
		return
	}
	select {
	case d.queue <- record:
		d.metrics.RecordEmitted(record.Effect)
	default:
		d.metrics.RecordDropped()
		d.logger.Warn("audit queue full, record dropped",
			observability.String("record_id", record.ID),
		)
	}
}

// run drains the queue until Close is called, then flushes what remains.
func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case record := <-d.queue:
			d.dispatch(record)
		case <-d.stopCh:
			for {
				select {
				case record := <-d.queue:
					d.dispatch(record)
				default:
					return
				}
			}
		}
	}
}

// dispatch writes a record to every sink, falling back on failure.
func (d *Dispatcher) dispatch(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	failed := false
	for _, sink := range d.sinks {
		start := time.Now()
		if err := sink.Write(ctx, record); err != nil {
			failed = true
			d.metrics.RecordSinkFailure(sink.Name())
			d.logger.Error("audit sink write failed",
				observability.String("sink", sink.Name()),
				observability.String("record_id", record.ID),
				observability.Error(err),
			)
			continue
		}
		d.metrics.RecordSinkWrite(sink.Name(), time.Since(start))
	}

	if failed || len(d.sinks) == 0 {
		d.writeFallback(ctx, record)
	}
}

// writeFallback writes the record to the best-effort fallback sink.
func (d *Dispatcher) writeFallback(ctx context.Context, record *Record) {
	if d.fallback == nil {
		return
	}
	if err := d.fallback.Write(ctx, record); err != nil {
		// Last resort: the record is already immutable and the decision
		// has been returned; only log.
		data, _ := json.Marshal(record)
		d.logger.Error("audit fallback write failed",
			observability.String("record", string(data)),
			observability.Error(err),
		)
	}
}

// Close stops the dispatcher, flushes queued records, and closes sinks.
func (d *Dispatcher) Close() error {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	d.wg.Wait()

	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.fallback != nil {
		if err := d.fallback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// nopEmitter discards all records.
type nopEmitter struct{}

// NopEmitter returns an emitter that discards all records.
func NopEmitter() Emitter {
	return &nopEmitter{}
}

func (e *nopEmitter) Emit(_ *Record) {}

// Ensure implementations satisfy the interface.
var (
	_ Emitter = (*Dispatcher)(nil)
	_ Emitter = (*nopEmitter)(nil)
)
