package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memorySink collects written records in memory.
type memorySink struct {
	mu      sync.Mutex
	records []*Record
	err     error
}

func (s *memorySink) Name() string { return "memory" }

func (s *memorySink) Write(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// blockingSink blocks writes until released. Used to fill the queue
// deterministically.
type blockingSink struct {
	memorySink
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Write(ctx context.Context, record *Record) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.memorySink.Write(ctx, record)
}

func testMetrics() *Metrics {
	return NewMetricsWithRegisterer("pdp", prometheus.NewRegistry())
}

func testRecord(id string) *Record {
	record := NewRecord(time.Now())
	record.ID = id
	record.Effect = "deny"
	return record
}

func TestDispatcherDeliversToAllSinks(t *testing.T) {
	t.Parallel()

	first := &memorySink{}
	second := &memorySink{}
	d := NewDispatcher([]Sink{first, second}, WithDispatcherMetrics(testMetrics()))

	d.Emit(testRecord("r-1"))
	d.Emit(testRecord("r-2"))

	assert.Eventually(t, func() bool {
		return first.count() == 2 && second.count() == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Close())
}

func TestDispatcherFallbackOnSinkFailure(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	fallback := NewWriterSink(&buf, nil)
	failing := &memorySink{err: errors.New("sink down")}

	d := NewDispatcher([]Sink{failing},
		WithDispatcherMetrics(testMetrics()),
		WithFallback(fallback),
	)

	d.Emit(testRecord("r-fallback"))
	require.NoError(t, d.Close())

	assert.Contains(t, buf.String(), "r-fallback")
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	sink := &blockingSink{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	d := NewDispatcher([]Sink{sink},
		WithDispatcherMetrics(testMetrics()),
		WithQueueSize(1),
	)

	// The worker picks this up and blocks inside the sink.
	d.Emit(testRecord("r-1"))
	<-sink.started

	// Fills the single queue slot.
	d.Emit(testRecord("r-2"))
	// Queue full: dropped, not blocked. The emit returning at all is the
	// fire-and-forget guarantee.
	done := make(chan struct{})
	go func() {
		d.Emit(testRecord("r-3"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	close(sink.release)
	require.NoError(t, d.Close())

	assert.Equal(t, 2, sink.count())
}

func TestDispatcherCloseFlushesQueue(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	d := NewDispatcher([]Sink{sink}, WithDispatcherMetrics(testMetrics()))

	for i := 0; i < 10; i++ {
		d.Emit(testRecord(fmt.Sprintf("r-%d", i)))
	}
	require.NoError(t, d.Close())

	assert.Equal(t, 10, sink.count())
}

func TestDispatcherIgnoresNilRecords(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	d := NewDispatcher([]Sink{sink}, WithDispatcherMetrics(testMetrics()))

	d.Emit(nil)
	require.NoError(t, d.Close())
	assert.Zero(t, sink.count())
}

func TestNopEmitter(t *testing.T) {
	t.Parallel()

	emitter := NopEmitter()
	emitter.Emit(testRecord("r-1"))
	emitter.Emit(nil)
}

func TestWriterSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriterSink(&buf, nil)

	require.NoError(t, sink.Write(context.Background(), testRecord("r-1")))
	require.NoError(t, sink.Write(context.Background(), testRecord("r-2")))
	require.NoError(t, sink.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "r-1")
	assert.Contains(t, lines[1], "r-2")
}

func TestNewFileSink(t *testing.T) {
	t.Parallel()

	t.Run("stdout and stderr", func(t *testing.T) {
		t.Parallel()

		for _, output := range []string{"", "stdout", "stderr"} {
			sink, err := NewFileSink(output, nil)
			require.NoError(t, err)
			require.NoError(t, sink.Close())
		}
	})

	t.Run("file path", func(t *testing.T) {
		t.Parallel()

		path := t.TempDir() + "/audit.log"
		sink, err := NewFileSink(path, nil)
		require.NoError(t, err)

		require.NoError(t, sink.Write(context.Background(), testRecord("r-file")))
		require.NoError(t, sink.Close())

		reopened, err := NewFileSink(path, nil)
		require.NoError(t, err)
		require.NoError(t, reopened.Close())
	})
}
