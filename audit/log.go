// Package audit provides the append-only trail of gate decisions.
//
// The log is fire-and-forget with respect to gate control flow: a full
// buffer or a failed sink write never changes an allow/deny outcome.
// Failures surface on an operational error channel and in the logs. The
// trail exists for compliance review and debugging; it is never read
// back to make entitlement or quota decisions.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/gate/decision"
)

// Sink is the durable write target for decisions. store.Store satisfies
// it; tests inject fakes.
type Sink interface {
	AppendDecisions(ctx context.Context, decisions []*decision.Decision) error
}

// SinkFunc is an adapter to use a plain function as a Sink.
type SinkFunc func(ctx context.Context, decisions []*decision.Decision) error

// AppendDecisions implements Sink.
func (f SinkFunc) AppendDecisions(ctx context.Context, decisions []*decision.Decision) error {
	return f(ctx, decisions)
}

// Log buffers decisions and appends them to the sink in batches from a
// background worker.
type Log struct {
	sink   Sink
	logger *slog.Logger

	buffer   chan *decision.Decision
	errs     chan error
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	onRecord func(d *decision.Decision)
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// WithBufferSize sets the decision buffer capacity.
func WithBufferSize(n int) Option {
	return func(l *Log) { l.buffer = make(chan *decision.Decision, n) }
}

// WithRecordHook registers a callback invoked for every decision
// accepted into the buffer. Dropped decisions do not fire it.
func WithRecordHook(fn func(d *decision.Decision)) Option {
	return func(l *Log) { l.onRecord = fn }
}

// WithBatchConfig configures batch size and flush interval.
func WithBatchConfig(batchSize int, flushInterval time.Duration) Option {
	return func(l *Log) {
		l.batchSize = batchSize
		l.flushInterval = flushInterval
	}
}

// New creates a Log writing to the given sink.
func New(sink Sink, opts ...Option) *Log {
	l := &Log{
		sink:          sink,
		logger:        slog.Default(),
		buffer:        make(chan *decision.Decision, 4096),
		errs:          make(chan error, 64),
		stopChan:      make(chan struct{}),
		batchSize:     100,
		flushInterval: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Start launches the background flush worker.
func (l *Log) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.flushWorker(ctx)
}

// Stop drains the buffer, flushes the final batch, and stops the
// worker. Safe to call more than once.
func (l *Log) Stop() {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}

// Errors exposes the operational error channel. Consumers that fall
// behind do not block the log; surplus errors are dropped after being
// logged.
func (l *Log) Errors() <-chan error {
	return l.errs
}

// Record enqueues a decision. It never blocks and never fails the
// caller: when the buffer is full the decision is dropped and the loss
// reported on the error channel.
func (l *Log) Record(_ context.Context, d *decision.Decision) {
	select {
	case l.buffer <- d:
		if l.onRecord != nil {
			l.onRecord(d)
		}
	default:
		l.report(fmt.Errorf("audit: buffer full, dropped decision %s", d.ID))
	}
}

func (l *Log) flushWorker(ctx context.Context) {
	defer l.wg.Done()

	batch := make([]*decision.Decision, 0, l.batchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			// Drain whatever is still buffered, then final flush.
			for {
				select {
				case d := <-l.buffer:
					batch = append(batch, d)
					if len(batch) >= l.batchSize {
						l.flush(ctx, batch)
						batch = make([]*decision.Decision, 0, l.batchSize)
					}
				default:
					if len(batch) > 0 {
						l.flush(ctx, batch)
					}
					return
				}
			}

		case d := <-l.buffer:
			batch = append(batch, d)
			if len(batch) >= l.batchSize {
				l.flush(ctx, batch)
				batch = make([]*decision.Decision, 0, l.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(ctx, batch)
				batch = make([]*decision.Decision, 0, l.batchSize)
			}
		}
	}
}

func (l *Log) flush(ctx context.Context, batch []*decision.Decision) {
	if err := l.sink.AppendDecisions(ctx, batch); err != nil {
		l.report(fmt.Errorf("audit: append %d decisions: %w", len(batch), err))
		return
	}

	l.logger.Debug("flushed audit batch", "batch_size", len(batch))
}

// report logs an operational failure and offers it on the error channel
// without ever blocking the gate path.
func (l *Log) report(err error) {
	l.logger.Warn("audit log failure", "error", err)
	select {
	case l.errs <- err:
	default:
	}
}
