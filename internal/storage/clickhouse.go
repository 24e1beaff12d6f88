package storage

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	mirrorQueueSize    = 10_000
	mirrorFlushEvery   = 500 * time.Millisecond
	mirrorBatchSize    = 500
	mirrorDrainTimeout = 2 * time.Second
	mirrorSendTimeout  = 5 * time.Second
)

const createAuditEventsTable = `
	CREATE TABLE IF NOT EXISTS audit_events (
		event_id    String,
		cycle_id    String,
		audit_id    Int64,
		timestamp   DateTime64(3, 'UTC'),
		agent_name  LowCardinality(String),
		message     String,
		priority    LowCardinality(String),
		metric_id   Int64,
		approval_id Int64
	) ENGINE = MergeTree
	ORDER BY (timestamp, agent_name)
`

const insertAuditEvents = `
	INSERT INTO audit_events (
		event_id, cycle_id, audit_id, timestamp, agent_name,
		message, priority, metric_id, approval_id
	)
`

// ClickHouseWriter mirrors committed agent_log rows into ClickHouse for the
// dashboard analytics. Write only enqueues; a single goroutine batches the
// queue into inserts. When the queue is full the event is dropped and
// counted. Postgres remains authoritative, so a lost event only leaves a
// gap in analytics.
type ClickHouseWriter struct {
	conn    driver.Conn
	queue   chan *AuditEvent
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	dropped atomic.Uint64
	logger  *zap.Logger
}

// OpenClickHouse parses the DSN, opens a connection and pings it. Native
// connections to port 9440 get TLS even when the DSN does not ask for it.
func OpenClickHouse(dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil && opts.Protocol == clickhouse.Native && usesSecurePort(opts.Addr) {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func usesSecurePort(addrs []string) bool {
	for _, a := range addrs {
		if strings.HasSuffix(a, ":9440") {
			return true
		}
	}
	return false
}

// NewClickHouseWriter connects, creates the audit_events table if needed and
// starts the batching goroutine.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	conn, err := OpenClickHouse(dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Exec(ctx, createAuditEventsTable); err != nil {
		_ = conn.Close()
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		queue:   make(chan *AuditEvent, mirrorQueueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go w.run()
	return w, nil
}

// Write enqueues an event without blocking.
func (w *ClickHouseWriter) Write(event *AuditEvent) {
	select {
	case w.queue <- event:
	default:
		w.dropped.Add(1)
		w.logger.Warn("audit mirror queue full, dropping event",
			zap.String("event_id", event.EventID),
			zap.Int64("audit_id", event.AuditID),
		)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (w *ClickHouseWriter) Dropped() uint64 {
	return w.dropped.Load()
}

// Close flushes what is queued (bounded by mirrorDrainTimeout) and closes the
// connection. Further calls are no-ops.
func (w *ClickHouseWriter) Close() {
	w.once.Do(func() {
		close(w.stop)
		<-w.stopped
		if err := w.conn.Close(); err != nil {
			w.logger.Warn("clickhouse close failed", zap.Error(err))
		}
	})
}

func (w *ClickHouseWriter) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(mirrorFlushEvery)
	defer ticker.Stop()

	pending := make([]*AuditEvent, 0, mirrorBatchSize)
	send := func() {
		if len(pending) > 0 {
			w.send(pending)
			pending = pending[:0]
		}
	}

	for {
		select {
		case e := <-w.queue:
			pending = append(pending, e)
			if len(pending) >= mirrorBatchSize {
				send()
			}
		case <-ticker.C:
			send()
		case <-w.stop:
			deadline := time.After(mirrorDrainTimeout)
			for {
				select {
				case e := <-w.queue:
					pending = append(pending, e)
					if len(pending) >= mirrorBatchSize {
						send()
					}
					continue
				case <-deadline:
				default:
				}
				break
			}
			send()
			return
		}
	}
}

// send inserts one batch. Failures are logged; the events are not retried.
func (w *ClickHouseWriter) send(events []*AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorSendTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertAuditEvents)
	if err != nil {
		w.logger.Error("audit mirror prepare failed", zap.Int("events", len(events)), zap.Error(err))
		return
	}

	var rejected int
	for _, e := range events {
		if err := batch.Append(
			e.EventID, e.CycleID, e.AuditID, e.Timestamp, e.AgentName,
			e.Message, e.Priority, e.MetricID, e.ApprovalID,
		); err != nil {
			rejected++
			w.logger.Debug("audit mirror append failed", zap.String("event_id", e.EventID), zap.Error(err))
		}
	}
	if rejected > 0 {
		w.logger.Warn("audit mirror skipped events", zap.Int("rejected", rejected))
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("audit mirror send failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

// LogWriter stands in for ClickHouse when no DSN is configured. Each event
// becomes one structured log line.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *AuditEvent) {
	w.logger.Info("audit_event",
		zap.String("event_id", event.EventID),
		zap.String("cycle_id", event.CycleID),
		zap.Int64("audit_id", event.AuditID),
		zap.String("agent", event.AgentName),
		zap.String("priority", event.Priority),
		zap.Int64("metric_id", event.MetricID),
		zap.Int64("approval_id", event.ApprovalID),
		zap.String("message", event.Message),
	)
}

func (w *LogWriter) Close() {}
