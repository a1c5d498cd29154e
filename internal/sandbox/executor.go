// Package sandbox executes validated queries against a read-only snapshot of
// the inventory database under strict time and row budgets. The connection
// itself has no write capability, so even a query that slipped past
// validation cannot mutate anything.
package sandbox

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sqlquest/sqlquest-api/internal/grading"
)

var (
	execDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sqlquest",
		Subsystem: "sandbox",
		Name:      "execution_duration_seconds",
		Help:      "Duration of sandboxed query executions",
		Buckets:   prometheus.DefBuckets,
	})

	execTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sqlquest",
		Subsystem: "sandbox",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions that hit the time budget",
	})

	execFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqlquest",
		Subsystem: "sandbox",
		Name:      "execution_failures_total",
		Help:      "Number of executions that resulted in an error",
	}, []string{"kind"})
)

// ErrorKind classifies execution failures.
type ErrorKind string

const (
	KindTimeout           ErrorKind = "timeout"
	KindResultTooLarge    ErrorKind = "result_too_large"
	KindRuntimeSQL        ErrorKind = "runtime_sql_error"
	KindConnectionFailure ErrorKind = "connection_failure"
	KindQueueFull         ErrorKind = "queue_full"
	KindCanceled          ErrorKind = "canceled"
)

// ExecError is a typed execution failure. Only connection failures are
// retryable, and the executor already performs its single bounded retry, so
// callers treat every ExecError as terminal.
type ExecError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Budget bounds a single execution.
type Budget struct {
	Timeout time.Duration
	MaxRows int
}

// Config groups executor configuration values.
type Config struct {
	// Path locates the inventory SQLite file.
	Path string
	// Workers caps simultaneous executions system-wide. Up to QueueSize
	// excess requests wait for a slot, each for at most MaxQueueWait;
	// anything beyond that is turned away immediately.
	Workers      int
	QueueSize    int
	MaxQueueWait time.Duration
	Default      Budget
	Logger       zerolog.Logger
}

// Executor runs queries on a read-only inventory connection through a bounded
// worker pool.
type Executor struct {
	db     *sql.DB
	slots  chan struct{}
	queue  chan struct{}
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// Open connects to the inventory database in read-only mode and prepares the
// worker pool. The query_only pragma is belt-and-braces on top of mode=ro.
func Open(cfg Config) (*Executor, error) {
	if cfg.Path == "" {
		return nil, errors.New("inventory database path is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.MaxQueueWait <= 0 {
		cfg.MaxQueueWait = 2 * time.Second
	}
	if cfg.Default.Timeout <= 0 {
		cfg.Default.Timeout = 3 * time.Second
	}
	if cfg.Default.MaxRows <= 0 {
		cfg.Default.MaxRows = 500
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_query_only=1&_busy_timeout=5000", cfg.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open inventory database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping inventory database: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Executor{
		db:    db,
		slots: make(chan struct{}, cfg.Workers),
		// queue admits the running executions plus QueueSize waiters
		queue:  make(chan struct{}, cfg.Workers+cfg.QueueSize),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/sqlquest/sqlquest-api/internal/sandbox"),
		logger: logger.With().Str("component", "sandbox_executor").Logger(),
	}, nil
}

// Execute runs one validated statement within the budget. The timeout is
// enforced by context cancellation, which interrupts the SQLite driver
// mid-statement; a timed-out query releases its worker slot deterministically.
// A transient connection failure is retried exactly once.
func (e *Executor) Execute(parent context.Context, query string, budget Budget) (grading.RowSet, *ExecError) {
	if budget.Timeout <= 0 {
		budget.Timeout = e.cfg.Default.Timeout
	}
	if budget.MaxRows <= 0 {
		budget.MaxRows = e.cfg.Default.MaxRows
	}

	ctx, span := e.tracer.Start(parent, "sandbox.execute", trace.WithAttributes(
		attribute.Int("sandbox.max_rows", budget.MaxRows),
	))
	defer span.End()

	select {
	case e.queue <- struct{}{}:
	default:
		execFailures.WithLabelValues(string(KindQueueFull)).Inc()
		span.SetStatus(codes.Error, "executor queue full")
		return grading.RowSet{}, &ExecError{Kind: KindQueueFull, Message: "executor wait queue is full"}
	}
	defer func() { <-e.queue }()

	select {
	case e.slots <- struct{}{}:
	case <-ctx.Done():
		return grading.RowSet{}, &ExecError{Kind: KindCanceled, Message: "request canceled while queued"}
	case <-time.After(e.cfg.MaxQueueWait):
		execFailures.WithLabelValues(string(KindQueueFull)).Inc()
		span.SetStatus(codes.Error, "executor queue full")
		return grading.RowSet{}, &ExecError{Kind: KindQueueFull, Message: "all executor slots busy"}
	}
	defer func() { <-e.slots }()

	start := time.Now()
	rows, execErr := e.runOnce(ctx, query, budget)
	if execErr != nil && execErr.Kind == KindConnectionFailure {
		e.logger.Warn().Str("reason", execErr.Message).Msg("retrying after connection failure")
		rows, execErr = e.runOnce(ctx, query, budget)
	}
	execDuration.Observe(time.Since(start).Seconds())

	if execErr != nil {
		switch execErr.Kind {
		case KindTimeout:
			execTimeouts.Inc()
		case KindCanceled:
			// session gone, nothing to count
		default:
			execFailures.WithLabelValues(string(execErr.Kind)).Inc()
		}
		span.SetStatus(codes.Error, execErr.Error())
		return grading.RowSet{}, execErr
	}

	span.SetAttributes(attribute.Int("sandbox.rows", len(rows.Rows)))
	return rows, nil
}

func (e *Executor) runOnce(parent context.Context, query string, budget Budget) (grading.RowSet, *ExecError) {
	ctx, cancel := context.WithTimeout(parent, budget.Timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return grading.RowSet{}, e.classify(ctx, parent, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return grading.RowSet{}, e.classify(ctx, parent, err)
	}

	result := grading.RowSet{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= budget.MaxRows {
			// abort without leaking the rows already read
			return grading.RowSet{}, &ExecError{
				Kind:    KindResultTooLarge,
				Message: fmt.Sprintf("result exceeds the %d row cap", budget.MaxRows),
			}
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return grading.RowSet{}, e.classify(ctx, parent, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return grading.RowSet{}, e.classify(ctx, parent, err)
	}
	return result, nil
}

// classify folds a driver error into the executor taxonomy. The execution
// context distinguishes budget timeouts from upstream cancellation.
func (e *Executor) classify(execCtx, parent context.Context, err error) *ExecError {
	switch {
	case parent.Err() != nil:
		return &ExecError{Kind: KindCanceled, Message: "request canceled"}
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		return &ExecError{Kind: KindTimeout, Message: "query exceeded its time budget"}
	case errors.Is(err, driver.ErrBadConn):
		return &ExecError{Kind: KindConnectionFailure, Message: err.Error()}
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr:
			return &ExecError{Kind: KindConnectionFailure, Message: sqliteErr.Error()}
		case sqlite3.ErrInterrupt:
			return &ExecError{Kind: KindTimeout, Message: "query exceeded its time budget"}
		}
		return &ExecError{Kind: KindRuntimeSQL, Message: sqliteErr.Error()}
	}

	if strings.Contains(err.Error(), "interrupted") {
		return &ExecError{Kind: KindTimeout, Message: "query exceeded its time budget"}
	}
	return &ExecError{Kind: KindRuntimeSQL, Message: err.Error()}
}

// Ping verifies the read-only connection is still usable.
func (e *Executor) Ping() error {
	return e.db.Ping()
}

// Close releases the read-only connection pool.
func (e *Executor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}
