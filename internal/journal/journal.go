package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer consumes forwarded push updates and batch-writes them to the
// push_updates table. Entries are dropped, never blocked on, when the input
// buffer is full; the session's event loop must never stall on the journal.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	db    *pgxpool.Pool
	input chan Entry

	batchMu     sync.Mutex
	batch       []Entry
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dropped int64
	written int64
}

// New creates a journal writer backed by db.
func New(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Writer{
		cfg:    cfg,
		logger: logger,
		db:     db,
		input:  make(chan Entry, cfg.BufferSize),
		batch:  make([]Entry, 0, cfg.BatchSize),
	}
}

// Start begins consuming entries and flushing batches.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the pending batch and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	w.flush()
	w.logger.Info("journal writer stopped", "written", w.written, "dropped", w.dropped)
	return nil
}

// Record enqueues an entry without blocking. Full buffer drops the entry.
func (w *Writer) Record(e Entry) {
	select {
	case w.input <- e:
	default:
		w.batchMu.Lock()
		w.dropped++
		w.batchMu.Unlock()
	}
}

// consumeLoop moves entries from the input channel into the batch.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case e := <-w.input:
			if w.append(e) {
				w.flush()
			}
		}
	}
}

// flushLoop flushes partial batches on the ticker interval.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

// append adds an entry to the batch and reports whether the batch is full.
func (w *Writer) append(e Entry) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	w.batch = append(w.batch, e)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the pending batch in one round trip.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]Entry, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	rows := make([][]any, len(batch))
	for i, e := range batch {
		rows[i] = []any{e.Channel, []byte(e.Payload), e.ReceivedAt}
	}

	n, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{"push_updates"},
		[]string{"channel", "payload", "received_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		w.logger.Error("journal flush failed", "entries", len(batch), "error", err)
		return
	}

	w.batchMu.Lock()
	w.written += n
	w.batchMu.Unlock()

	w.logger.Debug("journal flushed", "entries", n)
}
