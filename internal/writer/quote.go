package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/quotestream/internal/feed"
	"github.com/rickgao/quotestream/internal/model"
)

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns the default batching settings.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64 // Failed flushes
	Failed    int64 // Rows lost to failed flushes
	Flushes   int64
}

// BatchSender sends a pgx batch. *pgxpool.Pool implements it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const insertQuote = `
	INSERT INTO quotes (symbol, received_at, last_trade_at, price, change, change_percent, volume, day_high, day_low, market_state, quote_type, currency, exchange, error_text)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (symbol, received_at) DO NOTHING
`

// QuoteWriter consumes updates from a feed subscription and writes them to
// the quotes table.
type QuoteWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *feed.Subscription[model.Update]
	db    BatchSender

	batch   []quoteRow
	batchMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// quoteRow is one row of the quotes table.
type quoteRow struct {
	Symbol        string
	ReceivedAt    int64
	LastTradeAt   *int64
	Price         float64
	Change        *float64
	ChangePercent float64
	Volume        int64
	DayHigh       float64
	DayLow        float64
	MarketState   string
	QuoteType     string
	Currency      string
	Exchange      string
	ErrorText     *string
}

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(
	cfg WriterConfig,
	input *feed.Subscription[model.Update],
	db BatchSender,
	logger *slog.Logger,
) *QuoteWriter {
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuoteWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]quoteRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming updates and writing to the database.
func (w *QuoteWriter) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop(ctx)

	w.logger.Info("quote writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop waits for the consumer to exit and flushes what is left. The final
// flush runs under ctx.
func (w *QuoteWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping quote writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("quote writer stop timed out")
	}

	w.flush(ctx)
	w.logger.Info("quote writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *QuoteWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// SinkStats reports written and failed row counts.
func (w *QuoteWriter) SinkStats() (written, failed int64) {
	m := w.Stats()
	return m.Inserts, m.Failed
}

// consumeLoop batches updates until ctx is done or the stream ends.
func (w *QuoteWriter) consumeLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case u, ok := <-w.input.C():
			if !ok {
				w.flush(ctx)
				return
			}
			w.handleUpdate(ctx, u)
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// drain moves already buffered updates into the batch for the final flush.
func (w *QuoteWriter) drain() {
	for {
		select {
		case u, ok := <-w.input.C():
			if !ok {
				return
			}
			w.batchMu.Lock()
			w.batch = append(w.batch, transform(u))
			w.batchMu.Unlock()
		default:
			return
		}
	}
}

// handleUpdate transforms and adds an update to the batch.
func (w *QuoteWriter) handleUpdate(ctx context.Context, u model.Update) {
	row := transform(u)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(ctx)
	}
}

// transform converts an update to a quoteRow.
func transform(u model.Update) quoteRow {
	row := quoteRow{
		Symbol:        u.Symbol,
		ReceivedAt:    u.ReceivedAt.UnixMicro(),
		Price:         u.Price,
		Change:        u.Change,
		ChangePercent: u.ChangePercent,
		Volume:        u.Volume,
		DayHigh:       u.DayHigh,
		DayLow:        u.DayLow,
		MarketState:   u.MarketState.String(),
		QuoteType:     u.QuoteType.String(),
		Currency:      u.Currency,
		Exchange:      u.Exchange,
	}
	if !u.LastTradeTime.IsZero() {
		ts := u.LastTradeTime.UnixMicro()
		row.LastTradeAt = &ts
	}
	if u.ErrorText != "" {
		text := u.ErrorText
		row.ErrorText = &text
	}
	return row
}

// flush writes the current batch to the database.
func (w *QuoteWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]quoteRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.metrics.Failed += int64(len(batch))
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed quotes",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *QuoteWriter) batchInsert(ctx context.Context, rows []quoteRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertQuote,
			r.Symbol, r.ReceivedAt, r.LastTradeAt, r.Price, r.Change, r.ChangePercent, r.Volume,
			r.DayHigh, r.DayLow, r.MarketState, r.QuoteType, r.Currency, r.Exchange, r.ErrorText)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
