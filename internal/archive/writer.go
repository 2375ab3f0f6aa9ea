package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaykit/gateway/internal/config"
	"github.com/relaykit/gateway/internal/realtime"
)

// messageRow is the flattened form written to the messages table.
type messageRow struct {
	MessageID  string
	Channel    string
	MsgType    string
	UserID     string
	ProjectID  string
	Payload    []byte
	SentAt     int64 // sender timestamp (µs since epoch, 0 if absent/unparsable)
	ReceivedAt int64 // local receive timestamp (µs since epoch)
}

// WriterMetrics tracks archiver activity.
type WriterMetrics struct {
	MessagesArchived int64
	BatchesWritten   int64
	WriteErrors      int64
}

// Writer batches delivered messages and writes them to PostgreSQL.
type Writer struct {
	cfg    config.ArchiverConfig
	logger *slog.Logger

	intake *intakeBuffer

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []messageRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewWriter creates a message archiver.
func NewWriter(cfg config.ArchiverConfig, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		intake: newIntakeBuffer(cfg.BufferSize),
		batch:  make([]messageRow, 0, cfg.BatchSize),
	}
}

// Enqueue accepts one delivered message. Safe to use directly as a
// subscription callback; never blocks.
func (w *Writer) Enqueue(msg realtime.Message) {
	if !w.intake.Put(inbound{Msg: msg, ReceivedAt: time.Now()}) {
		w.logger.Warn("archive intake full, dropping message",
			"channel", msg.Channel,
		)
	}
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.intake.Close()
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
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Final drain and flush
	for _, item := range w.intake.DrainTo(0) {
		w.appendRow(item)
	}
	w.flush()

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop pulls from the intake buffer and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			items := w.intake.DrainTo(w.cfg.BatchSize)
			if len(items) == 0 {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			for _, item := range items {
				w.appendRow(item)
			}
		}
	}
}

// flushLoop periodically flushes the batch.
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

func (w *Writer) appendRow(item inbound) {
	row := transform(item)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	full := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if full {
		w.flush()
	}
}

// transform flattens a delivered message into a row.
func transform(item inbound) messageRow {
	var sentAt int64
	if item.Msg.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339Nano, item.Msg.Timestamp); err == nil {
			sentAt = t.UnixMicro()
		}
	}

	return messageRow{
		MessageID:  item.Msg.MessageID,
		Channel:    item.Msg.Channel,
		MsgType:    item.Msg.Type,
		UserID:     item.Msg.UserID,
		ProjectID:  item.Msg.ProjectID,
		Payload:    []byte(item.Msg.Data),
		SentAt:     sentAt,
		ReceivedAt: item.ReceivedAt.UnixMicro(),
	}
}

// flush writes the accumulated batch with COPY.
func (w *Writer) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	rows := w.batch
	w.batch = make([]messageRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	copied, err := w.db.CopyFrom(
		ctx,
		pgx.Identifier{"messages"},
		[]string{"message_id", "channel", "msg_type", "user_id", "project_id", "payload", "sent_at", "received_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.MessageID, r.Channel, r.MsgType, r.UserID, r.ProjectID,
				r.Payload, r.SentAt, r.ReceivedAt,
			}, nil
		}),
	)
	if err != nil {
		w.batchMu.Lock()
		w.metrics.WriteErrors++
		w.batchMu.Unlock()

		w.logger.Error("archive batch write failed",
			"rows", len(rows),
			"error", err,
		)
		return
	}

	w.batchMu.Lock()
	w.metrics.MessagesArchived += copied
	w.metrics.BatchesWritten++
	w.batchMu.Unlock()

	w.logger.Debug("archive batch written", "rows", copied)
}
