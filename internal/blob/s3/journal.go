package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

const contentTypeJSONL = "application/x-ndjson"

// multipartWriter is implemented by writers that can split large uploads.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, contentType string, partSize int64) error
}

// Journal buffers confirmed trades and uploads them as JSONL objects, one
// object per flush, partitioned by day.
type Journal struct {
	writer   domain.BlobWriter
	prefix   string
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu  sync.Mutex
	buf []domain.TradeRecord
}

// NewJournal creates a Journal writing under prefix every interval.
func NewJournal(w domain.BlobWriter, prefix string, interval time.Duration, logger *slog.Logger) *Journal {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Journal{
		writer:   w,
		prefix:   prefix,
		interval: interval,
		logger:   logger.With(slog.String("component", "trade_journal")),
		now:      time.Now,
	}
}

// Record buffers one trade for the next flush.
func (j *Journal) Record(_ context.Context, rec domain.TradeRecord) error {
	j.mu.Lock()
	j.buf = append(j.buf, rec)
	j.mu.Unlock()
	return nil
}

// Pending returns the number of buffered records.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.buf)
}

// Flush uploads everything buffered so far. On failure the records are put
// back so the next flush retries them.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	batch := j.buf
	j.buf = nil
	j.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	data, err := marshalJSONL(batch)
	if err != nil {
		j.requeue(batch)
		return fmt.Errorf("s3blob: journal marshal: %w", err)
	}

	key := journalKey(j.prefix, j.now().UTC(), uuid.NewString())
	if mw, ok := j.writer.(multipartWriter); ok && int64(len(data)) > minPartSize {
		err = mw.PutMultipart(ctx, key, bytes.NewReader(data), contentTypeJSONL, minPartSize)
	} else {
		err = j.writer.Put(ctx, key, bytes.NewReader(data), contentTypeJSONL)
	}
	if err != nil {
		j.requeue(batch)
		return fmt.Errorf("s3blob: journal upload: %w", err)
	}

	j.logger.InfoContext(ctx, "journal flushed",
		slog.String("key", key),
		slog.Int("records", len(batch)),
	)
	return nil
}

// Run flushes on a fixed interval until ctx is cancelled, then flushes once
// more with a short deadline.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := j.Flush(flushCtx); err != nil {
				j.logger.Error("final journal flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
			if err := j.Flush(ctx); err != nil {
				j.logger.WarnContext(ctx, "journal flush failed",
					slog.String("error", err.Error()),
					slog.Int("pending", j.Pending()),
				)
			}
		}
	}
}

func (j *Journal) requeue(batch []domain.TradeRecord) {
	j.mu.Lock()
	j.buf = append(batch, j.buf...)
	j.mu.Unlock()
}

// journalKey builds prefix/YYYY/MM/DD/<unix>-<id>.jsonl.
func journalKey(prefix string, t time.Time, id string) string {
	name := fmt.Sprintf("%d-%s.jsonl", t.Unix(), id)
	return path.Join(prefix, t.Format("2006"), t.Format("01"), t.Format("02"), name)
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
