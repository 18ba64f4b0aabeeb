package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/vendhub/vendhub-backend/internal/logging"
	"github.com/vendhub/vendhub-backend/internal/models"
	"github.com/vendhub/vendhub-backend/internal/vendista"
)

// TransactionStore persists raw transaction rows idempotently and reports
// how many were actually inserted.
type TransactionStore interface {
	InsertTransactions(ctx context.Context, rows []models.RawTransaction) (int, error)
}

// Result holds the counters of one ingestion batch. SkippedDuplicates is
// the combined count of in-batch duplicates and rows already present in
// storage; the conflict layer cannot attribute skips to one or the other.
type Result struct {
	Fetched           int `json:"fetched"`
	Inserted          int `json:"inserted"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	Dropped           int `json:"dropped"`
}

// Pipeline turns a batch of fetched source items into deduplicated, durably
// persisted rows. The storage uniqueness constraint on
// (term_id, source_tx_id) is the real idempotency guarantee; the in-batch
// dedup only guards against overlapping pages within a single fetch.
type Pipeline struct {
	store  TransactionStore
	clock  func() time.Time
	logger *logging.Logger
}

func NewPipeline(store TransactionStore, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		store:  store,
		clock:  time.Now,
		logger: logger,
	}
}

// Timestamp formats observed in Vendista payloads.
var txTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTxTime(raw string) (time.Time, bool) {
	for _, layout := range txTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

type txKey struct {
	termID int64
	txID   int64
}

// Ingest validates, deduplicates and persists a batch of fetched items.
// Malformed rows are dropped and counted, never fatal; only a storage
// failure fails the batch.
func (p *Pipeline) Ingest(ctx context.Context, items []vendista.Transaction) (Result, error) {
	res := Result{Fetched: len(items)}

	seen := make(map[txKey]struct{}, len(items))
	rows := make([]models.RawTransaction, 0, len(items))

	for _, item := range items {
		if item.ID == 0 || item.TermID == 0 || item.Time == "" {
			p.logger.WarnContext(ctx, "dropping transaction with missing identifying fields",
				"source_tx_id", item.ID,
				"term_id", item.TermID,
			)
			res.Dropped++
			continue
		}

		key := txKey{termID: item.TermID, txID: item.ID}
		if _, ok := seen[key]; ok {
			res.SkippedDuplicates++
			continue
		}
		seen[key] = struct{}{}

		txTime, ok := parseTxTime(item.Time)
		if !ok {
			// Better a row with an imprecise timestamp than a lost row.
			p.logger.WarnContext(ctx, "failed to parse transaction time, falling back to now",
				"source_tx_id", item.ID,
				"time", item.Time,
			)
			txTime = p.clock().UTC()
		}

		rows = append(rows, models.RawTransaction{
			TermID:     item.TermID,
			SourceTxID: item.ID,
			TxTime:     txTime,
			Payload:    item.Raw,
		})
	}

	if len(rows) == 0 {
		return res, nil
	}

	inserted, err := p.store.InsertTransactions(ctx, rows)
	if err != nil {
		return res, fmt.Errorf("persist transactions: %w", err)
	}

	res.Inserted = inserted
	res.SkippedDuplicates += len(rows) - inserted

	p.logger.InfoContext(ctx, "ingestion batch completed",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"skipped_duplicates", res.SkippedDuplicates,
		"dropped", res.Dropped,
	)

	return res, nil
}
