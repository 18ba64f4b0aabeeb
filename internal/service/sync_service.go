package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vendhub/vendhub-backend/internal/ingest"
	"github.com/vendhub/vendhub-backend/internal/logging"
	"github.com/vendhub/vendhub-backend/internal/metrics"
	"github.com/vendhub/vendhub-backend/internal/models"
	"github.com/vendhub/vendhub-backend/internal/repository"
	"github.com/vendhub/vendhub-backend/internal/vendista"
)

var (
	ErrInvalidPeriod    = errors.New("period_end must not be before period_start")
	ErrRunNotReplayable = errors.New("sync run has no recorded period to replay")
)

// SourceClient fetches transaction pages from the remote source.
type SourceClient interface {
	FetchAll(ctx context.Context, dateFrom, dateTo time.Time, itemsPerPage int, orderDesc bool) (*vendista.FetchResult, error)
	TestConnection(ctx context.Context) bool
}

// Ingestor persists a fetched batch idempotently.
type Ingestor interface {
	Ingest(ctx context.Context, items []vendista.Transaction) (ingest.Result, error)
}

// SyncService orchestrates one synchronization attempt: it owns period
// defaults and validation, drives the client and the pipeline, and writes
// exactly one ledger row per invocation. There is no resumption cursor
// between runs; re-running an identical window is safe because ingestion is
// idempotent.
type SyncService struct {
	client   SourceClient
	pipeline Ingestor
	repo     repository.Repository
	clock    func() time.Time
	logger   *logging.Logger

	defaultItemsPerPage int
	defaultOrderDesc    bool
}

func NewSyncService(client SourceClient, pipeline Ingestor, repo repository.Repository, logger *logging.Logger) *SyncService {
	if logger == nil {
		logger = logging.Default()
	}
	return &SyncService{
		client:              client,
		pipeline:            pipeline,
		repo:                repo,
		clock:               time.Now,
		logger:              logger,
		defaultItemsPerPage: 50,
		defaultOrderDesc:    true,
	}
}

// SetDefaults overrides the fallback page size and ordering used when a
// request does not specify them.
func (s *SyncService) SetDefaults(itemsPerPage int, orderDesc bool) {
	if itemsPerPage > 0 {
		s.defaultItemsPerPage = itemsPerPage
	}
	s.defaultOrderDesc = orderDesc
}

// SyncParams holds the caller-supplied parameters of a sync invocation.
// Nil period bounds fall back to the defaults: first day of the current
// month through today.
type SyncParams struct {
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
	ItemsPerPage int
	OrderDesc    *bool
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RunSync executes one full synchronization and returns the ledger row that
// was written for it. The returned error is non-nil when the run failed;
// callers still get the run with its counters, ok flag and message unless
// validation rejected the parameters before anything was attempted.
func (s *SyncService) RunSync(ctx context.Context, params SyncParams) (*models.SyncRun, error) {
	// Defaults are evaluated against a single clock read.
	now := s.clock().UTC()
	today := dateOf(now)

	periodStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	if params.PeriodStart != nil {
		periodStart = dateOf(*params.PeriodStart)
	}
	periodEnd := today
	if params.PeriodEnd != nil {
		periodEnd = dateOf(*params.PeriodEnd)
	}

	// Validation precedes run creation: no period was ever attempted, so no
	// ledger row is written.
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("%w: %s > %s",
			ErrInvalidPeriod, periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"))
	}

	itemsPerPage := params.ItemsPerPage
	if itemsPerPage <= 0 {
		itemsPerPage = s.defaultItemsPerPage
	}
	orderDesc := s.defaultOrderDesc
	if params.OrderDesc != nil {
		orderDesc = *params.OrderDesc
	}

	run := &models.SyncRun{
		StartedAt:    now,
		PeriodStart:  &periodStart,
		PeriodEnd:    &periodEnd,
		ItemsPerPage: itemsPerPage,
	}

	// The period is inclusive: the end boundary must cover the whole last
	// day, or its transactions are silently excluded.
	dateFrom := periodStart
	dateTo := periodEnd.Add(24*time.Hour - time.Second)

	s.logger.InfoContext(ctx, "starting vendista sync",
		"period_start", periodStart.Format("2006-01-02"),
		"period_end", periodEnd.Format("2006-01-02"),
		"items_per_page", itemsPerPage,
		"order_desc", orderDesc,
	)

	var runErr error
	fetched, err := s.client.FetchAll(ctx, dateFrom, dateTo, itemsPerPage, orderDesc)
	if err != nil {
		run.Message = err.Error()
		runErr = err
	} else {
		run.ExpectedTotal = fetched.ExpectedTotal
		run.PagesFetched = fetched.PagesFetched
		run.LastPage = fetched.LastPage
		metrics.PagesFetchedTotal.Add(float64(fetched.PagesFetched))

		res, ingestErr := s.pipeline.Ingest(ctx, fetched.Items)
		run.Fetched = res.Fetched
		run.Inserted = res.Inserted
		run.SkippedDuplicates = res.SkippedDuplicates
		metrics.TransactionsInsertedTotal.Add(float64(res.Inserted))
		metrics.DuplicatesSkippedTotal.Add(float64(res.SkippedDuplicates))
		metrics.RowsDroppedTotal.Add(float64(res.Dropped))

		if ingestErr != nil {
			run.Message = ingestErr.Error()
			runErr = ingestErr
		} else {
			run.OK = true
			switch {
			case fetched.TruncatedEarly:
				run.Message = fmt.Sprintf(
					"pagination ended early: empty page %d before expected total %d",
					fetched.LastPage, fetched.ExpectedTotal)
			case res.Dropped > 0:
				run.Message = fmt.Sprintf("sync completed, %d malformed rows dropped", res.Dropped)
			default:
				run.Message = "sync completed"
			}
		}
	}

	completedAt := s.clock().UTC()
	run.CompletedAt = &completedAt
	metrics.SyncDuration.Observe(completedAt.Sub(now).Seconds())
	if run.OK {
		metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.SyncRunsTotal.WithLabelValues("error").Inc()
	}

	if err := s.repo.CreateSyncRun(ctx, run); err != nil {
		if runErr != nil {
			// The ledger failure must not replace the error being reported.
			s.logger.ErrorContext(ctx, "failed to record failed sync run", "error", err)
			return run, runErr
		}
		return run, fmt.Errorf("record sync run: %w", err)
	}

	s.logger.InfoContext(ctx, "vendista sync finished",
		"run_id", run.ID,
		"ok", run.OK,
		"fetched", run.Fetched,
		"inserted", run.Inserted,
		"skipped_duplicates", run.SkippedDuplicates,
	)

	return run, runErr
}

// Rerun replays a past run's recorded parameters, producing a brand-new
// ledger row. The original run is never mutated.
func (s *SyncService) Rerun(ctx context.Context, runID int64) (*models.SyncRun, error) {
	prev, err := s.repo.GetSyncRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if prev.PeriodStart == nil || prev.PeriodEnd == nil {
		return nil, fmt.Errorf("run %d: %w", runID, ErrRunNotReplayable)
	}

	s.logger.InfoContext(ctx, "re-running sync", "source_run_id", runID)

	return s.RunSync(ctx, SyncParams{
		PeriodStart:  prev.PeriodStart,
		PeriodEnd:    prev.PeriodEnd,
		ItemsPerPage: prev.ItemsPerPage,
	})
}

// ListRuns returns sync runs newest-first.
func (s *SyncService) ListRuns(ctx context.Context, f repository.SyncRunFilter) ([]*models.SyncRun, error) {
	if f.Limit < 1 || f.Limit > 500 {
		f.Limit = 50
	}
	return s.repo.ListSyncRuns(ctx, f)
}

// GetRun returns a single sync run by ID.
func (s *SyncService) GetRun(ctx context.Context, id int64) (*models.SyncRun, error) {
	return s.repo.GetSyncRun(ctx, id)
}

// Status reports the size of the raw transaction store.
func (s *SyncService) Status(ctx context.Context) (*models.SyncStatus, error) {
	count, err := s.repo.CountTransactions(ctx, repository.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("count raw transactions: %w", err)
	}
	return &models.SyncStatus{
		OK:                  true,
		RawTransactionCount: count,
		Message:             fmt.Sprintf("database has %d transactions", count),
	}, nil
}

// CheckSourceConnection probes the remote source.
func (s *SyncService) CheckSourceConnection(ctx context.Context) bool {
	return s.client.TestConnection(ctx)
}
