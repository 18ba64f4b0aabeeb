package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vendhub/vendhub-backend/internal/models"
)

var (
	ErrSyncRunNotFound  = errors.New("sync run not found")
	ErrTerminalNotFound = errors.New("terminal not found")
)

// TransactionFilter narrows transaction queries.
type TransactionFilter struct {
	TermID *int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// SyncRunFilter narrows sync run queries by start time.
type SyncRunFilter struct {
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
}

// Repository defines the persistence operations for the sync engine and its
// read surfaces.
type Repository interface {
	// InsertTransactions appends rows to the raw transaction log, skipping
	// rows whose (term_id, source_tx_id) already exists. Returns the number
	// of rows actually inserted.
	InsertTransactions(ctx context.Context, rows []models.RawTransaction) (int, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]*models.RawTransaction, error)
	CountTransactions(ctx context.Context, f TransactionFilter) (int64, error)

	// CreateSyncRun appends one immutable ledger row and fills in its ID.
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	GetSyncRun(ctx context.Context, id int64) (*models.SyncRun, error)
	ListSyncRuns(ctx context.Context, f SyncRunFilter) ([]*models.SyncRun, error)

	ListTerminals(ctx context.Context, activeOnly bool) ([]*models.Terminal, error)
	UpdateTerminal(ctx context.Context, id int64, req *models.UpdateTerminalRequest) (*models.Terminal, error)

	Close() error
}
