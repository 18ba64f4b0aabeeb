package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vendhub/vendhub-backend/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// InsertTransactions bulk-inserts raw transaction rows. The uq_vendista_tx
// constraint on (term_id, vendista_tx_id) makes the insert idempotent:
// conflicting rows are silently skipped and never updated.
func (r *PostgresRepository) InsertTransactions(ctx context.Context, rows []models.RawTransaction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	argPos := 1
	for _, row := range rows {
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", argPos, argPos+1, argPos+2, argPos+3))
		args = append(args, row.TermID, row.SourceTxID, row.TxTime, row.Payload)
		argPos += 4
	}

	query := fmt.Sprintf(`
		INSERT INTO vendista_tx_raw (term_id, vendista_tx_id, tx_time, payload)
		VALUES %s
		ON CONFLICT ON CONSTRAINT uq_vendista_tx DO NOTHING
	`, strings.Join(values, ", "))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transactions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListTransactions retrieves raw transactions newest-first
func (r *PostgresRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]*models.RawTransaction, error) {
	whereClause, args := buildTransactionWhere(f)
	argPos := len(args) + 1
	args = append(args, f.Limit, f.Offset)

	query := fmt.Sprintf(`
		SELECT id, term_id, vendista_tx_id, tx_time, payload, inserted_at
		FROM vendista_tx_raw
		%s
		ORDER BY tx_time DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []*models.RawTransaction{}
	for rows.Next() {
		tx := &models.RawTransaction{}
		if err := rows.Scan(&tx.ID, &tx.TermID, &tx.SourceTxID, &tx.TxTime, &tx.Payload, &tx.InsertedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return transactions, nil
}

// CountTransactions counts raw transactions matching the filter
func (r *PostgresRepository) CountTransactions(ctx context.Context, f TransactionFilter) (int64, error) {
	whereClause, args := buildTransactionWhere(f)

	query := fmt.Sprintf("SELECT COUNT(*) FROM vendista_tx_raw %s", whereClause)

	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return total, nil
}

func buildTransactionWhere(f TransactionFilter) (string, []interface{}) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if f.TermID != nil {
		whereClause += fmt.Sprintf(" AND term_id = $%d", argPos)
		args = append(args, *f.TermID)
		argPos++
	}
	if f.From != nil {
		whereClause += fmt.Sprintf(" AND tx_time >= $%d", argPos)
		args = append(args, *f.From)
		argPos++
	}
	if f.To != nil {
		whereClause += fmt.Sprintf(" AND tx_time <= $%d", argPos)
		args = append(args, *f.To)
		argPos++
	}

	return whereClause, args
}

// CreateSyncRun appends one ledger row and fills in the generated ID.
// Ledger rows are immutable: there is no update path.
func (r *PostgresRepository) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (
			started_at, completed_at, period_start, period_end, items_per_page,
			fetched, inserted, skipped_duplicates, expected_total,
			pages_fetched, last_page, ok, message
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		run.StartedAt, run.CompletedAt, run.PeriodStart, run.PeriodEnd, run.ItemsPerPage,
		run.Fetched, run.Inserted, run.SkippedDuplicates, run.ExpectedTotal,
		run.PagesFetched, run.LastPage, run.OK, run.Message,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	return nil
}

const syncRunColumns = `
	id, started_at, completed_at, period_start, period_end,
	COALESCE(items_per_page, 0), COALESCE(fetched, 0), COALESCE(inserted, 0),
	COALESCE(skipped_duplicates, 0), COALESCE(expected_total, 0),
	COALESCE(pages_fetched, 0), COALESCE(last_page, 0), ok, COALESCE(message, '')
`

func scanSyncRun(row pgx.Row) (*models.SyncRun, error) {
	run := &models.SyncRun{}
	err := row.Scan(
		&run.ID, &run.StartedAt, &run.CompletedAt, &run.PeriodStart, &run.PeriodEnd,
		&run.ItemsPerPage, &run.Fetched, &run.Inserted,
		&run.SkippedDuplicates, &run.ExpectedTotal,
		&run.PagesFetched, &run.LastPage, &run.OK, &run.Message,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// GetSyncRun retrieves a sync run by ID
func (r *PostgresRepository) GetSyncRun(ctx context.Context, id int64) (*models.SyncRun, error) {
	query := fmt.Sprintf("SELECT %s FROM sync_runs WHERE id = $1", syncRunColumns)

	run, err := scanSyncRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSyncRunNotFound
		}
		return nil, fmt.Errorf("failed to get sync run: %w", err)
	}

	return run, nil
}

// ListSyncRuns retrieves sync runs newest-first
func (r *PostgresRepository) ListSyncRuns(ctx context.Context, f SyncRunFilter) ([]*models.SyncRun, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if f.DateFrom != nil {
		whereClause += fmt.Sprintf(" AND started_at >= $%d", argPos)
		args = append(args, *f.DateFrom)
		argPos++
	}
	if f.DateTo != nil {
		whereClause += fmt.Sprintf(" AND started_at <= $%d", argPos)
		args = append(args, *f.DateTo)
		argPos++
	}

	args = append(args, f.Limit)
	query := fmt.Sprintf(`
		SELECT %s
		FROM sync_runs
		%s
		ORDER BY started_at DESC, id DESC
		LIMIT $%d
	`, syncRunColumns, whereClause, argPos)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.SyncRun{}
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

// ListTerminals retrieves terminals ordered by ID
func (r *PostgresRepository) ListTerminals(ctx context.Context, activeOnly bool) ([]*models.Terminal, error) {
	query := `
		SELECT id, title, comment, is_active, created_at, updated_at
		FROM vendista_terminals
	`
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY id"

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list terminals: %w", err)
	}
	defer rows.Close()

	terminals := []*models.Terminal{}
	for rows.Next() {
		term := &models.Terminal{}
		if err := rows.Scan(&term.ID, &term.Title, &term.Comment, &term.IsActive, &term.CreatedAt, &term.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan terminal: %w", err)
		}
		terminals = append(terminals, term)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return terminals, nil
}

// UpdateTerminal updates the mutable terminal fields
func (r *PostgresRepository) UpdateTerminal(ctx context.Context, id int64, req *models.UpdateTerminalRequest) (*models.Terminal, error) {
	setClauses := []string{"updated_at = $1"}
	args := []interface{}{time.Now()}
	argPos := 2

	if req.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argPos))
		args = append(args, *req.Title)
		argPos++
	}
	if req.Comment != nil {
		setClauses = append(setClauses, fmt.Sprintf("comment = $%d", argPos))
		args = append(args, *req.Comment)
		argPos++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argPos))
		args = append(args, *req.IsActive)
		argPos++
	}

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE vendista_terminals
		SET %s
		WHERE id = $%d
		RETURNING id, title, comment, is_active, created_at, updated_at
	`, strings.Join(setClauses, ", "), argPos)

	term := &models.Terminal{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&term.ID, &term.Title, &term.Comment, &term.IsActive, &term.CreatedAt, &term.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTerminalNotFound
		}
		return nil, fmt.Errorf("failed to update terminal: %w", err)
	}

	return term, nil
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
