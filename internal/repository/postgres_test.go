package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vendhub/vendhub-backend/internal/models"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations
func setupTestDatabase(t *testing.T) (*PostgresRepository, func()) {
	if os.Getenv("VENDHUB_INTEGRATION") == "" {
		t.Skip("set VENDHUB_INTEGRATION=1 to run repository integration tests")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("vendhub_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create repository: %v", err)
	}

	cleanup := func() {
		repo.pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return repo, cleanup
}

// runMigrations applies the up migrations from the migrations directory
func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pattern := filepath.Join("..", "..", "migrations", "*.up.sql")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("failed to glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		migrationSQL, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file: %w", err)
		}
		if _, err := db.Exec(string(migrationSQL)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
	}

	return nil
}

func rawTx(termID, txID int64, txTime time.Time) models.RawTransaction {
	payload, _ := json.Marshal(map[string]interface{}{
		"id": txID, "term_id": termID, "time": txTime.Format(time.RFC3339), "sum": 1500,
	})
	return models.RawTransaction{
		TermID:     termID,
		SourceTxID: txID,
		TxTime:     txTime,
		Payload:    payload,
	}
}

func TestInsertTransactions_Idempotent(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := []models.RawTransaction{
		rawTx(5, 41, base),
		rawTx(5, 42, base.Add(time.Minute)),
		rawTx(6, 42, base.Add(2*time.Minute)),
	}

	inserted, err := repo.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("InsertTransactions() error = %v", err)
	}
	if inserted != 3 {
		t.Errorf("inserted = %d, want 3", inserted)
	}

	// Inserting the same batch again must not create rows or fail.
	inserted, err = repo.InsertTransactions(ctx, rows)
	if err != nil {
		t.Fatalf("InsertTransactions() second call error = %v", err)
	}
	if inserted != 0 {
		t.Errorf("second insert = %d, want 0", inserted)
	}

	total, err := repo.CountTransactions(ctx, TransactionFilter{})
	if err != nil {
		t.Fatalf("CountTransactions() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total rows = %d, want 3", total)
	}
}

func TestInsertTransactions_PartialConflict(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	if _, err := repo.InsertTransactions(ctx, []models.RawTransaction{rawTx(5, 41, base)}); err != nil {
		t.Fatalf("seed insert error = %v", err)
	}

	inserted, err := repo.InsertTransactions(ctx, []models.RawTransaction{
		rawTx(5, 41, base), // conflict
		rawTx(5, 99, base.Add(time.Minute)),
	})
	if err != nil {
		t.Fatalf("InsertTransactions() error = %v", err)
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
}

func TestListTransactions_Filters(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := []models.RawTransaction{
		rawTx(5, 1, base),
		rawTx(5, 2, base.Add(time.Hour)),
		rawTx(6, 3, base.Add(2*time.Hour)),
	}
	if _, err := repo.InsertTransactions(ctx, rows); err != nil {
		t.Fatalf("seed insert error = %v", err)
	}

	termID := int64(5)
	got, err := repo.ListTransactions(ctx, TransactionFilter{TermID: &termID, Limit: 10})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].SourceTxID != 2 || got[1].SourceTxID != 1 {
		t.Errorf("unexpected order: %d, %d", got[0].SourceTxID, got[1].SourceTxID)
	}

	from := base.Add(90 * time.Minute)
	got, err = repo.ListTransactions(ctx, TransactionFilter{From: &from, Limit: 10})
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 1 || got[0].SourceTxID != 3 {
		t.Errorf("time filter returned wrong rows: %+v", got)
	}
}

func TestSyncRunLedger(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	completed := time.Date(2024, 3, 15, 10, 0, 5, 0, time.UTC)

	run := &models.SyncRun{
		StartedAt:         time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		CompletedAt:       &completed,
		PeriodStart:       &start,
		PeriodEnd:         &end,
		ItemsPerPage:      50,
		Fetched:           125,
		Inserted:          120,
		SkippedDuplicates: 5,
		ExpectedTotal:     125,
		PagesFetched:      3,
		LastPage:          3,
		OK:                true,
		Message:           "sync completed",
	}

	if err := repo.CreateSyncRun(ctx, run); err != nil {
		t.Fatalf("CreateSyncRun() error = %v", err)
	}
	if run.ID == 0 {
		t.Fatal("CreateSyncRun() did not assign an ID")
	}

	got, err := repo.GetSyncRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetSyncRun() error = %v", err)
	}
	if got.Fetched != 125 || got.Inserted != 120 || got.SkippedDuplicates != 5 {
		t.Errorf("counters = %d/%d/%d, want 125/120/5", got.Fetched, got.Inserted, got.SkippedDuplicates)
	}
	if !got.OK || got.Message != "sync completed" {
		t.Errorf("ok/message = %v/%q", got.OK, got.Message)
	}
	if got.PeriodStart == nil || !got.PeriodStart.Equal(start) {
		t.Errorf("PeriodStart = %v, want %v", got.PeriodStart, start)
	}

	if _, err := repo.GetSyncRun(ctx, 99999); !errors.Is(err, ErrSyncRunNotFound) {
		t.Errorf("GetSyncRun(missing) error = %v, want ErrSyncRunNotFound", err)
	}
}

func TestListSyncRuns_NewestFirst(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		run := &models.SyncRun{
			StartedAt: time.Date(2024, 3, 10+i, 10, 0, 0, 0, time.UTC),
			OK:        true,
		}
		if err := repo.CreateSyncRun(ctx, run); err != nil {
			t.Fatalf("CreateSyncRun() error = %v", err)
		}
	}

	runs, err := repo.ListSyncRuns(ctx, SyncRunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListSyncRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("runs not newest-first: %v, %v", runs[0].StartedAt, runs[1].StartedAt)
	}
}

func TestUpdateTerminal(t *testing.T) {
	repo, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.pool.Exec(ctx,
		"INSERT INTO vendista_terminals (id, title) VALUES ($1, $2)", int64(5), "Terminal 5"); err != nil {
		t.Fatalf("seed terminal error = %v", err)
	}

	comment := "Ostrovskogo #1"
	active := false
	term, err := repo.UpdateTerminal(ctx, 5, &models.UpdateTerminalRequest{Comment: &comment, IsActive: &active})
	if err != nil {
		t.Fatalf("UpdateTerminal() error = %v", err)
	}
	if term.Comment == nil || *term.Comment != comment {
		t.Errorf("Comment = %v, want %q", term.Comment, comment)
	}
	if term.IsActive {
		t.Error("IsActive should be false")
	}

	if _, err := repo.UpdateTerminal(ctx, 404, &models.UpdateTerminalRequest{Comment: &comment}); !errors.Is(err, ErrTerminalNotFound) {
		t.Errorf("UpdateTerminal(missing) error = %v, want ErrTerminalNotFound", err)
	}

	terminals, err := repo.ListTerminals(ctx, true)
	if err != nil {
		t.Fatalf("ListTerminals() error = %v", err)
	}
	if len(terminals) != 0 {
		t.Errorf("active terminals = %d, want 0", len(terminals))
	}
}
