package models

import "time"

// SyncRun is an immutable audit record of one synchronization attempt.
// Exactly one row is written per invocation, success or failure.
type SyncRun struct {
	ID                int64      `json:"id"`
	StartedAt         time.Time  `json:"started_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	PeriodStart       *time.Time `json:"period_start,omitempty"`
	PeriodEnd         *time.Time `json:"period_end,omitempty"`
	ItemsPerPage      int        `json:"items_per_page"`
	Fetched           int        `json:"fetched"`
	Inserted          int        `json:"inserted"`
	SkippedDuplicates int        `json:"skipped_duplicates"`
	ExpectedTotal     int        `json:"expected_total"`
	PagesFetched      int        `json:"pages_fetched"`
	LastPage          int        `json:"last_page"`
	OK                bool       `json:"ok"`
	Message           string     `json:"message,omitempty"`
}

// SyncStatus summarizes the state of the raw transaction store.
type SyncStatus struct {
	OK                  bool   `json:"ok"`
	RawTransactionCount int64  `json:"raw_transaction_count"`
	Message             string `json:"message"`
}
