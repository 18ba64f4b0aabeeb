package models

import (
	"encoding/json"
	"time"
)

// RawTransaction is one row of the append-only raw transaction log.
// Rows are unique on (term_id, source_tx_id) and are never updated or
// deleted; the full source payload is stored verbatim for downstream
// reporting consumers.
type RawTransaction struct {
	ID         int64           `json:"id"`
	TermID     int64           `json:"term_id"`
	SourceTxID int64           `json:"source_tx_id"`
	TxTime     time.Time       `json:"tx_time"`
	Payload    json.RawMessage `json:"payload"`
	InsertedAt time.Time       `json:"inserted_at"`
}

// ListTransactionsRequest holds filters for the transaction listing endpoint.
type ListTransactionsRequest struct {
	TermID *int64
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// ListTransactionsResponse is a paginated transaction listing.
type ListTransactionsResponse struct {
	Transactions []*RawTransaction `json:"transactions"`
	Pagination   Pagination        `json:"pagination"`
}

// Pagination holds paging metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}
