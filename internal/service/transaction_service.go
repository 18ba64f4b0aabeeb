package service

import (
	"context"
	"fmt"

	"github.com/vendhub/vendhub-backend/internal/models"
	"github.com/vendhub/vendhub-backend/internal/repository"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// TransactionService exposes read access to the raw transaction store.
type TransactionService struct {
	repo repository.Repository
}

func NewTransactionService(repo repository.Repository) *TransactionService {
	return &TransactionService{repo: repo}
}

func (s *TransactionService) List(ctx context.Context, req *models.ListTransactionsRequest) (*models.ListTransactionsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	filter := repository.TransactionFilter{
		TermID: req.TermID,
		From:   req.From,
		To:     req.To,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	count, err := s.repo.CountTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}
	total := int(count)

	rows, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return &models.ListTransactionsResponse{
		Transactions: rows,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}
